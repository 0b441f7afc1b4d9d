package service

import (
	"context"
	"testing"

	"marksync/internal/application/port"
)

type recordingSource struct {
	name    string
	price   float64
	lastSym string
	calls   int
}

func (s *recordingSource) Quote(ctx context.Context, symbol string) (float64, error) {
	s.calls++
	s.lastSym = symbol
	if s.price <= 0 {
		return 0, port.ErrQuoteUnavailable
	}
	return s.price, nil
}

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"aapl", "AAPL"},
		{"NASDAQ:AAPL", "NASDAQ"},
		{"aapl:us", "AAPL"},
		{" tsla ", "TSLA"},
		{"RELIANCE", "RELIANCE"},
	}
	for _, c := range cases {
		if got := NormalizeSymbol(c.in); got != c.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRouterRoutesDirectMarketCaseInsensitive(t *testing.T) {
	direct := &recordingSource{name: "direct", price: 100}
	bulk := &recordingSource{name: "bulk", price: 200}
	router := NewQuoteRouter("usa", direct, bulk)

	for _, market := range []string{"usa", "USA", "Usa"} {
		price, err := router.Quote(context.Background(), market, "aapl:us")
		if err != nil {
			t.Fatalf("Quote(%s) failed: %v", market, err)
		}
		if price != 100 {
			t.Errorf("market %s routed to wrong source, price = %v", market, price)
		}
	}
	if direct.lastSym != "AAPL" {
		t.Errorf("direct source saw symbol %q, want normalized AAPL", direct.lastSym)
	}
	if bulk.calls != 0 {
		t.Errorf("bulk source called %d times for direct market", bulk.calls)
	}
}

func TestRouterRoutesOtherMarketsToBulk(t *testing.T) {
	direct := &recordingSource{price: 100}
	bulk := &recordingSource{price: 200}
	router := NewQuoteRouter("usa", direct, bulk)

	price, err := router.Quote(context.Background(), "india", "tcs")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if price != 200 {
		t.Errorf("price = %v, want bulk price 200", price)
	}
	if direct.calls != 0 {
		t.Errorf("direct source called for non-direct market")
	}
}

func TestRouterStreamMarkets(t *testing.T) {
	direct := &recordingSource{price: 100}
	bulk := &recordingSource{price: 200}
	stream := &recordingSource{price: 300}
	router := NewQuoteRouter("usa", direct, bulk).WithStream(stream, []string{"crypto"})

	price, err := router.Quote(context.Background(), "CRYPTO", "btcusdt")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if price != 300 {
		t.Errorf("price = %v, want stream price 300", price)
	}

	// unknown markets still fall through to bulk
	price, err = router.Quote(context.Background(), "india", "tcs")
	if err != nil || price != 200 {
		t.Errorf("india market: price=%v err=%v, want bulk 200", price, err)
	}
	// direct market keeps priority over stream config
	price, err = router.Quote(context.Background(), "usa", "aapl")
	if err != nil || price != 100 {
		t.Errorf("usa market: price=%v err=%v, want direct 100", price, err)
	}
}
