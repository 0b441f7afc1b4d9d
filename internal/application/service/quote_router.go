package service

import (
	"context"
	"strings"

	"marksync/internal/application/port"
)

// QuoteRouter 按市场选择行情源，统一做符号规范化
// Normalization happens exactly once, here, so sources never see venue
// suffixes and callers never normalize twice.
type QuoteRouter struct {
	directMarket  string
	direct        port.QuoteSource
	bulk          port.QuoteSource
	stream        port.QuoteSource // nil unless a stream feed is configured
	streamMarkets map[string]struct{}
}

func NewQuoteRouter(directMarket string, direct, bulk port.QuoteSource) *QuoteRouter {
	return &QuoteRouter{
		directMarket:  strings.ToLower(strings.TrimSpace(directMarket)),
		direct:        direct,
		bulk:          bulk,
		streamMarkets: make(map[string]struct{}),
	}
}

// WithStream routes the given markets to a streaming source instead of
// the bulk cache. The direct market keeps priority.
func (r *QuoteRouter) WithStream(stream port.QuoteSource, markets []string) *QuoteRouter {
	r.stream = stream
	for _, m := range markets {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			r.streamMarkets[m] = struct{}{}
		}
	}
	return r
}

// Quote resolves (market, symbol) to a price via the source the market
// routes to. Misses and transport failures surface as
// port.ErrQuoteUnavailable so callers can skip and continue.
func (r *QuoteRouter) Quote(ctx context.Context, market, symbol string) (float64, error) {
	sym := NormalizeSymbol(symbol)
	m := strings.ToLower(strings.TrimSpace(market))

	if m == r.directMarket {
		return r.direct.Quote(ctx, sym)
	}
	if r.stream != nil {
		if _, ok := r.streamMarkets[m]; ok {
			return r.stream.Quote(ctx, sym)
		}
	}
	return r.bulk.Quote(ctx, sym)
}

// NormalizeSymbol uppercases and keeps only the part before the first
// colon, dropping a venue qualifier when one is attached.
func NormalizeSymbol(symbol string) string {
	sym, _, _ := strings.Cut(strings.TrimSpace(symbol), ":")
	return strings.ToUpper(sym)
}
