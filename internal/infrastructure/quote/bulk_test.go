package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marksync/internal/application/port"
)

func TestBulkRefreshParsesAndNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			t.Errorf("token not forwarded")
		}
		// mixed number and string prices, suffixed symbols, one bad row
		fmt.Fprint(w, `{"data":[
			{"co":"TCS.NS","a":3500.5},
			{"co":"infy.BO","a":"1499.25"},
			{"co":"BAD.NS","a":"not-a-number"},
			{"co":"ZERO.NS","a":0}
		]}`)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "tok", 2*time.Second)
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	price, err := b.Quote(context.Background(), "TCS")
	if err != nil || price != 3500.5 {
		t.Errorf("TCS: price=%v err=%v, want 3500.5", price, err)
	}
	price, err = b.Quote(context.Background(), "INFY")
	if err != nil || price != 1499.25 {
		t.Errorf("INFY: price=%v err=%v, want 1499.25", price, err)
	}
	// bad and non-positive rows are dropped, not stored as zero
	for _, sym := range []string{"BAD", "ZERO"} {
		if _, err := b.Quote(context.Background(), sym); !errors.Is(err, port.ErrQuoteUnavailable) {
			t.Errorf("%s: err = %v, want ErrQuoteUnavailable", sym, err)
		}
	}
}

func TestBulkQuoteMissIsUnavailableNeverZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"co":"TCS.NS","a":3500}]}`)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "", 2*time.Second)
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	price, err := b.Quote(context.Background(), "MISSING")
	if !errors.Is(err, port.ErrQuoteUnavailable) {
		t.Fatalf("err = %v, want ErrQuoteUnavailable", err)
	}
	if price != 0 {
		t.Errorf("a miss must not report a price, got %v", price)
	}
}

func TestBulkColdStartTriggersOnDemandRefresh(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"data":[{"co":"TCS.NS","a":3500}]}`)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "", 2*time.Second)

	// no Refresh call yet; the first lookup must trigger one
	price, err := b.Quote(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("cold-start Quote failed: %v", err)
	}
	if price != 3500 {
		t.Errorf("price = %v, want 3500", price)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want exactly 1", hits.Load())
	}

	// subsequent lookups are pure map reads
	b.Quote(context.Background(), "TCS")
	if hits.Load() != 1 {
		t.Errorf("lookup after warm cache hit upstream")
	}
}

func TestBulkColdStartRefreshFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "", 2*time.Second)
	_, err := b.Quote(context.Background(), "TCS")
	if !errors.Is(err, port.ErrQuoteUnavailable) {
		t.Errorf("err = %v, want ErrQuoteUnavailable", err)
	}
}

func TestBulkRefreshSwapsTableAtomically(t *testing.T) {
	var generation atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := generation.Load()
		fmt.Fprintf(w, `{"data":[{"co":"A.NS","a":%d},{"co":"B.NS","a":%d}]}`, g, g)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "", 2*time.Second)
	generation.Store(1)
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	ctx := context.Background()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	// any published snapshot must hold A and B from the same generation;
	// a mix of old and new entries means the swap was not atomic
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := b.snap.Load()
				if snap == nil {
					continue
				}
				if snap.table["A"] != snap.table["B"] {
					t.Errorf("torn table observed: A=%v B=%v", snap.table["A"], snap.table["B"])
					return
				}
			}
		}()
	}

	for g := int64(2); g <= 20; g++ {
		generation.Store(g)
		if err := b.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestBulkAsOfAdvances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	b := NewBulkCache(srv.URL, "", 2*time.Second)
	if !b.AsOf().IsZero() {
		t.Error("AsOf non-zero before first refresh")
	}
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if b.AsOf().IsZero() {
		t.Error("AsOf still zero after refresh")
	}
}
