package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
)

// BulkCache 批量行情缓存源：定时整表刷新，单符号查询走内存表
type BulkCache struct {
	url    string
	token  string
	client *http.Client

	snap      atomic.Pointer[bulkSnapshot]
	refreshMu sync.Mutex // serializes on-demand cold-start refreshes
}

// bulkSnapshot is immutable once published; readers never observe a
// half-updated table because Refresh swaps the whole pointer.
type bulkSnapshot struct {
	asOf  time.Time
	table map[string]float64
}

// bulkListingResp 上游整表行情响应
type bulkListingResp struct {
	Data []struct {
		RawSymbol string      `json:"co"`
		Ask       json.Number `json:"a"`
	} `json:"data"`
}

func NewBulkCache(url, token string, timeout time.Duration) *BulkCache {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BulkCache{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Refresh 拉取整表并原子替换内存快照
func (b *BulkCache) Refresh(ctx context.Context) error {
	url := b.url
	if b.token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + b.token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bulk listing http %d: %s", resp.StatusCode, string(body))
	}

	var listing bulkListingResp
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return err
	}

	table := make(map[string]float64, len(listing.Data))
	for _, item := range listing.Data {
		sym := normalizeBulkSymbol(item.RawSymbol)
		if sym == "" {
			continue
		}
		price, err := strconv.ParseFloat(item.Ask.String(), 64)
		if err != nil || price <= 0 {
			continue // 单条坏数据不影响其余条目
		}
		table[sym] = price
	}

	b.snap.Store(&bulkSnapshot{asOf: time.Now(), table: table})

	log.Debug().Int("symbols", len(table)).Msg("bulk quote table refreshed")
	return nil
}

// Quote serves from the current snapshot. Before the first successful
// refresh it triggers one on-demand refresh so a cold start does not
// answer unavailable for a whole interval.
func (b *BulkCache) Quote(ctx context.Context, symbol string) (float64, error) {
	snap := b.snap.Load()
	if snap == nil {
		b.refreshMu.Lock()
		if b.snap.Load() == nil {
			if err := b.Refresh(ctx); err != nil {
				b.refreshMu.Unlock()
				return 0, fmt.Errorf("%w: cold refresh failed: %v", port.ErrQuoteUnavailable, err)
			}
		}
		b.refreshMu.Unlock()
		snap = b.snap.Load()
	}

	price, ok := snap.table[normalizeBulkSymbol(symbol)]
	if !ok {
		return 0, fmt.Errorf("%w: %s not in bulk table", port.ErrQuoteUnavailable, symbol)
	}
	return price, nil
}

// AsOf reports when the current table was fetched; zero before the
// first successful refresh.
func (b *BulkCache) AsOf() time.Time {
	if snap := b.snap.Load(); snap != nil {
		return snap.asOf
	}
	return time.Time{}
}

// normalizeBulkSymbol 上游原始符号带 ".XX" 后缀，截断后再比对
func normalizeBulkSymbol(raw string) string {
	sym, _, _ := strings.Cut(strings.TrimSpace(raw), ".")
	return strings.ToUpper(sym)
}

var (
	_ port.QuoteSource = (*BulkCache)(nil)
	_ port.Refresher   = (*BulkCache)(nil)
)
