package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marksync/internal/application/port"
)

// DirectClient 实时行情 REST 客户端（每次查询一个符号）
type DirectClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// lastTradeResp covers both response shapes the upstream may return:
// {"results":{"p":N}} or {"last":{"price":N}}.
type lastTradeResp struct {
	Results *struct {
		Price *float64 `json:"p"`
	} `json:"results"`
	Last *struct {
		Price *float64 `json:"price"`
	} `json:"last"`
}

func NewDirectClient(baseURL, apiKey string, timeout time.Duration) *DirectClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &DirectClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Quote 查询单个符号的最新成交价
// No retry here: a failed call resolves to unavailable and the scheduler
// retries on its next tick.
func (c *DirectClient) Quote(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/v2/last/trade/%s?apiKey=%s", c.baseURL, symbol, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrQuoteUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: http %d: %s", port.ErrQuoteUnavailable, resp.StatusCode, string(body))
	}

	var result lastTradeResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrQuoteUnavailable, err)
	}

	var price float64
	switch {
	case result.Results != nil && result.Results.Price != nil:
		price = *result.Results.Price
	case result.Last != nil && result.Last.Price != nil:
		price = *result.Last.Price
	default:
		return 0, fmt.Errorf("%w: no price in response for %s", port.ErrQuoteUnavailable, symbol)
	}

	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %v for %s", port.ErrQuoteUnavailable, price, symbol)
	}
	return price, nil
}

var _ port.QuoteSource = (*DirectClient)(nil)
