package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
)

// StreamFeed 流式行情源：websocket 推送维护一张实时价格表
// Unlike BulkCache there is no scheduled refresh; the table is updated
// tick by tick as messages arrive.
type StreamFeed struct {
	wsURL   string
	symbols []string

	mu    sync.RWMutex
	table map[string]float64
}

type streamCombined struct {
	Stream string        `json:"stream"`
	Data   streamMiniMsg `json:"data"`
}
type streamMiniMsg struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

func NewStreamFeed(wsURL string, symbols []string) *StreamFeed {
	return &StreamFeed{
		wsURL:   strings.TrimSpace(wsURL),
		symbols: symbols,
		table:   make(map[string]float64),
	}
}

// Quote 读实时表，未收到过该符号的推送则视为不可用
func (f *StreamFeed) Quote(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	price, ok := f.table[strings.ToUpper(symbol)]
	f.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s not seen on stream", port.ErrQuoteUnavailable, symbol)
	}
	return price, nil
}

// Run connects and keeps the table updated until ctx is cancelled,
// reconnecting with exponential backoff on any failure.
func (f *StreamFeed) Run(ctx context.Context) {
	wsURL, err := buildStreamURL(f.wsURL, f.symbols)
	if err != nil {
		log.Error().Err(err).Msg("stream feed disabled: bad url")
		return
	}

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("stream dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("url", f.wsURL).Msg("stream connected")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg streamCombined
			if e := json.Unmarshal(b, &msg); e != nil {
				log.Error().Err(e).Msg("stream json unmarshal failed")
				return
			}
			sym := strings.ToUpper(strings.TrimSpace(msg.Data.Symbol))
			px, e := strconv.ParseFloat(strings.TrimSpace(msg.Data.Close), 64)
			if sym == "" || e != nil || px <= 0 {
				return
			}
			f.mu.Lock()
			f.table[sym] = px
			f.mu.Unlock()
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Msg("stream disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func buildStreamURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("stream ws url empty")
	}
	if len(symbols) == 0 {
		return "", errors.New("stream symbols empty")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@miniTicker", s))
	}
	if len(streams) == 0 {
		return "", errors.New("no valid stream symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
			if err != nil {
				errCh <- err
				return
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.QuoteSource = (*StreamFeed)(nil)
