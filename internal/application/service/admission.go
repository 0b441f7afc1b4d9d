package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
	"marksync/internal/domain/model"
)

// AdmissionGate 请求准入判定：固定窗口计数限流
// Several named gates (default, strict, ip-only) are independent
// instances sharing the same store mechanism with different limits.
type AdmissionGate struct {
	name   string
	store  port.WindowStore
	limit  int
	window time.Duration
}

func NewAdmissionGate(name string, store port.WindowStore, limit int, window time.Duration) *AdmissionGate {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Second
	}
	return &AdmissionGate{name: name, store: store, limit: limit, window: window}
}

func (g *AdmissionGate) Name() string          { return g.name }
func (g *AdmissionGate) Limit() int            { return g.limit }
func (g *AdmissionGate) Window() time.Duration { return g.window }

// Evaluate counts this request against identity's current window.
// A store error fails open: throttling must never take down all
// traffic, so the request is allowed and the error logged.
func (g *AdmissionGate) Evaluate(ctx context.Context, identity string) model.Decision {
	if identity == "" {
		identity = "unknown"
	}

	count, resetAt, err := g.store.Incr(ctx, identity, g.window)
	if err != nil {
		log.Error().Str("gate", g.name).Str("identity", identity).Err(err).Msg("window store error, failing open")
		return model.Decision{
			Allowed:   true,
			Identity:  identity,
			Limit:     g.limit,
			Remaining: int64(g.limit),
			ResetAt:   time.Now().Add(g.window),
		}
	}

	remaining := int64(g.limit) - count
	if remaining < 0 {
		remaining = 0
	}

	d := model.Decision{
		Allowed:   count <= int64(g.limit),
		Identity:  identity,
		Limit:     g.limit,
		Current:   count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		log.Info().
			Str("gate", g.name).
			Str("identity", identity).
			Int64("current", count).
			Int("limit", g.limit).
			Msg("rate limit exceeded")
	}
	return d
}
