package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"marksync/internal/application/port"
	"marksync/internal/domain/model"
)

// quoteRouter is what the syncer needs from the router.
type quoteRouter interface {
	Quote(ctx context.Context, market, symbol string) (float64, error)
}

// PriceSyncer 持仓价格同步器：每个 tick 拉一次未平仓快照，逐条取价回写
type PriceSyncer struct {
	repo   port.PositionRepository
	router quoteRouter
}

func NewPriceSyncer(repo port.PositionRepository, router quoteRouter) *PriceSyncer {
	return &PriceSyncer{repo: repo, router: router}
}

// SyncOnce runs one full tick for scope: fresh candidate listing, then a
// per-item fetch-and-writeback where every failure is captured on its own
// and never aborts the rest of the tick.
func (s *PriceSyncer) SyncOnce(ctx context.Context, scope string) model.TickSummary {
	summary := model.TickSummary{Scope: scope}

	positions, err := s.repo.ListOpen(ctx, scope)
	if err != nil {
		log.Error().Str("scope", scope).Err(err).Msg("list open positions failed")
		return summary
	}
	if len(positions) == 0 {
		log.Debug().Str("scope", scope).Msg("no open positions")
		return summary
	}

	for i := range positions {
		pos := &positions[i]
		if !pos.Open() {
			// listing should already filter, re-check anyway
			continue
		}
		summary.Attempted++

		price, err := s.router.Quote(ctx, pos.Market, pos.Symbol)
		if err != nil {
			summary.Failed++
			if errors.Is(err, port.ErrQuoteUnavailable) {
				log.Debug().Str("scope", scope).Str("symbol", pos.Symbol).Err(err).Msg("quote unavailable")
			} else {
				log.Warn().Str("scope", scope).Str("symbol", pos.Symbol).Err(err).Msg("quote fetch failed")
			}
			continue
		}
		if price <= 0 {
			summary.Failed++
			continue
		}

		if err := s.repo.UpdateCurrentPrice(ctx, pos.ID, price); err != nil {
			summary.Failed++
			log.Warn().Str("scope", scope).Str("id", pos.ID).Err(err).Msg("price writeback failed")
			continue
		}
		summary.Updated++
	}

	log.Info().
		Str("scope", scope).
		Int("attempted", summary.Attempted).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("price sync tick done")

	return summary
}
