package port

import (
	"context"

	"marksync/internal/domain/model"
)

// PositionRepository is the external position store seen from the sync core.
// The core never creates or deletes positions, it only lists open ones and
// writes back the freshly observed mark price.
type PositionRepository interface {
	// ListOpen returns positions in scope with no exit price and no exit date.
	ListOpen(ctx context.Context, scope string) ([]model.Position, error)

	// UpdateCurrentPrice is best-effort; a failure is logged by the caller
	// and the position retried on the next tick.
	UpdateCurrentPrice(ctx context.Context, id string, price float64) error

	// Connection management
	Close() error
}
