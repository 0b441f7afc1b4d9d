package port

import (
	"context"
	"time"
)

// WindowStore counts requests per (identity, fixed time bucket).
type WindowStore interface {
	// Incr atomically increments the counter for identity in the bucket
	// containing now and reports the count after the increment plus the
	// instant the bucket expires. Counts never decrease within a bucket.
	Incr(ctx context.Context, identity string, window time.Duration) (count int64, resetAt time.Time, err error)
}
