package port

import (
	"context"
	"errors"
)

// ErrQuoteUnavailable marks a quote that could not be produced: symbol not
// found, upstream error or timeout, malformed body. Callers skip and retry
// on the next tick; nothing behind this error is fatal.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// QuoteSource resolves a normalized symbol to its latest price.
// Implementations must collapse every transport failure into
// ErrQuoteUnavailable (wrapped is fine) and never return a zero price
// for a miss.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// Refresher is implemented by sources that maintain a bulk table
// (scheduled wholesale refresh instead of per-symbol calls).
type Refresher interface {
	Refresh(ctx context.Context) error
}
