package model

import "time"

// Decision 限流判定结果
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Identity  string    `json:"identity"`
	Limit     int       `json:"limit"`
	Current   int64     `json:"current"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter returns how long the caller should wait before the next
// window opens, rounded up to whole seconds. Zero when allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	return wait
}
