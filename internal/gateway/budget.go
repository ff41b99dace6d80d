package gateway

import (
	"sync"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// RateBudget counts upstream requests in a fixed window that restarts once
// window has elapsed since its start.
type RateBudget struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	used        int
	now         func() time.Time
}

// NewRateBudget creates a budget of limit requests per window.
func NewRateBudget(limit int, window time.Duration, now func() time.Time) *RateBudget {
	if limit <= 0 {
		limit = 8
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &RateBudget{limit: limit, window: window, now: now}
}

// roll starts a new window when the current one has elapsed. Caller holds mu.
func (rb *RateBudget) roll() {
	now := rb.now()
	if rb.windowStart.IsZero() || now.Sub(rb.windowStart) >= rb.window {
		if rb.used > 0 {
			observ.Debug("rate_budget_reset", map[string]any{"used": rb.used, "limit": rb.limit})
		}
		rb.windowStart = now
		rb.used = 0
	}
}

// TryAcquire consumes one request from the window if any remain.
func (rb *RateBudget) TryAcquire() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.roll()
	if rb.used >= rb.limit {
		observ.IncCounter("rate_budget_denied_total", nil)
		return false
	}
	rb.used++
	observ.IncCounter("rate_budget_granted_total", nil)
	observ.SetGauge("rate_budget_window_usage", float64(rb.used), nil)
	return true
}

// CanAcquire reports whether TryAcquire would succeed, without consuming.
func (rb *RateBudget) CanAcquire() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.roll()
	return rb.used < rb.limit
}

// Used returns the requests consumed in the current window.
func (rb *RateBudget) Used() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.roll()
	return rb.used
}

func (rb *RateBudget) Limit() int { return rb.limit }
