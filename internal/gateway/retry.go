package gateway

import (
	"context"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// Retry repeats a call on retryable upstream errors.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
	Linear      bool // wait Delay*attempt instead of Delay
}

// Do invokes fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is exhausted, in which case the last error is returned.
func (r Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !adapters.IsRetryable(err) {
			return err
		}

		wait := r.Delay
		if r.Linear {
			wait = r.Delay * time.Duration(attempt)
		}
		observ.IncCounter("upstream_retry_total", map[string]string{"kind": string(adapters.KindOf(err))})
		observ.Debug("upstream_retry", map[string]any{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
