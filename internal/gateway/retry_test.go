package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
)

func TestRetry(t *testing.T) {
	timeout := adapters.NewTimeoutError("test", "AAPL", context.DeadlineExceeded)
	badRequest := adapters.NewBadRequestError("test", "AAPL", 400, "bad")
	malformed := adapters.NewMalformedError("test", "AAPL", "garbage", nil)

	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"first try succeeds", []error{nil}, 1, nil},
		{"timeout then success", []error{timeout, nil}, 2, nil},
		{"rejected until exhausted", []error{errUpstreamDown, errUpstreamDown, errUpstreamDown}, 3, errUpstreamDown},
		{"bad request not retried", []error{badRequest}, 1, badRequest},
		{"malformed not retried", []error{malformed}, 1, malformed},
		{"unclassified error retried", []error{errors.New("boom"), nil}, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry{MaxAttempts: 3}.Do(context.Background(), func(context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Retry{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errUpstreamDown
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errUpstreamDown)
}

func TestRetryLinearBackoff(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Retry{MaxAttempts: 3, Delay: 10 * time.Millisecond, Linear: true}.Do(context.Background(), func(context.Context) error {
		calls++
		return errUpstreamDown
	})
	assert.ErrorIs(t, err, errUpstreamDown)
	assert.Equal(t, 3, calls)
	// waits 10ms then 20ms
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry{MaxAttempts: 5, Delay: time.Hour}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errUpstreamDown
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
