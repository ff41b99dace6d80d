package gateway

import (
	"context"
	"errors"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
)

var (
	ErrBreakerOpen   = errors.New("circuit breaker open")
	ErrQueueOverflow = errors.New("request queue full")
	ErrQueueTimeout  = errors.New("request queue wait exceeded")

	// Caller errors; the only failures the facade returns besides a canceled context.
	ErrEmptySymbol   = errors.New("empty symbol")
	ErrInvalidSymbol = errors.New("invalid symbol")
	ErrEmptyQuery    = errors.New("empty search query")
	ErrInvalidRange  = errors.New("invalid range")
)

// fallbackReason labels why real data could not be served.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrBreakerOpen):
		return "breaker_open"
	case errors.Is(err, ErrQueueOverflow):
		return "queue_overflow"
	case errors.Is(err, ErrQueueTimeout):
		return "queue_timeout"
	case errors.Is(err, adapters.ErrPacingWait):
		return "provider_pacing"
	case errors.Is(err, context.DeadlineExceeded):
		return string(adapters.KindTimeout)
	}
	if kind := adapters.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}
