package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrPacingWait means the provider's own pacer could not admit a call before
// the caller's deadline. The upstream was never reached, so it says nothing
// about upstream health and is not worth retrying.
var ErrPacingWait = errors.New("provider pacing wait exceeds deadline")

// ErrorKind classifies upstream failures.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "upstream_timeout"
	KindRejected   ErrorKind = "upstream_rejected"  // 429/5xx or a throttling notice in the body
	KindMalformed  ErrorKind = "malformed_payload"  // body could not be decoded or failed validation
	KindBadRequest ErrorKind = "bad_request"        // 4xx, unknown symbol, invalid parameters
)

// UpstreamError represents a failed provider call.
type UpstreamError struct {
	Kind     ErrorKind
	Provider string
	Symbol   string
	Message  string
	Status   int
	Cause    error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s from %s for %s: %s (%v)", e.Kind, e.Provider, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s from %s for %s: %s", e.Kind, e.Provider, e.Symbol, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// Retryable reports whether repeating the same request may succeed.
func (e *UpstreamError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindRejected
}

func NewTimeoutError(provider, symbol string, cause error) *UpstreamError {
	return &UpstreamError{Kind: KindTimeout, Provider: provider, Symbol: symbol, Message: "request timed out", Cause: cause}
}

func NewRejectedError(provider, symbol string, status int, message string) *UpstreamError {
	return &UpstreamError{Kind: KindRejected, Provider: provider, Symbol: symbol, Status: status, Message: message}
}

func NewMalformedError(provider, symbol, message string, cause error) *UpstreamError {
	return &UpstreamError{Kind: KindMalformed, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func NewBadRequestError(provider, symbol string, status int, message string) *UpstreamError {
	return &UpstreamError{Kind: KindBadRequest, Provider: provider, Symbol: symbol, Status: status, Message: message}
}

// IsRetryable reports whether err is worth another attempt. Unknown errors
// (transport failures without a classification) are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrPacingWait) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return true
}

// KindOf returns the classification of err, or "" when it is not an upstream error.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// classifyTransport maps an http.Client error to the taxonomy.
func classifyTransport(provider, symbol string, err error) *UpstreamError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return NewTimeoutError(provider, symbol, err)
	}
	return &UpstreamError{Kind: KindRejected, Provider: provider, Symbol: symbol, Message: "transport failure", Cause: err}
}

// classifyStatus maps a non-2xx status to the taxonomy.
func classifyStatus(provider, symbol string, status int, body string) *UpstreamError {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return NewRejectedError(provider, symbol, status, fmt.Sprintf("HTTP %d: %s", status, body))
	default:
		return NewBadRequestError(provider, symbol, status, fmt.Sprintf("HTTP %d: %s", status, body))
	}
}
