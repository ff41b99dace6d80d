package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// BreakerState represents the current circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// Upstream endpoint categories, one breaker each.
const (
	EndpointQuotes  = "quotes"
	EndpointHistory = "history"
	EndpointSearch  = "search"
)

// CircuitState is a point-in-time view of one breaker.
type CircuitState struct {
	Endpoint            string       `json:"endpoint"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenUntil           time.Time    `json:"open_until,omitempty"`
}

// Breaker fails fast after threshold consecutive failures, then lets a
// single trial call through once openTimeout has passed.
type Breaker struct {
	mu          sync.Mutex
	endpoint    string
	threshold   int
	openTimeout time.Duration
	now         func() time.Time

	state          BreakerState
	stateEnteredAt time.Time
	failures       int
	openUntil      time.Time
	trialInFlight  bool
}

func NewBreaker(endpoint string, threshold int, openTimeout time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		endpoint:       endpoint,
		threshold:      threshold,
		openTimeout:    openTimeout,
		now:            now,
		state:          StateClosed,
		stateEnteredAt: now(),
	}
}

// Allow reports whether a call made now would reach the upstream.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return !b.now().Before(b.openUntil)
	case StateHalfOpen:
		return !b.trialInFlight
	}
	return true
}

// Call runs fn unless the breaker is open and records the outcome. fn's
// error is returned unchanged. Errors caused by ctx ending or by local
// pacing are not counted, and bad-request errors count as a healthy upstream.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.before()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.after(ctx, trial, err)
	return err
}

func (b *Breaker) before() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.openUntil) {
			observ.IncCounter("breaker_rejected_total", map[string]string{"endpoint": b.endpoint})
			return false, ErrBreakerOpen
		}
		b.setState(StateHalfOpen, "open_timeout_elapsed")
		b.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if b.trialInFlight {
			observ.IncCounter("breaker_rejected_total", map[string]string{"endpoint": b.endpoint})
			return false, ErrBreakerOpen
		}
		b.trialInFlight = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) after(ctx context.Context, trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	if err != nil && ctx.Err() != nil {
		// caller gave up; says nothing about upstream health
		return
	}
	if errors.Is(err, adapters.ErrPacingWait) {
		return
	}

	// A call admitted while CLOSED that finishes after a trip does not
	// move the breaker.
	if !trial && b.state != StateClosed {
		return
	}

	// the upstream answered; a rejected symbol is not an outage
	if err == nil || adapters.KindOf(err) == adapters.KindBadRequest {
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed, "trial_succeeded")
		}
		return
	}

	b.failures++
	observ.IncCounter("breaker_failures_total", map[string]string{"endpoint": b.endpoint})
	switch {
	case trial:
		b.trip("trial_failed")
	case b.failures >= b.threshold:
		b.trip("threshold_reached")
	}
}

func (b *Breaker) trip(reason string) {
	b.openUntil = b.now().Add(b.openTimeout)
	b.setState(StateOpen, reason)
}

// setState records a transition. Caller holds mu.
func (b *Breaker) setState(newState BreakerState, reason string) {
	previous := b.state
	previousAt := b.stateEnteredAt
	b.state = newState
	b.stateEnteredAt = b.now()

	observ.Observe("breaker_state_duration_seconds", b.stateEnteredAt.Sub(previousAt).Seconds(),
		map[string]string{"endpoint": b.endpoint, "state": string(previous)})
	observ.SetGauge("breaker_state", stateToFloat(newState), map[string]string{"endpoint": b.endpoint})
	observ.IncCounter("breaker_transitions_total", map[string]string{
		"endpoint": b.endpoint,
		"from":     string(previous),
		"to":       string(newState),
	})

	kv := map[string]any{
		"endpoint":             b.endpoint,
		"from":                 string(previous),
		"to":                   string(newState),
		"reason":               reason,
		"consecutive_failures": b.failures,
	}
	if newState == StateOpen {
		kv["open_until"] = b.openUntil
		observ.Warn("breaker_state_changed", kv)
		return
	}
	observ.Log("breaker_state_changed", kv)
}

func stateToFloat(s BreakerState) float64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	}
	return 0
}

// State returns a snapshot.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs := CircuitState{
		Endpoint:            b.endpoint,
		State:               b.state,
		ConsecutiveFailures: b.failures,
	}
	if b.state == StateOpen {
		cs.OpenUntil = b.openUntil
	}
	return cs
}

// BreakerSet holds one breaker per endpoint category.
type BreakerSet struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	threshold   int
	openTimeout time.Duration
	now         func() time.Time
}

// NewBreakerSet creates a set with breakers for endpoints already in place.
func NewBreakerSet(threshold int, openTimeout time.Duration, now func() time.Time, endpoints ...string) *BreakerSet {
	s := &BreakerSet{
		breakers:    make(map[string]*Breaker),
		threshold:   threshold,
		openTimeout: openTimeout,
		now:         now,
	}
	for _, ep := range endpoints {
		s.Get(ep)
	}
	return s
}

// Get returns the breaker for endpoint, creating it on first use.
func (s *BreakerSet) Get(endpoint string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[endpoint]
	if !ok {
		b = NewBreaker(endpoint, s.threshold, s.openTimeout, s.now)
		s.breakers[endpoint] = b
	}
	return b
}

// States returns every breaker's snapshot ordered by endpoint.
func (s *BreakerSet) States() []CircuitState {
	s.mu.Lock()
	breakers := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		breakers = append(breakers, b)
	}
	s.mu.Unlock()

	out := make([]CircuitState, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
