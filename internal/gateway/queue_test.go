package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/observ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateBudgetWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	rb := NewRateBudget(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, rb.TryAcquire(), "grant %d", i+1)
	}
	assert.False(t, rb.TryAcquire(), "limit+1 denied")
	assert.False(t, rb.CanAcquire())
	assert.Equal(t, 3, rb.Used())

	clock.Advance(59 * time.Second)
	assert.False(t, rb.TryAcquire(), "same window")

	clock.Advance(time.Second)
	assert.True(t, rb.CanAcquire())
	assert.Equal(t, 0, rb.Used(), "window elapsed")
	assert.True(t, rb.TryAcquire())
	assert.Equal(t, 1, rb.Used())
	assert.Equal(t, 3, rb.Limit())
}

func TestRateBudgetCanAcquireDoesNotConsume(t *testing.T) {
	rb := NewRateBudget(1, time.Minute, nil)
	for i := 0; i < 5; i++ {
		assert.True(t, rb.CanAcquire())
	}
	assert.Equal(t, 0, rb.Used())
}

// waitDepth polls until the queue holds n waiters.
func waitDepth(t *testing.T, q *RequestQueue, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return q.Depth() == n }, time.Second, time.Millisecond)
}

func TestQueueLimitPlusOneIsQueued(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	rb := NewRateBudget(2, time.Minute, clock.Now)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 4, MaxWait: 5 * time.Second, Tick: time.Hour}, clock.Now)
	ctx := context.Background()

	require.NoError(t, q.Acquire(ctx))
	require.NoError(t, q.Acquire(ctx))

	done := make(chan error, 1)
	go func() { done <- q.Acquire(ctx) }()
	waitDepth(t, q, 1)

	select {
	case <-done:
		t.Fatal("third request granted inside the window")
	default:
	}

	assert.False(t, q.drainOnce(), "budget still exhausted")
	clock.Advance(time.Minute)
	assert.True(t, q.drainOnce())

	require.NoError(t, <-done)
	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, 1, rb.Used(), "drained slot counted in the new window")
}

func TestQueueFIFO(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	rb := NewRateBudget(1, time.Minute, clock.Now)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 8, MaxWait: 5 * time.Second, Tick: time.Hour}, clock.Now)
	require.NoError(t, q.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := q.Acquire(context.Background()); err == nil {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}
		}(i)
		waitDepth(t, q, i+1)
	}

	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		require.True(t, q.drainOnce())
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == i+1
		}, time.Second, time.Millisecond)
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestQueueOverflow(t *testing.T) {
	rb := NewRateBudget(1, time.Hour, nil)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 1, MaxWait: time.Second, Tick: time.Hour}, nil)
	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Acquire(ctx) }()
	waitDepth(t, q, 1)

	assert.ErrorIs(t, q.Acquire(context.Background()), ErrQueueOverflow)
}

func TestQueueTimeout(t *testing.T) {
	rb := NewRateBudget(1, time.Hour, nil)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 4, MaxWait: 30 * time.Millisecond, Tick: time.Hour}, nil)
	require.NoError(t, q.Acquire(context.Background()))

	start := time.Now()
	err := q.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, q.Depth(), "timed-out item released its slot")
	assert.Equal(t, 1, rb.Used())
}

func TestQueueCancelReleasesSlotWithoutBudget(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	rb := NewRateBudget(1, time.Minute, clock.Now)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 4, MaxWait: 5 * time.Second, Tick: time.Hour}, clock.Now)
	require.NoError(t, q.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Acquire(ctx) }()
	waitDepth(t, q, 1)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, 1, rb.Used(), "budget untouched by the canceled waiter")

	clock.Advance(time.Minute)
	assert.False(t, q.drainOnce(), "nothing left to grant")
	assert.Equal(t, 0, rb.Used())
}

func TestQueueGrantRacingCancelIsDiscarded(t *testing.T) {
	observ.Reset()
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	rb := NewRateBudget(1, time.Minute, clock.Now)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 4, MaxWait: 5 * time.Second, Tick: time.Hour}, clock.Now)

	item := &queueItem{id: "late", enqueuedAt: clock.Now(), grant: make(chan struct{})}
	el := q.items.PushBack(item)
	require.True(t, q.drainOnce())

	assert.False(t, q.withdraw(el), "already granted")
	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, 1, rb.Used(), "the grant spent its slot")
	assert.EqualValues(t, 1, observ.CounterValue("queue_grant_discarded_total", nil))
	assert.Zero(t, observ.CounterValue("queue_canceled_total", nil))

	pending := q.items.PushBack(&queueItem{id: "waiting", enqueuedAt: clock.Now(), grant: make(chan struct{})})
	assert.True(t, q.withdraw(pending))
	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, 1, rb.Used())
	assert.EqualValues(t, 1, observ.CounterValue("queue_canceled_total", nil))
}

func TestQueueRunDrains(t *testing.T) {
	rb := NewRateBudget(1, 20*time.Millisecond, nil)
	q := NewRequestQueue(rb, QueueConfig{MaxDepth: 4, MaxWait: 2 * time.Second, Tick: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Acquire(context.Background()), "acquire %d", i)
	}
}

func TestQueueAcquireCanceledContext(t *testing.T) {
	rb := NewRateBudget(1, time.Minute, nil)
	q := NewRequestQueue(rb, QueueConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Acquire(ctx), context.Canceled)
	assert.Equal(t, 0, rb.Used())
}
