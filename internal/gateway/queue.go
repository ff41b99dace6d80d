package gateway

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/marketgate/internal/observ"
)

type queueItem struct {
	id         string
	enqueuedAt time.Time
	grant      chan struct{} // closed when a budget slot is handed over
}

// QueueConfig bounds the request queue.
type QueueConfig struct {
	MaxDepth int
	MaxWait  time.Duration
	Tick     time.Duration
}

// RequestQueue hands out rate-budget slots. Callers that cannot be served
// immediately wait in FIFO order; Run grants at most one waiter per tick.
type RequestQueue struct {
	mu     sync.Mutex
	budget *RateBudget
	items  *list.List
	cfg    QueueConfig
	now    func() time.Time
}

func NewRequestQueue(budget *RateBudget, cfg QueueConfig, now func() time.Time) *RequestQueue {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 32
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 15 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &RequestQueue{budget: budget, items: list.New(), cfg: cfg, now: now}
}

// Acquire blocks until the caller owns one budget slot. It fails with
// ErrQueueOverflow when the queue is full, ErrQueueTimeout after MaxWait,
// or the context error when ctx ends first. A caller that leaves the queue
// never touches the budget.
func (q *RequestQueue) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.items.Len() == 0 && q.budget.TryAcquire() {
		q.mu.Unlock()
		return nil
	}
	if q.items.Len() >= q.cfg.MaxDepth {
		depth := q.items.Len()
		q.mu.Unlock()
		observ.IncCounter("queue_overflow_total", nil)
		observ.Warn("queue_overflow", map[string]any{"depth": depth, "max_depth": q.cfg.MaxDepth})
		return ErrQueueOverflow
	}
	item := &queueItem{id: uuid.NewString(), enqueuedAt: q.now(), grant: make(chan struct{})}
	el := q.items.PushBack(item)
	depth := q.items.Len()
	q.mu.Unlock()

	observ.SetGauge("queue_depth", float64(depth), nil)
	observ.Debug("queue_enqueued", map[string]any{"id": item.id, "depth": depth})

	timer := time.NewTimer(q.cfg.MaxWait)
	defer timer.Stop()

	select {
	case <-item.grant:
		return nil
	case <-timer.C:
		if q.remove(el) {
			observ.IncCounter("queue_timeout_total", nil)
			observ.Warn("queue_timeout", map[string]any{"id": item.id, "waited_ms": q.cfg.MaxWait.Milliseconds()})
			return ErrQueueTimeout
		}
		// granted while the timer fired; the slot is ours
		<-item.grant
		return nil
	case <-ctx.Done():
		q.withdraw(el)
		return ctx.Err()
	}
}

// withdraw takes a canceled caller's item out of the queue. An item granted
// as the context ended keeps its spent budget slot and is counted as
// discarded; the caller still sees its context error.
func (q *RequestQueue) withdraw(el *list.Element) bool {
	if q.remove(el) {
		observ.IncCounter("queue_canceled_total", nil)
		return true
	}
	item := el.Value.(*queueItem)
	observ.IncCounter("queue_grant_discarded_total", nil)
	observ.Debug("queue_grant_discarded", map[string]any{"id": item.id})
	return false
}

// remove takes el out of the queue; false means it was already granted.
func (q *RequestQueue) remove(el *list.Element) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	// a granted item has already left the list
	item := el.Value.(*queueItem)
	select {
	case <-item.grant:
		return false
	default:
	}
	q.items.Remove(el)
	observ.SetGauge("queue_depth", float64(q.items.Len()), nil)
	return true
}

// drainOnce grants the oldest waiter when the budget allows.
func (q *RequestQueue) drainOnce() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil || !q.budget.TryAcquire() {
		return false
	}
	item := q.items.Remove(front).(*queueItem)
	close(item.grant)

	waited := q.now().Sub(item.enqueuedAt)
	observ.RecordDuration("queue_wait", waited, nil)
	observ.SetGauge("queue_depth", float64(q.items.Len()), nil)
	observ.Debug("queue_granted", map[string]any{"id": item.id, "waited_ms": waited.Milliseconds()})
	return true
}

// Run drains the queue every tick until ctx ends.
func (q *RequestQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainOnce()
		}
	}
}

// Depth returns the number of waiting callers.
func (q *RequestQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
