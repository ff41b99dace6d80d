package gateway

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCacheGetSet(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	c := NewCache(10, clock.Now)

	_, ok := c.Get("quote:AAPL")
	assert.False(t, ok)

	c.Set("quote:AAPL", 1.5, 20*time.Second)
	v, ok := c.Get("quote:AAPL")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	clock.Advance(19 * time.Second)
	_, ok = c.Get("quote:AAPL")
	assert.True(t, ok, "still inside ttl")

	clock.Advance(time.Second)
	_, ok = c.Get("quote:AAPL")
	assert.False(t, ok, "expired exactly at ttl")
	assert.Equal(t, 0, c.Len(), "expired entry dropped on read")
}

func TestCacheEvictsOldestInsertion(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	c := NewCache(3, clock.Now)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)
	c.Set("a", 10, time.Minute) // refresh moves a to the newest slot
	c.Set("d", 4, time.Minute)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "b was the oldest insertion")
	assert.Equal(t, []string{"c", "a", "d"}, c.Keys())

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
}

func TestCacheKeysSkipExpired(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	c := NewCache(10, clock.Now)
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"long"}, c.Keys())
	assert.Equal(t, 2, c.Len(), "lazy deletion keeps it until read")
}

func TestCacheDeleteClearAndZeroTTL(t *testing.T) {
	c := NewCache(10, nil)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", 3, 0)
	_, ok = c.Get("b")
	assert.False(t, ok, "non-positive ttl removes the key")

	c.Set("c", 1, time.Minute)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(50, nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (w*200+i)%80)
				c.Set(key, i, time.Minute)
				c.Get(key)
				c.Keys()
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestKeyKind(t *testing.T) {
	assert.Equal(t, "quote", keyKind("quote:AAPL"))
	assert.Equal(t, "history", keyKind("history:AAPL:1D"))
	assert.Equal(t, "other", keyKind("plain"))
}
