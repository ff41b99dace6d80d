package gateway

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/observ"
)

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a bounded TTL store. Entries are evicted oldest-insertion-first
// once maxEntries is reached; expired entries are dropped lazily on Get.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion
	maxEntries int
	now        func() time.Time
}

func NewCache(maxEntries int, now func() time.Time) *Cache {
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        now,
	}
}

// keyKind is the prefix before the first ':' ("quote", "history", "search").
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// Get returns the value stored under key unless it has expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		observ.IncCounter("cache_miss_total", map[string]string{"kind": keyKind(key)})
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(el)
		observ.IncCounter("cache_expired_total", map[string]string{"kind": keyKind(key)})
		observ.IncCounter("cache_miss_total", map[string]string{"kind": keyKind(key)})
		return nil, false
	}
	observ.IncCounter("cache_hit_total", map[string]string{"kind": keyKind(key)})
	return entry.value, true
}

// Set stores value for ttl. Re-setting a key moves it to the newest position.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	if ttl <= 0 {
		return
	}

	for c.order.Len() >= c.maxEntries {
		oldest := c.order.Front()
		c.removeElement(oldest)
		observ.IncCounter("cache_evictions_total", map[string]string{"kind": keyKind(oldest.Value.(*cacheEntry).key)})
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, value: value, expiresAt: c.now().Add(ttl)})
	observ.SetGauge("cache_size", float64(c.order.Len()), nil)
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	observ.SetGauge("cache_size", 0, nil)
}

// Len counts stored entries, including expired ones not yet collected.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys lists live keys, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*cacheEntry)
		if now.Before(entry.expiresAt) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

func (c *Cache) removeElement(el *list.Element) {
	entry := c.order.Remove(el).(*cacheEntry)
	delete(c.entries, entry.key)
}
