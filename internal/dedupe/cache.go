// ABOUTME: Thread-safe TTL cache remembering the result of idempotent requests.
// ABOUTME: Maps an idempotency key to the ID of the message it produced.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is how long an idempotency key is remembered.
const DefaultTTL = 10 * time.Minute

// DefaultMaxSize bounds the number of remembered keys.
const DefaultMaxSize = 10000

type entry struct {
	value    string
	storedAt time.Time
	element  *list.Element
}

// Cache remembers key→value pairs for a fixed TTL, evicting the oldest entry
// when full. Keys are ordered by insertion in a linked list so eviction is O(1).
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size.
// Non-positive values select DefaultTTL and DefaultMaxSize.
// A background goroutine periodically removes expired entries until Close.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Key builds a cache key scoped to a sender and thread so that two callers
// reusing the same idempotency key never see each other's results.
func Key(senderID, threadID, idempotencyKey string) string {
	return senderID + "\x00" + threadID + "\x00" + idempotencyKey
}

// Lookup returns the value remembered for key, if it has not expired.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return "", false
	}
	return e.value, true
}

// Remember stores value under key, replacing any earlier value.
// If the cache is at capacity, the oldest entry is evicted to make room.
func (c *Cache) Remember(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, exists := c.entries[key]; exists {
		e.value = value
		e.storedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &entry{value: value, storedAt: now, element: elem}
}

// Len returns the number of entries currently held, including expired ones
// not yet cleaned up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops every expired entry.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
