// ABOUTME: Tests for the idempotency cache.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Lookup_NotSeen(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Lookup("never-seen-key")
	assert.False(t, ok)
}

func TestCache_RememberAndLookup(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Remember("my-key", "msg-1")

	value, ok := cache.Lookup("my-key")
	assert.True(t, ok)
	assert.Equal(t, "msg-1", value)
}

func TestCache_Lookup_Expired(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Remember("expiring-key", "msg-1")
	_, ok := cache.Lookup("expiring-key")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = cache.Lookup("expiring-key")
	assert.False(t, ok)
}

func TestCache_Remember_Overwrites(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	cache.Remember("k", "first")
	cache.Remember("k", "second")

	value, _ := cache.Lookup("k")
	assert.Equal(t, "second", value)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	cache := New(time.Minute, 3)
	defer cache.Close()

	cache.Remember("a", "1")
	cache.Remember("b", "2")
	cache.Remember("c", "3")
	cache.Remember("d", "4")

	_, ok := cache.Lookup("a")
	assert.False(t, ok, "oldest entry should be evicted")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := cache.Lookup(k)
		assert.True(t, ok, "key %s should remain", k)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCache_RemoveExpired(t *testing.T) {
	cache := New(time.Minute, 100)
	defer cache.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Remember("old", "1")
	now = now.Add(30 * time.Second)
	cache.Remember("new", "2")
	now = now.Add(45 * time.Second)

	cache.removeExpired()

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Lookup("new")
	assert.True(t, ok)
}

func TestCache_Defaults(t *testing.T) {
	cache := New(0, 0)
	defer cache.Close()

	assert.Equal(t, DefaultTTL, cache.ttl)
	assert.Equal(t, DefaultMaxSize, cache.maxSize)
}

func TestKey_ScopesBySenderAndThread(t *testing.T) {
	assert.NotEqual(t, Key("cust-1", "t-1", "k"), Key("cust-2", "t-1", "k"))
	assert.NotEqual(t, Key("cust-1", "t-1", "k"), Key("cust-1", "t-2", "k"))
	assert.Equal(t, Key("cust-1", "t-1", "k"), Key("cust-1", "t-1", "k"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New(time.Minute, 50)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			for j := range 100 {
				key := fmt.Sprintf("key-%d-%d", i, j%10)
				cache.Remember(key, "v")
				cache.Lookup(key)
			}
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 50)
}

func TestCache_Close_Idempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
