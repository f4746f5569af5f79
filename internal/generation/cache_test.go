// ABOUTME: Tests for the generation response cache
// ABOUTME: Validates TTL expiration, size limits, eviction, counters and concurrency safety

package generation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMiss(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Get("never-seen-key")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Misses)
}

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Set("k", Response{Text: "hello", Provider: "p1"})

	resp, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "p1", resp.Provider)
	assert.Equal(t, int64(1), cache.Stats().Hits)
}

func TestCache_Expired(t *testing.T) {
	cache := NewCache(time.Minute, 100)
	defer cache.Close()

	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Set("expiring", Response{Text: "x"})

	_, ok := cache.Peek("expiring")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Peek("expiring")
	assert.False(t, ok, "entry should expire after TTL")

	cache.runCleanup()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestCache_EvictsOldest(t *testing.T) {
	cache := NewCache(5*time.Minute, 3)
	defer cache.Close()

	cache.Set("key-1", Response{Text: "1"})
	cache.Set("key-2", Response{Text: "2"})
	cache.Set("key-3", Response{Text: "3"})
	cache.Set("key-4", Response{Text: "4"})

	_, ok := cache.Peek("key-1")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"key-2", "key-3", "key-4"} {
		_, ok := cache.Peek(k)
		assert.True(t, ok, k)
	}
}

func TestCache_OverwriteLastWriterWins(t *testing.T) {
	cache := NewCache(5*time.Minute, 10)
	defer cache.Close()

	cache.Set("k", Response{Text: "first"})
	cache.Set("k", Response{Text: "second"})

	resp, ok := cache.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "second", resp.Text)
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(5*time.Minute, 50)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%10)
				cache.Set(key, Response{Text: key})
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 50)
}

func TestCache_CloseTwice(t *testing.T) {
	cache := NewCache(time.Minute, 1)
	cache.Close()
	assert.NotPanics(t, cache.Close)
}
