package filter

import (
	"testing"
	"time"

	"metamcp/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetSet(t *testing.T) {
	cache := NewCache(time.Second)

	_, ok := cache.Get("ns", "s1", "tool")
	assert.False(t, ok)

	cache.Set("ns", "s1", "tool", store.StatusInactive)
	status, ok := cache.Get("ns", "s1", "tool")
	assert.True(t, ok)
	assert.Equal(t, store.StatusInactive, status)

	// Absent is cacheable too; a miss and a cached absent are distinct.
	cache.Set("ns", "s1", "unmapped", store.StatusAbsent)
	status, ok = cache.Get("ns", "s1", "unmapped")
	assert.True(t, ok)
	assert.Equal(t, store.StatusAbsent, status)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(time.Second)

	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Set("ns", "s1", "tool", store.StatusActive)

	current = current.Add(500 * time.Millisecond)
	_, ok := cache.Get("ns", "s1", "tool")
	assert.True(t, ok)

	current = current.Add(600 * time.Millisecond)
	_, ok = cache.Get("ns", "s1", "tool")
	assert.False(t, ok)

	// The expired entry was purged, not just hidden.
	assert.Zero(t, cache.Len())
}

func TestCacheClearNamespace(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("ns1", "s1", "a", store.StatusActive)
	cache.Set("ns1", "s2", "b", store.StatusInactive)
	cache.Set("ns2", "s1", "a", store.StatusActive)

	cache.ClearNamespace("ns1")

	_, ok := cache.Get("ns1", "s1", "a")
	assert.False(t, ok)
	_, ok = cache.Get("ns1", "s2", "b")
	assert.False(t, ok)
	_, ok = cache.Get("ns2", "s1", "a")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("ns1", "s1", "a", store.StatusActive)
	cache.Set("ns2", "s1", "a", store.StatusActive)

	cache.Clear()
	assert.Zero(t, cache.Len())
}

func TestCacheDefaultTTL(t *testing.T) {
	cache := NewCache(0)
	assert.Equal(t, DefaultCacheTTL, cache.ttl)
}
