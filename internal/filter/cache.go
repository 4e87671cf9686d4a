package filter

import (
	"sync"
	"time"

	"metamcp/internal/store"
)

// DefaultCacheTTL bounds how long a cached tool status is trusted.
const DefaultCacheTTL = time.Second

type cacheKey struct {
	namespaceUUID string
	serverUUID    string
	toolName      string
}

type cacheEntry struct {
	status    store.Status
	expiresAt time.Time
}

// Cache is a TTL cache over (namespace, server, tool) → status lookups.
// Expired entries are purged lazily on read.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache. ttl <= 0 falls back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached status, or false on miss or expiry.
func (c *Cache) Get(namespaceUUID, serverUUID, toolName string) (store.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{namespaceUUID, serverUUID, toolName}
	entry, ok := c.entries[key]
	if !ok {
		return store.StatusAbsent, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return store.StatusAbsent, false
	}
	return entry.status, true
}

// Set caches a status for the configured TTL.
func (c *Cache) Set(namespaceUUID, serverUUID, toolName string, status store.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{namespaceUUID, serverUUID, toolName}] = cacheEntry{
		status:    status,
		expiresAt: c.now().Add(c.ttl),
	}
}

// ClearNamespace drops every entry belonging to one namespace.
func (c *Cache) ClearNamespace(namespaceUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.namespaceUUID == namespaceUUID {
			delete(c.entries, key)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
