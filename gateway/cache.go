package gateway

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	value     *Response
	expiresAt time.Time
}

// ResponseCache implements spec §4.9: TTL+bounded LRU keyed by an MD5 hash
// of the canonical (endpoint_id, path, sorted-params-JSON) triple. Grounded
// on the teacher's infrastructure/cache/cache.go map+mutex+TTL shape; LRU
// ordering is added here via container/list since the teacher's cache only
// evicts on a cleanup timer, not on insert-when-full, and spec §4.9 prefers
// LRU eviction over FIFO.
type ResponseCache struct {
	mu       sync.Mutex
	maxSize  int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	hits   int64
	misses int64
}

// NewResponseCache constructs a cache bounded to maxSize entries with the
// given default TTL.
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &ResponseCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// CacheKey computes the canonical MD5 key for an endpoint+path+params triple.
func CacheKey(endpointID, path string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	sorted := make([][2]string, len(names))
	for i, n := range names {
		sorted[i] = [2]string{n, params[n]}
	}

	payload, _ := json.Marshal(struct {
		EndpointID string      `json:"endpoint_id"`
		Path       string      `json:"path"`
		Params     [][2]string `json:"params"`
	}{endpointID, path, sorted})

	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for key if present and unexpired.
func (c *ResponseCache) Get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return entry.value, true
}

// Set inserts or replaces key, evicting the least-recently-used entry if
// the cache is full. ttlOverride of 0 uses the cache's default TTL.
func (c *ResponseCache) Set(key string, value *Response, ttlOverride time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	expiresAt := time.Now().Add(ttl)

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: expiresAt}
	el := c.order.PushFront(entry)
	c.entries[key] = el
}

// Sweep proactively evicts every entry that has already expired, rather
// than waiting for it to be hit by a Get. Intended for the periodic
// housekeeping scheduler so long-idle endpoints don't hold dead entries.
func (c *ResponseCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if now.After(entry.expiresAt) {
			c.order.Remove(el)
			delete(c.entries, entry.key)
			removed++
		}
		el = prev
	}
	return removed
}

// CacheStats is the {size, hits, misses, hit_rate} view spec §4.9 promises.
type CacheStats struct {
	Size    int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats reports the current cache statistics.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{Size: len(c.entries), Hits: c.hits, Misses: c.misses, HitRate: rate}
}
