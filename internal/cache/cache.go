// Package cache provides the process-wide in-memory TTL cache used for
// merged-event summaries.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
)

const defaultShards = 16

// Metrics holds cache statistics.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
}

type entry struct {
	value     string
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// TTLCache is a string cache whose entries expire after a per-entry TTL.
// Keys are spread over independently locked shards by murmur3 hash, so
// operations on different keys do not contend on one lock.
type TTLCache struct {
	shards  []*shard
	now     func() time.Time
	metrics Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithShards sets the number of shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(c *TTLCache) {
		if n > 0 {
			c.shards = newShards(n)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *TTLCache {
	c := &TTLCache{
		shards: newShards(defaultShards),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newShards(n int) []*shard {
	out := make([]*shard, n)
	for i := range out {
		out[i] = &shard{entries: make(map[string]entry)}
	}
	return out
}

func (c *TTLCache) shardFor(key string) *shard {
	h := murmur3.Sum32([]byte(key))
	return c.shards[h%uint32(len(c.shards))]
}

// Get returns the value for key if present and not expired. Expired
// entries are removed on read.
func (c *TTLCache) Get(key string) (string, bool) {
	s := c.shardFor(key)
	now := c.now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		c.metrics.Misses.Add(1)
		return "", false
	}
	if !now.Before(e.expiresAt) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := s.entries[key]; ok && !now.Before(cur.expiresAt) {
			delete(s.entries, key)
			c.metrics.Evictions.Add(1)
		}
		s.mu.Unlock()
		c.metrics.Misses.Add(1)
		return "", false
	}
	c.metrics.Hits.Add(1)
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *TTLCache) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	s.mu.Unlock()
}

// Delete removes key if present.
func (c *TTLCache) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones that
// have not been swept yet.
func (c *TTLCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Sweep removes every expired entry and returns how many were removed.
func (c *TTLCache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	c.metrics.Evictions.Add(int64(removed))
	return removed
}

// StartJanitor sweeps expired entries every interval until Close.
func (c *TTLCache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Close stops the janitor, if running.
func (c *TTLCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Stats returns hit, miss and eviction counters.
func (c *TTLCache) Stats() (hits, misses, evictions int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load()
}
