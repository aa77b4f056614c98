package data

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/talentgate/internal/ports"
)

// LocalCacheRepo is an in-process LRU with per-entry TTL. It backs the profile cache when
// Redis is not configured. Methods are safe for concurrent use.
type LocalCacheRepo struct {
	mu     sync.Mutex
	cap    int
	ll     *list.List // front = most recently used
	items  map[string]*list.Element
	now    func() time.Time
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

var _ ports.CacheRepository = (*LocalCacheRepo)(nil)

type lruEntry struct {
	key    string
	value  []byte
	expiry time.Time // zero means no expiry
}

// LocalCacheConfig configures NewLocalCacheRepo.
type LocalCacheConfig struct {
	Capacity int
	Now      func() time.Time
}

// DefaultLocalCacheCapacity is used when Capacity is not positive.
const DefaultLocalCacheCapacity = 1024

// NewLocalCacheRepo creates a LocalCacheRepo.
func NewLocalCacheRepo(cfg LocalCacheConfig) *LocalCacheRepo {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultLocalCacheCapacity
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &LocalCacheRepo{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   nowFn,
	}
}

// Get returns nil, nil for missing or expired keys.
func (c *LocalCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return nil, nil
	}
	ent := el.Value.(*lruEntry)
	if c.expired(ent) {
		c.remove(el)
		c.misses.Add(1)
		return nil, nil
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return append([]byte(nil), ent.value...), nil
}

// Set inserts or replaces a value. ttl <= 0 means no expiry.
func (c *LocalCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	stored := append([]byte(nil), value...)

	if el, found := c.items[key]; found {
		ent := el.Value.(*lruEntry)
		ent.value = stored
		ent.expiry = exp
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&lruEntry{key: key, value: stored, expiry: exp})
	for c.ll.Len() > c.cap {
		c.remove(c.ll.Back())
		c.evicts.Add(1)
	}
	return nil
}

// Delete removes key and reports whether it was present.
func (c *LocalCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.remove(el)
	return true, nil
}

// Health always succeeds.
func (c *LocalCacheRepo) Health(context.Context) error { return nil }

// LocalCacheStats are simple counters for observability.
type LocalCacheStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LocalCacheRepo) Stats() LocalCacheStats {
	c.mu.Lock()
	size := c.ll.Len()
	c.mu.Unlock()
	return LocalCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      size,
		Capacity:  c.cap,
	}
}

// caller must hold c.mu.
func (c *LocalCacheRepo) expired(e *lruEntry) bool {
	return !e.expiry.IsZero() && c.now().After(e.expiry)
}

// caller must hold c.mu.
func (c *LocalCacheRepo) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry).key)
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (c *LocalCacheRepo) PurgeExpired(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*lruEntry)) {
			c.remove(el)
			n++
		}
		el = prev
	}
	return n, nil
}
