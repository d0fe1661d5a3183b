// Package query is a keyed, de-duplicating read cache for list and stat
// endpoints.
package query

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultMaxEntries = 256

type entry[T any] struct {
	data    T
	fetched time.Time
}

// Cache returns fresh cached data per key and otherwise runs exactly one
// in-flight fetch per key, shared by all concurrent callers.
type Cache[T any] struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[Key]entry[T]
	gen     uint64
	group   singleflight.Group
}

// New creates a cache whose entries stay fresh for ttl. A ttl of zero
// disables reuse but keeps de-duplication.
func New[T any](ttl time.Duration, logger *slog.Logger) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{
		ttl:        ttl,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		logger:     logger,
		entries:    make(map[Key]entry[T]),
	}
}

// Peek returns the cached value for key if it is still fresh.
func (c *Cache[T]) Peek(key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.ttl <= 0 || c.now().Sub(e.fetched) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.data, true
}

// Get returns fresh data for key, fetching it if needed. Concurrent callers
// with the same key share one fetch. The fetch is not cancelled when a
// caller's ctx ends; that caller just stops waiting.
func (c *Cache[T]) Get(ctx context.Context, key Key, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	// Callers after an Invalidate must not join a fetch started before it.
	flight := strconv.FormatUint(gen, 10) + "|" + key.String()
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.logger.Debug("query fetch", "key", key.String())
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.store(key, v, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Load runs Get and tags the outcome with key.
func (c *Cache[T]) Load(ctx context.Context, key Key, fetch func(context.Context) (T, error)) Result[T] {
	v, err := c.Get(ctx, key, fetch)
	return Result[T]{Key: key, Data: v, Err: err}
}

// Invalidate drops every entry. Fetches already in flight complete but
// their results are not stored, and later Gets start a fresh fetch.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry[T])
	c.gen++
}

// Len returns the number of cached entries, fresh or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) store(key Key, v T, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[key] = entry[T]{data: v, fetched: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

// evictOldest must be called with c.mu held.
func (c *Cache[T]) evictOldest() {
	var (
		oldestKey Key
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.fetched.Before(oldest) {
			oldestKey, oldest, found = k, e.fetched, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
