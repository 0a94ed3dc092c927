// Package cache provides a read-through LRU cache in front of a store.Accessor.
//
// Reads are cached under their exact path string, defaults included.
// Successful mutations evict the exact path they were given; entries cached
// under other paths (a parent document, a sibling field) are left alone, so
// callers that need cross-path consistency invalidate by prefix themselves.
//
// A read that misses is tracked until its value is stored. An invalidation
// matching the read's path, or a Purge, while the store is being read drops
// the value instead of caching it. Invalidations of other paths do not.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jacentio/pathstore/pathcodec"
	"github.com/jacentio/pathstore/store"
)

// ErrInvalidConfig is returned by New for an unusable configuration.
var ErrInvalidConfig = errors.New("pathstore: invalid cache config")

// Config holds configuration for the cache.
type Config struct {
	// MaxItems bounds the number of cached paths. Must be at least 1.
	// Default: 1024
	MaxItems int

	// SegmentAware restricts prefix invalidation to whole path segments, so
	// invalidating "users.1" no longer evicts "users.10".
	// Default: false
	SegmentAware bool

	// Logger receives debug logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxItems: 1024}
}

func (c *Config) validate() error {
	if c.MaxItems < 1 {
		return fmt.Errorf("%w: MaxItems must be at least 1, got %d", ErrInvalidConfig, c.MaxItems)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// InvalidateOptions configures Invalidate.
type InvalidateOptions struct {
	// Prefix evicts every cached path starting with one of the keys instead
	// of the exact keys only.
	Prefix bool
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// Cache is a store.Accessor that serves Get from an LRU cache.
// Safe for concurrent use.
type Cache struct {
	inner  store.Accessor
	lru    *lru.Cache[string, any]
	config Config
	logger *slog.Logger

	// mu orders fills against invalidations and guards inflight.
	mu       sync.Mutex
	inflight map[*fetch]struct{}

	hits          atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	invalidations atomic.Uint64
}

var _ store.Accessor = (*Cache)(nil)

// fetch is a read-through in progress. stale is set under Cache.mu when an
// invalidation covers path before the value is stored.
type fetch struct {
	path  string
	stale bool
}

// New wraps inner with a cache of cfg.MaxItems entries.
func New(inner store.Accessor, cfg Config) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l, err := lru.New[string, any](cfg.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Cache{
		inner:    inner,
		lru:      l,
		config:   cfg,
		logger:   cfg.Logger,
		inflight: make(map[*fetch]struct{}),
	}, nil
}

// Ping is not cached.
func (c *Cache) Ping(ctx context.Context) (store.PingResult, error) {
	return c.inner.Ping(ctx)
}

// Get returns the cached value for path or reads through to the store. The
// value is cached even when it is the default, and a later hit returns it as
// is whatever def is passed.
func (c *Cache) Get(ctx context.Context, path string, def any) (any, error) {
	if v, ok := c.lru.Get(path); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	f := c.begin(path)
	v, err := c.inner.Get(ctx, path, def)
	if err != nil {
		c.finish(ctx, f, nil, false)
		return nil, err
	}
	c.finish(ctx, f, v, true)
	return v, nil
}

func (c *Cache) begin(path string) *fetch {
	f := &fetch{path: path}
	c.mu.Lock()
	c.inflight[f] = struct{}{}
	c.mu.Unlock()
	return f
}

// finish stops tracking f and, when keep is set, caches v unless an
// invalidation covered f's path in the meantime.
func (c *Cache) finish(ctx context.Context, f *fetch, v any, keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, f)
	if !keep {
		return
	}
	if f.stale {
		c.logger.DebugContext(ctx, "cache fill dropped after invalidation", "path", f.path)
		return
	}
	if evicted := c.lru.Add(f.path, v); evicted {
		c.evictions.Add(1)
	}
}

// Set writes through and evicts path.
func (c *Cache) Set(ctx context.Context, path string, value any) error {
	if err := c.inner.Set(ctx, path, value); err != nil {
		return err
	}
	c.InvalidateKey(path)
	return nil
}

// Push writes through and evicts path, whether or not the value was pushed.
func (c *Cache) Push(ctx context.Context, path string, value any, opts store.PushOptions) (bool, error) {
	pushed, err := c.inner.Push(ctx, path, value, opts)
	if err != nil {
		return false, err
	}
	c.InvalidateKey(path)
	return pushed, nil
}

// Pull writes through and evicts path, whether or not anything was removed.
func (c *Cache) Pull(ctx context.Context, path string, value any) (bool, error) {
	pulled, err := c.inner.Pull(ctx, path, value)
	if err != nil {
		return false, err
	}
	c.InvalidateKey(path)
	return pulled, nil
}

// Remove writes through and evicts path.
func (c *Cache) Remove(ctx context.Context, path string) error {
	if err := c.inner.Remove(ctx, path); err != nil {
		return err
	}
	c.InvalidateKey(path)
	return nil
}

// InvalidateKey evicts one exact path.
func (c *Cache) InvalidateKey(key string) {
	c.Invalidate([]string{key}, InvalidateOptions{})
}

// Invalidate evicts keys. Absent keys are ignored. With opts.Prefix every
// cached path starting with a key is evicted; unless the cache is
// SegmentAware this is a plain string prefix, so "users.1" also matches
// "users.10.name".
func (c *Cache) Invalidate(keys []string, opts InvalidateOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markStale(keys, opts.Prefix)

	var removed uint64
	if !opts.Prefix {
		for _, key := range keys {
			if c.lru.Remove(key) {
				removed++
			}
		}
	} else {
		for _, cached := range c.lru.Keys() {
			for _, key := range keys {
				if c.matchesPrefix(cached, key) {
					if c.lru.Remove(cached) {
						removed++
					}
					break
				}
			}
		}
	}

	c.invalidations.Add(removed)
	if removed > 0 {
		c.logger.Debug("cache invalidated", "keys", keys, "prefix", opts.Prefix, "removed", removed)
	}
}

func (c *Cache) markStale(keys []string, prefix bool) {
	for f := range c.inflight {
		for _, key := range keys {
			if f.path == key || (prefix && c.matchesPrefix(f.path, key)) {
				f.stale = true
				break
			}
		}
	}
}

func (c *Cache) matchesPrefix(cached, prefix string) bool {
	if !strings.HasPrefix(cached, prefix) {
		return false
	}
	if !c.config.SegmentAware || len(cached) == len(prefix) {
		return true
	}
	return strings.HasPrefix(cached[len(prefix):], pathcodec.Separator)
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge evicts everything.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f := range c.inflight {
		f.stale = true
	}
	c.lru.Purge()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
