package kv

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"tally/internal/cache"
)

type cachedEntry struct {
	value []byte
	ok    bool
}

// Cached is a read-through, write-through cache in front of another Store.
// Only raw bytes are cached; nothing derived from them is.
type Cached struct {
	inner Store
	lru   *cache.LRUCache[cachedEntry]
	group singleflight.Group
}

var _ Store = (*Cached)(nil)

func NewCached(inner Store, maxEntries int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		lru:   cache.NewLRUCache[cachedEntry](maxEntries, ttl),
	}
}

// Cleaner exposes the underlying cache for registration with a cache.Manager.
func (c *Cached) Cleaner() cache.Cleaner { return c.lru }

func (c *Cached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if e, found := c.lru.Get(key); found {
		return bytes.Clone(e.value), e.ok, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, ok, err := c.inner.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		e := cachedEntry{value: value, ok: ok}
		c.lru.Set(key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	e := v.(cachedEntry)
	return bytes.Clone(e.value), e.ok, nil
}

func (c *Cached) Set(ctx context.Context, key string, value []byte) error {
	if err := c.inner.Set(ctx, key, value); err != nil {
		c.lru.Delete(key)
		return err
	}
	c.lru.Set(key, cachedEntry{value: bytes.Clone(value), ok: true})
	return nil
}

func (c *Cached) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	written, err := c.inner.SetIfAbsent(ctx, key, value)
	c.lru.Delete(key)
	return written, err
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	err := c.inner.Delete(ctx, key)
	c.lru.Delete(key)
	return err
}

func (c *Cached) Ping(ctx context.Context) error { return c.inner.Ping(ctx) }

func (c *Cached) Close() error {
	c.lru.Purge()
	return c.inner.Close()
}
