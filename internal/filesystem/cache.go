package filesystem

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// contentCache is a TTL cache for whole file contents, keyed by path.
// Expired or evicted entries simply cause another read from the source;
// the source's own stores stay authoritative at all times.
type contentCache struct {
	fsys  *FS
	cache *ttlcache.Cache[string, []byte]
}

func newContentCache(fsys *FS, size int, ttl time.Duration) *contentCache {
	c := &contentCache{fsys: fsys}

	c.cache = ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithCapacity[string, []byte](uint64(size)), //nolint:gosec
	)
	go c.cache.Start()

	return c
}

// File returns the full content of one file path, from cache when
// possible. The runtime bypass switch skips both lookup and insertion.
func (c *contentCache) File(ctx context.Context, path string) ([]byte, error) {
	if c.fsys.Options.CacheBypass.Load() {
		return c.fsys.src.ReadFileContext(ctx, path)
	}

	if item := c.cache.Get(path); item != nil {
		c.fsys.Metrics.TotalCacheHits.Add(1)

		return item.Value(), nil
	}
	c.fsys.Metrics.TotalCacheMisses.Add(1)

	data, err := c.fsys.src.ReadFileContext(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(path, data, ttlcache.DefaultTTL)

	return data, nil
}

// Purge drops all cached contents.
func (c *contentCache) Purge() {
	c.cache.DeleteAll()
}

// Stop halts the background expiry loop and blocks until done.
func (c *contentCache) Stop() {
	c.cache.Stop()
}
