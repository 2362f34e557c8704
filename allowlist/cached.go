package allowlist

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hupe1980/vecfuse/filter"
)

var _ filter.AllowlistLookup = (*Cached)(nil)

// Cached memoizes answers of another lookup for ttl.
type Cached struct {
	inner filter.AllowlistLookup
	cache *expirable.LRU[string, []string]
}

// NewCached wraps inner with an LRU of size entries whose entries expire after ttl.
// A ttl of 0 keeps entries until evicted.
func NewCached(inner filter.AllowlistLookup, size int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// AssetsFor answers from cache or delegates. Errors are not cached.
func (c *Cached) AssetsFor(ctx context.Context, key string, values []string) ([]string, error) {
	ck := cacheKey(key, values)
	if ids, ok := c.cache.Get(ck); ok {
		return ids, nil
	}
	ids, err := c.inner.AssetsFor(ctx, key, values)
	if err != nil {
		return nil, err
	}
	c.cache.Add(ck, ids)
	return ids, nil
}

// Purge drops every cached answer.
func (c *Cached) Purge() { c.cache.Purge() }

// Len returns the number of cached answers.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(key string, values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return key + "\x00" + strings.Join(sorted, "\x00")
}
