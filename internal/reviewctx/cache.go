package reviewctx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/patchwise/internal/patch"
)

// lookupCache memoizes symbol lookups for a run. Concurrent identical
// lookups share one call.
type lookupCache struct {
	inner SymbolLookup
	group singleflight.Group

	mu      sync.Mutex
	results map[string][]Symbol
}

func newLookupCache(inner SymbolLookup) *lookupCache {
	return &lookupCache{inner: inner, results: make(map[string][]Symbol)}
}

func cacheKey(f File, r patch.LineRange) string {
	sum := sha256.Sum256([]byte(f.Content))
	return fmt.Sprintf("%s:%s:%d,%d", hex.EncodeToString(sum[:8]), f.Path, r.Start, r.Count)
}

func (c *lookupCache) lookup(ctx context.Context, f File, r patch.LineRange) ([]Symbol, error) {
	key := cacheKey(f, r)
	c.mu.Lock()
	if syms, ok := c.results[key]; ok {
		c.mu.Unlock()
		return syms, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		syms, err := c.inner.Lookup(ctx, f, r)
		if err != nil {
			return syms, err
		}
		c.mu.Lock()
		c.results[key] = syms
		c.mu.Unlock()
		return syms, nil
	})
	syms, _ := v.([]Symbol)
	return syms, err
}
