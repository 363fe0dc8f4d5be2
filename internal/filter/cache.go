// Compiled-filter cache (spec §4.6: "a compiled filter is hashable by
// its normalized source string and cached; storage keeps the last-used
// filter compiled"). Grounded on the teacher's use of an in-memory TTL
// cache for per-task lookup state; this cache is TTL-less (a compiled
// Predicate never goes stale on its own) and has no capacity bound:
// entries leave only when Purge clears them all.
package filter

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoizes Compile by normalized source string.
type Cache struct {
	store *gocache.Cache
}

// NewCache builds a filter cache. No entry expires on its own (filters
// are pure functions of their source string); Purge clears it on demand
// (e.g. a config reload changes available attribute columns).
func NewCache() *Cache {
	return &Cache{store: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

// Normalize canonicalizes a filter source string for cache-keying:
// trimmed whitespace, collapsed internal runs of spaces.
func Normalize(source string) string {
	return strings.Join(strings.Fields(source), " ")
}

// CompileCached compiles source via compileFn, or returns the
// previously compiled Predicate for an identical normalized source.
func (c *Cache) CompileCached(source string, compileFn func(string) (Predicate, error)) (Predicate, error) {
	key := Normalize(source)
	if cached, ok := c.store.Get(key); ok {
		return cached.(Predicate), nil
	}
	pred, err := compileFn(key)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, pred, gocache.NoExpiration)
	return pred, nil
}

// Purge clears every cached filter.
func (c *Cache) Purge() {
	c.store.Flush()
}
