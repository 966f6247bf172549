package floodsub

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// dedupCache is a time-bounded set of message identifiers. Has/Add give
// the receive pipeline its check-then-insert; the caller (Engine) holds
// its own lock across both calls. The cache itself only guarantees each
// individual call is safe for concurrent use.
//
// Expiry is layered on top of expirable.LRU rather than trusted to the
// library's own internal ticker, so that an injected clock.Clock makes
// eviction deterministic in tests: each entry's insertion time is stamped
// with the injected clock, and Has additionally checks that stamp against
// the TTL after looking the entry up in the LRU.
type dedupCache struct {
	mu    sync.Mutex
	lru   *lru.LRU[string, time.Time]
	ttl   time.Duration
	clock clock.Clock
}

func newDedupCache(size int, ttl time.Duration, c clock.Clock) *dedupCache {
	if c == nil {
		c = clock.New()
	}
	return &dedupCache{
		lru:   lru.NewLRU[string, time.Time](size, nil, ttl),
		ttl:   ttl,
		clock: c,
	}
}

// Has reports whether id is a live (non-expired) entry.
func (c *dedupCache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stamp, ok := c.lru.Get(id)
	if !ok {
		return false
	}
	if c.clock.Now().Sub(stamp) > c.ttl {
		c.lru.Remove(id)
		return false
	}
	return true
}

// Add inserts id, stamped with the current injected time.
func (c *dedupCache) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, c.clock.Now())
}

// Len returns the number of entries currently tracked, live or not yet
// swept.
func (c *dedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
