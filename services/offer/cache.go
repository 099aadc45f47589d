package offer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "offer_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "offer_cache_miss_total"})
)

type cachedOffer struct {
	offer    *Offer
	cachedAt time.Time
}

// externalCache maps (provider, external id) keys to active offers. Loads for
// the same key are collapsed with singleflight so a burst of postbacks for
// one offer costs a single query.
type externalCache struct {
	mu    sync.RWMutex
	items map[string]cachedOffer
	ttl   time.Duration
	group singleflight.Group
}

func newExternalCache(ttl time.Duration) *externalCache {
	return &externalCache{
		items: make(map[string]cachedOffer),
		ttl:   ttl,
	}
}

func (c *externalCache) get(key string) (*Offer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.items[key]
	if !ok || (c.ttl > 0 && time.Since(v.cachedAt) > c.ttl) {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v.offer, true
}

func (c *externalCache) set(key string, o *Offer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cachedOffer{offer: o, cachedAt: time.Now()}
}

func (c *externalCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// load returns the cached offer or runs fn once per key across concurrent
// callers. Nil results are not cached.
func (c *externalCache) load(key string, fn func() (*Offer, error)) (*Offer, error) {
	if o, ok := c.get(key); ok {
		return o, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		o, err := fn()
		if err != nil {
			return nil, err
		}
		if o != nil {
			c.set(key, o)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	o, _ := v.(*Offer)
	return o, nil
}
