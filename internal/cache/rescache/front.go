package rescache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

var (
	frontHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dfc_front_cache_hits_total",
		Help: "Total in-process front cache hits, served without touching disk.",
	})
	frontMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dfc_front_cache_misses_total",
		Help: "Total in-process front cache misses that fell through to the on-disk cache.",
	})
)

// Front wraps a ResponseCache with an in-process, per-instance LRU
// keyed on the ResourceId. It is purely additive: removing it changes
// nothing about correctness, only how often GetOrCompute has to touch
// disk. Grounded on an LRU-with-TTL wrapper for file metadata lookups,
// generalized from a fixed value type to whatever Dataset a given
// GetOrCompute call returns.
type Front struct {
	rc    *ResponseCache
	cache *expirable.LRU[string, *dapmodel.Dataset]
}

// WithFrontCache builds a Front over rc with room for entries items,
// each expiring ttl after insertion.
func WithFrontCache(rc *ResponseCache, entries int, ttl time.Duration) *Front {
	return &Front{
		rc:    rc,
		cache: expirable.NewLRU[string, *dapmodel.Dataset](entries, nil, ttl),
	}
}

// GetOrCompute checks the front cache first, then falls through to the
// wrapped ResponseCache's own on-disk GetOrCompute on a miss. A
// successful disk-level result is stored in the front cache before
// being returned, so the next identical request for the same resource
// on this process never reaches disk at all.
func (f *Front) GetOrCompute(ds *dapmodel.Dataset, constraint string, eval Evaluator) (*dapmodel.Dataset, error) {
	key := ResourceID(ds.Name(), constraint)

	if cached, ok := f.cache.Get(key); ok {
		frontHitsTotal.Inc()
		return cached, nil
	}
	frontMissesTotal.Inc()

	result, err := f.rc.GetOrCompute(ds, constraint, eval)
	if err != nil {
		return nil, err
	}

	f.cache.Add(key, result)
	return result, nil
}
