// Package rescache implements the Function Response Cache itself: it
// glues PathStore, FileLock, SizeLedger and Codec together into the
// probe-loop algorithm that turns a (dataset, constraint) pair into
// either a cache hit or a freshly computed-and-cached response.
//
// The orchestration is grounded on get_or_cache_dataset /
// load_from_cache / write_dataset_to_cache in the original
// implementation this system is modeled on: probe collision suffixes
// in order, take a shared read lock to check each candidate's witness
// line, and race other processes to create the first unclaimed
// suffix under an exclusive lock.
package rescache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/arturkryukov/dapfncache/internal/cache/codec"
	"github.com/arturkryukov/dapfncache/internal/cache/filelock"
	"github.com/arturkryukov/dapfncache/internal/cache/pathstore"
	"github.com/arturkryukov/dapfncache/internal/cache/sizeledger"
	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

// ErrTooManyCollisions is returned when every one of the MaxCollisions
// probed suffixes (0 through MaxCollisions-1) of a fingerprint's chain
// is already occupied by a different resource. Wrapped
// with resource-specific context, so callers should use errors.Is
// rather than string matching.
var ErrTooManyCollisions = errors.New("rescache: too many hash collisions for this resource")

// Evaluator applies a constraint expression to a Dataset and produces
// the Dataset that should actually be cached and returned. Kept
// abstract here so rescache does not import the constraint package
// directly; internal/constraint provides the concrete implementation.
type Evaluator interface {
	Parse(constraint string, ds *dapmodel.Dataset) error
	EvalFunctions(ds *dapmodel.Dataset) (*dapmodel.Dataset, error)
}

// Config controls one ResponseCache instance.
type Config struct {
	// Dir is the cache directory. Empty Dir disables caching entirely:
	// GetOrCompute still evaluates and returns responses, it just
	// never touches disk.
	Dir string
	// Prefix is the on-disk filename prefix, expected to already be
	// lowercased by the caller.
	Prefix string
	// MaxSizeBytes is the soft ceiling SizeLedger evicts down to after
	// every write.
	MaxSizeBytes uint64
	// MaxCacheableIDLen bounds how long a ResourceId (dataset id +
	// "#" + constraint) may be before caching is skipped.
	MaxCacheableIDLen int
	// MaxCollisions bounds how many suffix variants of one fingerprint
	// are probed before giving up on caching this response.
	MaxCollisions int
	Logger        *slog.Logger
}

// enabled reports whether cfg's Dir is set and names a size limit worth
// enforcing. It does not check that Dir exists on disk — that check
// requires a syscall and is only meaningful once, at New time, not on
// every field access.
func (c Config) enabled() bool { return c.Dir != "" && c.MaxSizeBytes > 0 }

const (
	defaultMaxCacheableIDLen = 4096
	defaultMaxCollisions     = 50
)

// ResponseCache is the process-wide cache orchestrator. Construct one
// with New; Default/SetDefault provide a process-wide singleton for
// callers that don't want to thread a *ResponseCache through their own
// call graph, without relying on package-level static-init ordering.
type ResponseCache struct {
	cfg     Config
	enabled bool
	paths   *pathstore.PathStore
	ledger  *sizeledger.Ledger
	logger  *slog.Logger
}

// New constructs a ResponseCache from cfg. Caching is disabled — every
// GetOrCompute call falls straight through to direct evaluation — when
// cfg.Dir is empty, cfg.MaxSizeBytes is zero, or cfg.Dir does not exist
// on disk at construction time.
func New(cfg Config) *ResponseCache {
	if cfg.MaxCacheableIDLen <= 0 {
		cfg.MaxCacheableIDLen = defaultMaxCacheableIDLen
	}
	if cfg.MaxCollisions <= 0 {
		cfg.MaxCollisions = defaultMaxCollisions
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rc"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "rescache"))

	rc := &ResponseCache{cfg: cfg, logger: logger}

	rc.enabled = cfg.enabled()
	if rc.enabled {
		if info, err := os.Stat(cfg.Dir); err != nil || !info.IsDir() {
			logger.Warn("cache directory does not exist, caching disabled",
				slog.String("dir", cfg.Dir))
			rc.enabled = false
		}
	}

	if rc.enabled {
		rc.paths = pathstore.New(cfg.Dir, cfg.Prefix)
		rc.ledger = sizeledger.New(cfg.Dir, cfg.Prefix+".ledger", logger)
		if _, err := rc.ledger.Scrub(rc.EntryPrefix()); err != nil {
			logger.Warn("ledger scrub at startup failed, starting from an empty total",
				slog.String("error", err.Error()))
		}
	}
	return rc
}

// Ledger exposes the underlying SizeLedger for admin reporting and
// operator-triggered eviction. Returns nil when caching is disabled.
func (rc *ResponseCache) Ledger() *sizeledger.Ledger { return rc.ledger }

// EntryPrefix returns the on-disk filename prefix cache entries under
// rc's directory share, for use as EvictUntilUnder's entryPrefix.
func (rc *ResponseCache) EntryPrefix() string { return rc.cfg.Prefix + "_" }

var (
	defaultMu   sync.RWMutex
	defaultInst *ResponseCache
)

// Default returns the process-wide singleton, or nil if SetDefault has
// never been called. Callers that need a cache and get nil should
// treat that the same as a cache with an empty Dir: compute without
// caching.
func Default() *ResponseCache {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultInst
}

// SetDefault installs rc as the process-wide singleton returned by
// Default. Call this once during daemon startup after constructing the
// cache with New; nothing in this package calls it implicitly.
func SetDefault(rc *ResponseCache) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInst = rc
}

// GetOrCompute returns the response for evaluating constraint against
// ds. On a cache hit it returns a Dataset rehydrated from disk. On a
// miss it runs eval.Parse and eval.EvalFunctions, writes the result to
// disk (unless caching is disabled or the resource is not cacheable),
// and returns the freshly computed Dataset.
func (rc *ResponseCache) GetOrCompute(ds *dapmodel.Dataset, constraint string, eval Evaluator) (*dapmodel.Dataset, error) {
	resourceID := ResourceID(ds.Name(), constraint)

	if !rc.enabled || len(resourceID) > rc.cfg.MaxCacheableIDLen {
		if rc.enabled && len(resourceID) > rc.cfg.MaxCacheableIDLen {
			prefixLen := len(resourceID)
			if prefixLen > 64 {
				prefixLen = 64
			}
			rc.logger.Warn("resource id exceeds cacheable length, computing without caching",
				slog.String("resource_id_prefix", resourceID[:prefixLen]), slog.Int("length", len(resourceID)))
		}
		return rc.compute(ds, constraint, eval)
	}

	fp := Fingerprint(resourceID)

	for k := 0; k < rc.cfg.MaxCollisions; k++ {
		path := rc.paths.PathFor(fp, k)

		result, occupied, err := rc.tryRead(path, resourceID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			// Report the caller's own dataset identifier on a hit.
			result.SetName(ds.Name())
			return result, nil
		}
		if occupied {
			// This suffix exists but belongs to a different resource.
			// Try the next one.
			continue
		}

		// Not found. Race to create it.
		h, created, err := filelock.CreateAndLockExclusive(path)
		if err != nil {
			return nil, fmt.Errorf("rescache: create %s: %w", path, err)
		}
		if !created {
			// Someone else created it between our read attempt and
			// now. Retry this same suffix as a reader.
			k--
			continue
		}

		out, err := rc.writeAndFinish(h, path, resourceID, constraint, ds, eval)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	rc.logger.Error("too many collisions for this resource, refusing to compute",
		slog.String("resource_id", resourceID), slog.Int("max_collisions", rc.cfg.MaxCollisions))
	return nil, fmt.Errorf("rescache: %w", ErrTooManyCollisions)
}

// tryRead attempts a shared read of path. Returns (dataset, true, nil)
// on a genuine cache hit. Returns (nil, false, nil) if path does not
// exist. Returns (nil, true, nil) if path exists but is occupied by a
// different resource (a fingerprint collision) or is unreadable, so
// the caller should move on to the next collision suffix.
func (rc *ResponseCache) tryRead(path, resourceID string) (*dapmodel.Dataset, bool, error) {
	h, ok, err := filelock.TryReadLock(path)
	if err != nil {
		return nil, false, fmt.Errorf("rescache: read-lock %s: %w", path, err)
	}
	if !ok {
		return nil, false, nil
	}
	defer h.Release()

	ds, err := codec.Read(h.File(), resourceID)
	if errors.Is(err, codec.ErrCollision) {
		return nil, true, nil
	}
	if err != nil {
		rc.logger.Warn("cache entry unreadable, treating as occupied", slog.String("path", path), slog.String("error", err.Error()))
		return nil, true, nil
	}

	return ds, true, nil
}

// writeAndFinish computes the response and writes it to the file
// backing h (already held under an exclusive lock and just created),
// then downgrades to a shared lock, records the entry's size, and
// evicts if the cache has grown past its limit.
func (rc *ResponseCache) writeAndFinish(h *filelock.Handle, path, resourceID, constraint string, ds *dapmodel.Dataset, eval Evaluator) (*dapmodel.Dataset, error) {
	defer h.Release()

	result, err := rc.compute(ds, constraint, eval)
	if err != nil {
		_ = removeFailedEntry(path)
		return nil, err
	}

	if err := codec.Write(h.File(), resourceID, result); err != nil {
		_ = removeFailedEntry(path)
		return nil, fmt.Errorf("rescache: write %s: %w", path, err)
	}
	// Writing advanced every Sequence cursor to its end; rewind them so
	// the caller serializes result from row 0, as it would after a hit.
	result.ResetSequenceCursors()

	if err := h.DowngradeToShared(); err != nil {
		return nil, fmt.Errorf("rescache: downgrade %s: %w", path, err)
	}

	if rc.ledger != nil {
		total, err := rc.ledger.Record(path)
		if err != nil {
			rc.logger.Warn("ledger record failed", slog.String("path", path), slog.String("error", err.Error()))
		} else if rc.ledger.IsOverLimit(total, rc.cfg.MaxSizeBytes) {
			if err := rc.ledger.EvictUntilUnder(rc.cfg.Prefix+"_", path, rc.cfg.MaxSizeBytes); err != nil {
				rc.logger.Warn("eviction pass failed", slog.String("error", err.Error()))
			}
		}
	}

	return result, nil
}

// compute runs the Parse/EvalFunctions pipeline directly, bypassing
// the cache.
func (rc *ResponseCache) compute(ds *dapmodel.Dataset, constraint string, eval Evaluator) (*dapmodel.Dataset, error) {
	if err := eval.Parse(constraint, ds); err != nil {
		return nil, fmt.Errorf("rescache: parse constraint: %w", err)
	}
	result, err := eval.EvalFunctions(ds)
	if err != nil {
		return nil, fmt.Errorf("rescache: evaluate functions: %w", err)
	}
	return result, nil
}

func removeFailedEntry(path string) error {
	return filelock.RemoveIfExists(path)
}
