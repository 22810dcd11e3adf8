// Package sizeledger tracks the total on-disk size of Function
// Response Cache entries and evicts least-recently-modified entries
// when that total exceeds a configured limit. The running total is
// persisted in a sidecar file guarded by its own lock, so concurrent
// writers across processes converge on the same value; the total may
// transiently overcount (an entry counted twice while two processes
// race to record it) but must never drift far or undercount for long.
//
// The sidecar is persisted with a temp-file/fsync/atomic-rename
// sequence; cache entries themselves are written in place, not this way.
package sizeledger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/arturkryukov/dapfncache/internal/cache/filelock"
)

// Ledger persists the running total size of the entries under its
// directory that share the entry prefix its callers pass in.
type Ledger struct {
	dir        string
	sidecar    string
	sidecarLck string
	logger     *slog.Logger
}

// New creates a Ledger. sidecarName is the sidecar filename (e.g.
// "rc.ledger"), stored directly under dir.
func New(dir, sidecarName string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		dir:        dir,
		sidecar:    filepath.Join(dir, sidecarName),
		sidecarLck: filepath.Join(dir, sidecarName+".lock"),
		logger:     logger.With(slog.String("component", "sizeledger")),
	}
}

// Scrub rebuilds the ledger by scanning entryPrefix-matching files in
// Dir and summing their sizes. Called at daemon startup: a missing or
// unreadable sidecar must not prevent cache initialization, only cost
// a rebuild.
func (l *Ledger) Scrub(entryPrefix string) (uint64, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("sizeledger: scrub read dir %s: %w", l.dir, err)
	}

	var total uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), entryPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += uint64(info.Size())
	}

	if err := l.persist(total); err != nil {
		l.logger.Warn("could not persist rebuilt cache size total",
			slog.String("error", err.Error()))
	}

	l.logger.Info("ledger rebuilt from directory scan",
		slog.Uint64("total_bytes", total))

	return total, nil
}

// read returns the current persisted total, or 0 if the sidecar is
// missing or unreadable — matching the "rebuild rather than fail"
// contract.
func (l *Ledger) read() uint64 {
	data, err := os.ReadFile(l.sidecar)
	if err != nil {
		return 0
	}
	total, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return total
}

// persist atomically writes total to the sidecar: temp file, fsync,
// rename. The temp name carries a uuid suffix so a persist call that
// crashes mid-write never leaves behind a name a later persist call
// would try to reuse.
func (l *Ledger) persist(total uint64) error {
	tmp := l.sidecar + "." + uuid.New().String() + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("sizeledger: create temp %s: %w", tmp, err)
	}
	if _, err := f.WriteString(strconv.FormatUint(total, 10)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sizeledger: write temp %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sizeledger: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sizeledger: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, l.sidecar); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sizeledger: rename %s: %w", tmp, err)
	}
	return nil
}

// withLock runs fn while holding an exclusive lock on the ledger's own
// sidecar lock file, guaranteeing read-modify-write atomicity across
// processes.
func (l *Ledger) withLock(fn func() error) error {
	h, err := filelock.LockExclusiveBlocking(l.sidecarLck)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// Record stats path and adds its size to the running total, returning
// the new total. Ledger update failures are logged, not propagated: a
// broken ledger must not lose a valid cache entry that was otherwise
// written successfully.
func (l *Ledger) Record(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("sizeledger: stat %s: %w", path, err)
	}

	var total uint64
	err = l.withLock(func() error {
		total = l.read() + uint64(info.Size())
		return l.persist(total)
	})
	if err != nil {
		l.logger.Warn("could not update ledger", slog.String("error", err.Error()))
		return l.read() + uint64(info.Size()), nil
	}

	return total, nil
}

// IsOverLimit reports whether size exceeds limitBytes.
func (l *Ledger) IsOverLimit(size, limitBytes uint64) bool {
	return size > limitBytes
}

// candidate is one file eligible for eviction consideration.
type candidate struct {
	path    string
	modTime int64
	size    uint64
}

// EvictUntilUnder deletes least-recently-modified entries matching
// entryPrefix under Dir until the recorded total is <= limitBytes, or
// until no more evictable entries remain. protectedPath (the entry the
// current writer just produced, still held under a shared lock) is
// never selected even if it would otherwise be the oldest. Entries an
// exclusive lock cannot be immediately acquired for are skipped: they
// are being read or written by another process right now.
func (l *Ledger) EvictUntilUnder(entryPrefix, protectedPath string, limitBytes uint64) error {
	return l.withLock(func() error {
		total := l.read()
		if total <= limitBytes {
			return nil
		}

		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return fmt.Errorf("sizeledger: evict read dir %s: %w", l.dir, err)
		}

		var candidates []candidate
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), entryPrefix) {
				continue
			}
			full := filepath.Join(l.dir, e.Name())
			if full == protectedPath {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{
				path:    full,
				modTime: info.ModTime().UnixNano(),
				size:    uint64(info.Size()),
			})
		}

		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].modTime < candidates[j].modTime
		})

		for _, c := range candidates {
			if total <= limitBytes {
				break
			}

			h, ok, err := filelock.TryExclusiveNonBlocking(c.path)
			if err != nil || !ok {
				// Being written by someone else, or already gone. Skip.
				continue
			}

			if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				h.Release()
				l.logger.Warn("could not remove eviction victim",
					slog.String("path", c.path), slog.String("error", err.Error()))
				continue
			}
			h.Release()

			if c.size > total {
				total = 0
			} else {
				total -= c.size
			}
			l.logger.Info("evicted cache entry", slog.String("path", c.path), slog.Uint64("freed_bytes", c.size))
		}

		return l.persist(total)
	})
}

// Total returns the currently persisted total, or 0 if the sidecar
// cannot be read.
func (l *Ledger) Total() uint64 {
	return l.read()
}
