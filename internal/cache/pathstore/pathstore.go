// Package pathstore derives the on-disk filename for a cache entry
// from a fingerprint and a collision suffix. It performs no I/O so
// tests can exercise the collision-avoidance policy in ResponseCache
// without touching a filesystem. Grounded on the path-joining
// convention of internal/storage/filestore.FileStore.FullPath in the
// teacher, generalized from "one directory of arbitrarily named
// files" to "one directory of fingerprint-named cache entries".
package pathstore

import (
	"fmt"
	"path/filepath"
)

// PathStore maps a numeric fingerprint plus a collision suffix to a
// filesystem path under Dir, using Prefix as the filename prefix.
type PathStore struct {
	Dir    string
	Prefix string
}

// New creates a PathStore rooted at dir with the given filename
// prefix. prefix is not validated here — ResponseCache/config is
// responsible for normalizing it to lowercase before construction.
func New(dir, prefix string) *PathStore {
	return &PathStore{Dir: dir, Prefix: prefix}
}

// PathFor returns the path for fingerprint h and collision suffix k:
// "<dir>/<prefix>_<h>_<k>". Pure; no I/O.
func (p *PathStore) PathFor(h uint64, k int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%d_%d", p.Prefix, h, k))
}

// FingerprintPrefix returns the glob-safe prefix shared by every entry
// for a given fingerprint, "<prefix>_<h>_". Used to enumerate every
// on-disk collision-suffix variant of one fingerprint, e.g. to bound
// how many collisions have accumulated before giving up.
func (p *PathStore) FingerprintPrefix(h uint64) string {
	return fmt.Sprintf("%s_%d_", p.Prefix, h)
}
