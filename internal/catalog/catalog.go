// Package catalog lists the datasets a running daemon can serve
// function responses over, by walking a filesystem tree. It never
// touches the response cache: listing is a read-only, side-effect-free
// operation.
package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry describes one item in a catalog listing.
type Entry struct {
	Collection bool      `json:"collection"`
	IsData     bool      `json:"isData"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// Directory is a filesystem-backed catalog rooted at Root.
type Directory struct {
	Root string
	// DataExtensions lists the file extensions (including the leading
	// dot) treated as servable datasets, e.g. ".nc", ".h5". A file
	// whose extension is not in this set is still listed, just with
	// IsData=false.
	DataExtensions map[string]bool
}

// NewDirectory constructs a Directory catalog rooted at root, treating
// files with any of the given extensions as data.
func NewDirectory(root string, dataExtensions ...string) *Directory {
	set := make(map[string]bool, len(dataExtensions))
	for _, ext := range dataExtensions {
		set[ext] = true
	}
	return &Directory{Root: root, DataExtensions: set}
}

// List returns the immediate children of relPath (relative to Root),
// non-recursively, sorted by filename.
// relPath "" lists the catalog root.
func (d *Directory) List(relPath string) ([]Entry, error) {
	full := filepath.Join(d.Root, filepath.Clean("/"+relPath))

	items, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Collection: item.IsDir(),
			IsData:     !item.IsDir() && d.DataExtensions[strings.ToLower(filepath.Ext(item.Name()))],
			Name:       item.Name(),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
	}

	return entries, nil
}

// IsDataset reports whether relPath names a file this catalog
// considers a servable dataset.
func (d *Directory) IsDataset(relPath string) bool {
	full := filepath.Join(d.Root, filepath.Clean("/"+relPath))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return false
	}
	return d.DataExtensions[strings.ToLower(filepath.Ext(relPath))]
}

// Walk recursively lists every file under Root, returning Entries whose
// Name is the slash-separated path relative to Root. Used to populate a
// Postgres mirror of the tree in one pass; List (non-recursive,
// Root-relative to one directory) remains what serves GET /catalog.
func (d *Directory) Walk() ([]Entry, error) {
	var out []Entry
	err := filepath.Walk(d.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		out = append(out, Entry{
			Collection: false,
			IsData:     d.DataExtensions[strings.ToLower(filepath.Ext(path))],
			Name:       rel,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolvePath joins relPath onto Root, refusing to escape Root via
// ".." segments.
func (d *Directory) ResolvePath(relPath string) (string, bool) {
	full := filepath.Join(d.Root, relPath)
	if !strings.HasPrefix(full, filepath.Clean(d.Root)+string(filepath.Separator)) && full != filepath.Clean(d.Root) {
		return "", false
	}
	return full, true
}
