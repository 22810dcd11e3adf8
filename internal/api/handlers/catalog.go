package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/arturkryukov/dapfncache/internal/api/errors"
	"github.com/arturkryukov/dapfncache/internal/catalog"
)

const defaultSearchLimit = 50

// Searcher is implemented by the Postgres catalog mirror. Kept abstract
// here so this package does not import catalog/postgres directly.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]catalog.Entry, error)
}

// CatalogHandler serves GET /catalog and, when a Searcher is wired,
// GET /catalog/search.
type CatalogHandler struct {
	dir    *catalog.Directory
	search Searcher
	logger *slog.Logger
}

// NewCatalogHandler builds a CatalogHandler over dir. search may be nil,
// in which case Search responds 503: the Postgres mirror is optional.
func NewCatalogHandler(dir *catalog.Directory, search Searcher, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{dir: dir, search: search, logger: logger.With(slog.String("component", "catalog_handler"))}
}

// ServeHTTP handles GET /catalog?path=<relative path>.
func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	relPath := r.URL.Query().Get("path")

	entries, err := h.dir.List(relPath)
	if err != nil {
		apierrors.NotFound(w, "no such catalog path: "+relPath)
		return
	}

	writeEntries(w, h.logger, entries)
}

// Search handles GET /catalog/search?q=<substring>&limit=<n>, querying
// the Postgres mirror rather than walking the filesystem.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		apierrors.ServiceUnavailable(w, "catalog search requires Catalog.dsn to be configured")
		return
	}

	query := r.URL.Query().Get("q")
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.search.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("catalog search failed", slog.String("error", err.Error()))
		apierrors.ServiceUnavailable(w, "catalog search is temporarily unavailable")
		return
	}

	writeEntries(w, h.logger, entries)
}

func writeEntries(w http.ResponseWriter, logger *slog.Logger, entries []catalog.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		logger.Error("failed to encode catalog listing", slog.String("error", err.Error()))
	}
}
