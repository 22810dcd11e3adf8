package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/dapfncache/internal/api/errors"
	"github.com/arturkryukov/dapfncache/internal/api/middleware"
	"github.com/arturkryukov/dapfncache/internal/cache/sizeledger"
)

// AdminHandler serves the cache:admin-scoped endpoints: reporting cache
// size and forcing an eviction pass.
type AdminHandler struct {
	ledger       *sizeledger.Ledger
	entryPrefix  string
	maxSizeBytes uint64
	logger       *slog.Logger
}

// NewAdminHandler builds an AdminHandler. ledger may be nil when
// caching is disabled entirely, in which case both endpoints report
// that state instead of touching disk.
func NewAdminHandler(ledger *sizeledger.Ledger, entryPrefix string, maxSizeBytes uint64, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:       ledger,
		entryPrefix:  entryPrefix,
		maxSizeBytes: maxSizeBytes,
		logger:       logger.With(slog.String("component", "admin_handler")),
	}
}

// Stats handles GET /admin/cache/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())
	h.logger.Info("cache stats requested", slog.String("subject", subject))

	if h.ledger == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	total := h.ledger.Total()
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        true,
		"total_bytes":    total,
		"max_size_bytes": h.maxSizeBytes,
		"over_limit":     h.ledger.IsOverLimit(total, h.maxSizeBytes),
	})
}

// Evict handles POST /admin/cache/evict: forces an eviction pass down
// to the configured size limit. protectedPath is empty, since this is
// an operator-triggered pass and not the tail end of a write.
func (h *AdminHandler) Evict(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	if h.ledger == nil {
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeCacheDisabled, "caching is disabled")
		return
	}

	if err := h.ledger.EvictUntilUnder(h.entryPrefix, "", h.maxSizeBytes); err != nil {
		h.logger.Error("forced eviction failed", slog.String("subject", subject), slog.String("error", err.Error()))
		apierrors.InternalError(w, "eviction pass failed")
		return
	}

	h.logger.Info("forced eviction pass completed", slog.String("subject", subject))
	w.WriteHeader(http.StatusNoContent)
}
