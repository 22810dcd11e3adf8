// Package handlers implements the HTTP surface of dapfncached: DAP
// function-response evaluation, catalog browsing, health probes, and
// the admin cache endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/arturkryukov/dapfncache/internal/config"
)

const statusFail = "fail"

// ReadinessChecker reports whether an optional dependency (the
// Postgres catalog mirror) is reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler implements /health/live and /health/ready.
type HealthHandler struct {
	version  string
	cacheDir string
	db       ReadinessChecker
}

// NewHealthHandler builds a HealthHandler. db may be nil when the
// Postgres catalog mirror is not configured.
func NewHealthHandler(cacheDir string, db ReadinessChecker) *HealthHandler {
	return &HealthHandler{version: config.Version, cacheDir: cacheDir, db: db}
}

// Live handles GET /health/live: the process is up, nothing else is
// checked.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dapfncached",
	})
}

// Ready handles GET /health/ready: checks the cache directory is
// writable and, if configured, that the catalog database answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	overall := "ok"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	checks["cache_dir"] = h.checkCacheDir()
	if checks["cache_dir"].(map[string]any)["status"] != "ok" {
		overall = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	if h.db != nil {
		dbCheck := map[string]any{"status": "ok"}
		if err := h.db.Ready(r.Context()); err != nil {
			dbCheck["status"] = statusFail
			dbCheck["message"] = err.Error()
			overall = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
		checks["catalog_db"] = dbCheck
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dapfncached",
		"checks":    checks,
	})
}

func (h *HealthHandler) checkCacheDir() map[string]any {
	if h.cacheDir == "" {
		return map[string]any{"status": "ok", "message": "caching disabled"}
	}

	probe := filepath.Join(h.cacheDir, ".health_check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return map[string]any{"status": statusFail, "message": err.Error()}
	}
	_ = os.Remove(probe)
	return map[string]any{"status": "ok"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
