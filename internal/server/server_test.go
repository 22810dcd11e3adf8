package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/arturkryukov/dapfncache/internal/api/handlers"
	"github.com/arturkryukov/dapfncache/internal/catalog"
	"github.com/arturkryukov/dapfncache/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func testHandlers(t *testing.T) Handlers {
	t.Helper()
	cat := catalog.NewDirectory(t.TempDir(), ".nc")
	logger := discardLogger()
	return Handlers{
		DAP:     handlers.NewDAPHandler(nil, nil, &handlers.SidecarSource{Catalog: cat}, cat, logger),
		Catalog: handlers.NewCatalogHandler(cat, nil, logger),
		Health:  handlers.NewHealthHandler("", nil),
		Admin:   handlers.NewAdminHandler(nil, "rc_", 0, logger),
	}
}

func TestNew_RoutesHealthLive(t *testing.T) {
	cfg := &config.Config{HTTPPort: 0}
	srv := New(cfg, discardLogger(), testHandlers(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health/live status = %d, want 200", rec.Code)
	}
}

func TestNew_RoutesCatalog(t *testing.T) {
	cfg := &config.Config{HTTPPort: 0}
	srv := New(cfg, discardLogger(), testHandlers(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /catalog status = %d, want 200", rec.Code)
	}
}

func TestNew_AdminRoutesUnauthenticatedWithoutJWKS(t *testing.T) {
	cfg := &config.Config{HTTPPort: 0}
	h := testHandlers(t)
	h.Auth = nil // no JWKS configured
	srv := New(cfg, discardLogger(), h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /admin/cache/stats without auth configured, status = %d, want 200", rec.Code)
	}
}

func TestNew_RoutesCatalogSearchUnavailableWithoutMirror(t *testing.T) {
	cfg := &config.Config{HTTPPort: 0}
	srv := New(cfg, discardLogger(), testHandlers(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/catalog/search?q=buoy", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /catalog/search without a mirror, status = %d, want 503", rec.Code)
	}
}

func TestNew_MetricsEndpointMounted(t *testing.T) {
	cfg := &config.Config{HTTPPort: 0}
	srv := New(cfg, discardLogger(), testHandlers(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", rec.Code)
	}
}
