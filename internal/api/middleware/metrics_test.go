package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetrics_PassesThroughAndRecordsStatus(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Metrics()(next)

	req := httptest.NewRequest(http.MethodGet, "/dap/buoy.nc.dods", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("Metrics() must call the wrapped handler")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (Metrics must not alter the response)", rec.Code)
	}
}

func TestMetrics_DefaultsToOKWhenWriteHeaderNeverCalled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	handler := Metrics()(next)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/health/live":            "/health/live",
		"/health/ready":           "/health/ready",
		"/metrics":                "/metrics",
		"/admin/cache/stats":      "/admin/cache/stats",
		"/admin/cache/evict":      "/admin/cache/evict",
		"/dap/buoy.nc.dods":       "/dap/{dataset}.{response}",
		"/dap/sub/buoy.nc.dds":    "/dap/{dataset}.{response}",
		"/catalog":                "/catalog/{path...}",
		"/catalog?path=sub":       "/catalog/{path...}",
		"/unknown/route":          "/unknown/route",
	}

	for path, want := range cases {
		if got := normalizePath(path); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", path, got, want)
		}
	}
}
