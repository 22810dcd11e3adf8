package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CacheDir != defaultCacheDir {
		t.Errorf("CacheDir default = %q, want %q", cfg.CacheDir, defaultCacheDir)
	}
	if cfg.CachePrefix != defaultCachePrefix {
		t.Errorf("CachePrefix default = %q, want %q", cfg.CachePrefix, defaultCachePrefix)
	}
	if cfg.CacheSizeMB != defaultCacheSizeMB {
		t.Errorf("CacheSizeMB default = %d, want %d", cfg.CacheSizeMB, defaultCacheSizeMB)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort default = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat default = %q, want json", cfg.LogFormat)
	}
}

func TestLoad_KeysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dapfncached.keys")
	content := "# a comment\n" +
		"FunctionResponseCache.path = /var/cache/dapfncached\n" +
		"FunctionResponseCache.prefix = BUOYS\n" +
		"Http.port = 9090\n"
	writeKeysFile(t, path, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CacheDir != "/var/cache/dapfncached" {
		t.Errorf("CacheDir = %q, want /var/cache/dapfncached", cfg.CacheDir)
	}
	if cfg.CachePrefix != "buoys" {
		t.Errorf("CachePrefix = %q, want lowercased buoys", cfg.CachePrefix)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
}

func TestLoad_EnvOverridesKeysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dapfncached.keys")
	writeKeysFile(t, path, "Http.port = 9090\n")

	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d, want 7070 (env must win over keys file)", cfg.HTTPPort)
	}
}

func TestLoad_MissingKeysFileIsNotAnError(t *testing.T) {
	if _, err := Load("/nonexistent/dapfncached.keys"); err != nil {
		t.Fatalf("Load with a missing keys file should not error, got: %v", err)
	}
}

func TestLoad_ZeroCacheSizeIsNotAnError(t *testing.T) {
	t.Setenv("FUNCTIONRESPONSECACHE_SIZE", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with a zero cache size should not error, got: %v", err)
	}
	if cfg.CacheSizeMB != 0 {
		t.Errorf("CacheSizeMB = %d, want 0", cfg.CacheSizeMB)
	}
}

func TestLoad_MismatchedTLSPair(t *testing.T) {
	t.Setenv("HTTP_TLS_CERT", "/etc/cert.pem")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error when only one of cert/key is set")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for an invalid log format")
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	t.Setenv("FUNCTIONRESPONSECACHE_FRONT_TTL", "45s")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FrontCacheTTL != 45*time.Second {
		t.Errorf("FrontCacheTTL = %v, want 45s", cfg.FrontCacheTTL)
	}
}

func writeKeysFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
}
