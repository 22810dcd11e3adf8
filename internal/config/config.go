// Package config loads and validates dapfncached's configuration from
// environment variables and, before that, from an optional BES-style
// keys file (dotted "Section.Key = value" lines) so operators can keep
// using the configuration convention of the system this daemon
// replaces. Environment variables always win over the keys file, which
// always wins over the built-in default.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Version is the build version, set via -ldflags at build time.
var Version = "dev"

// Config holds every parameter dapfncached needs to run.
type Config struct {
	// FunctionResponseCache.path. Empty disables the cache.
	CacheDir string
	// FunctionResponseCache.prefix, lowercased.
	CachePrefix string
	// FunctionResponseCache.size, in megabytes.
	CacheSizeMB int64
	// FunctionResponseCache.front.enabled
	FrontCacheEnabled bool
	// FunctionResponseCache.front.entries
	FrontCacheEntries int
	// FunctionResponseCache.front.ttl
	FrontCacheTTL time.Duration

	// Http.port
	HTTPPort int
	// Http.tls.cert / Http.tls.key. Both empty means plain HTTP.
	TLSCert string
	TLSKey  string
	// Http.jwks.url. Empty disables admin-endpoint authentication,
	// which is only acceptable outside of production.
	JWKSUrl string

	// Catalog.root. Empty disables the catalog endpoints.
	CatalogRoot string
	// Catalog.dsn. Empty disables the Postgres catalog mirror.
	CatalogDSN string

	// Log.level (debug, info, warn, error)
	LogLevel slog.Level
	// Log.format (json, text)
	LogFormat string

	// ShutdownTimeout bounds graceful HTTP server shutdown.
	ShutdownTimeout time.Duration
}

const (
	defaultCacheDir          = "/tmp/"
	defaultCacheSizeMB       = 20000 // 20 GB, matching the original default
	defaultCachePrefix       = "rc"
	defaultFrontCacheEntries = 256
	defaultFrontCacheTTL     = 10 * time.Minute
	defaultHTTPPort          = 8080
	defaultShutdownTimeout   = 5 * time.Second
)

// Load reads the keys file at keysPath (if non-empty and present),
// then overlays environment variables, validates the result, and
// returns a Config.
func Load(keysPath string) (*Config, error) {
	keys, err := loadKeysFile(keysPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}

	cfg.CacheDir = lookup(keys, "FunctionResponseCache.path", defaultCacheDir)

	cfg.CachePrefix = lowercaseASCII(lookup(keys, "FunctionResponseCache.prefix", defaultCachePrefix))

	cacheSizeMB, err := lookupInt64(keys, "FunctionResponseCache.size", defaultCacheSizeMB)
	if err != nil {
		return nil, fmt.Errorf("config: FunctionResponseCache.size: %w", err)
	}
	// size<=0 is not a startup error: it disables the cache the same way
	// a missing FunctionResponseCache.path directory does, and every
	// GetOrCompute call falls through to direct evaluation.
	cfg.CacheSizeMB = cacheSizeMB

	cfg.FrontCacheEnabled, err = lookupBool(keys, "FunctionResponseCache.front.enabled", true)
	if err != nil {
		return nil, fmt.Errorf("config: FunctionResponseCache.front.enabled: %w", err)
	}

	frontEntries, err := lookupInt(keys, "FunctionResponseCache.front.entries", defaultFrontCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("config: FunctionResponseCache.front.entries: %w", err)
	}
	cfg.FrontCacheEntries = frontEntries

	cfg.FrontCacheTTL, err = lookupDuration(keys, "FunctionResponseCache.front.ttl", defaultFrontCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("config: FunctionResponseCache.front.ttl: %w", err)
	}

	cfg.HTTPPort, err = lookupInt(keys, "Http.port", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("config: Http.port: %w", err)
	}

	cfg.TLSCert = lookup(keys, "Http.tls.cert", "")
	cfg.TLSKey = lookup(keys, "Http.tls.key", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("config: Http.tls.cert and Http.tls.key must both be set or both be empty")
	}

	cfg.JWKSUrl = lookup(keys, "Http.jwks.url", "")

	cfg.CatalogRoot = lookup(keys, "Catalog.root", "")
	cfg.CatalogDSN = lookup(keys, "Catalog.dsn", "")

	cfg.LogLevel, err = parseLogLevel(lookup(keys, "Log.level", "info"))
	if err != nil {
		return nil, fmt.Errorf("config: Log.level: %w", err)
	}

	cfg.LogFormat = lookup(keys, "Log.format", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("config: Log.format: invalid value %q, must be json or text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = lookupDuration(keys, "Http.shutdownTimeout", defaultShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("config: Http.shutdownTimeout: %w", err)
	}

	return cfg, nil
}

// SetupLogger builds the process-wide slog.Logger from cfg and installs
// it as the default logger.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid value %q, must be one of debug, info, warn, error", s)
	}
}

func lowercaseASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// envKeyFor derives the environment variable name for a dotted
// keys-file key: dots become underscores, letters are upper-cased.
// FunctionResponseCache.path becomes FUNCTIONRESPONSECACHE_PATH.
func envKeyFor(keysName string) string {
	b := []byte(keysName)
	for i, c := range b {
		switch {
		case c == '.':
			b[i] = '_'
		case c >= 'a' && c <= 'z':
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// lookup returns the value of the environment variable derived from
// keysName if set, else keysName from the keys file if present, else
// def.
func lookup(keys map[string]string, keysName, def string) string {
	if v := os.Getenv(envKeyFor(keysName)); v != "" {
		return v
	}
	if v, ok := keys[keysName]; ok {
		return v
	}
	return def
}

func lookupInt(keys map[string]string, keysName string, def int) (int, error) {
	v := lookup(keys, keysName, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func lookupInt64(keys map[string]string, keysName string, def int64) (int64, error) {
	v := lookup(keys, keysName, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func lookupBool(keys map[string]string, keysName string, def bool) (bool, error) {
	v := lookup(keys, keysName, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return b, nil
}

func lookupDuration(keys map[string]string, keysName string, def time.Duration) (time.Duration, error) {
	v := lookup(keys, keysName, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go duration syntax: 30s, 1h)", v)
	}
	return d, nil
}
