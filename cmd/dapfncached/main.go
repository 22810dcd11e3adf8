// Command dapfncached serves DAP function-response cache lookups over
// HTTP: it evaluates constraint expressions against catalog datasets
// and transparently caches the results on disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arturkryukov/dapfncache/internal/api/handlers"
	"github.com/arturkryukov/dapfncache/internal/api/middleware"
	"github.com/arturkryukov/dapfncache/internal/api/openapi"
	"github.com/arturkryukov/dapfncache/internal/cache/rescache"
	"github.com/arturkryukov/dapfncache/internal/catalog"
	"github.com/arturkryukov/dapfncache/internal/catalog/postgres"
	"github.com/arturkryukov/dapfncache/internal/config"
	"github.com/arturkryukov/dapfncache/internal/constraint"
	"github.com/arturkryukov/dapfncache/internal/server"
)

// catalogSyncInterval bounds how stale the Postgres catalog mirror can
// get relative to the filesystem it mirrors.
const catalogSyncInterval = 5 * time.Minute

func main() {
	keysPath := flag.String("config", "", "path to a BES-style keys configuration file")
	flag.Parse()

	cfg, err := config.Load(*keysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("dapfncached starting",
		slog.String("version", config.Version),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("cache_dir", cfg.CacheDir),
	)

	if _, err := openapi.Load(); err != nil {
		logger.Error("embedded openapi document is invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 1. Response cache.
	rc := rescache.New(rescache.Config{
		Dir:          cfg.CacheDir,
		Prefix:       cfg.CachePrefix,
		MaxSizeBytes: uint64(cfg.CacheSizeMB) * 1024 * 1024,
		Logger:       logger,
	})
	rescache.SetDefault(rc)

	var cache handlers.GetOrComputer = rc
	if cfg.FrontCacheEnabled {
		cache = rescache.WithFrontCache(rc, cfg.FrontCacheEntries, cfg.FrontCacheTTL)
		logger.Info("front cache enabled", slog.Int("entries", cfg.FrontCacheEntries), slog.Duration("ttl", cfg.FrontCacheTTL))
	}

	// 2. Catalog.
	catalogDir := catalog.NewDirectory(cfg.CatalogRoot, ".nc", ".h5", ".hdf", ".dapmeta.json")

	var dbStore *postgres.Store
	if cfg.CatalogDSN != "" {
		if err := postgres.Migrate(cfg.CatalogDSN); err != nil {
			logger.Error("catalog database migration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		dbStore, err = postgres.Connect(context.Background(), cfg.CatalogDSN)
		if err != nil {
			logger.Error("catalog database connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer dbStore.Close()
		logger.Info("catalog database mirror enabled")

		syncCatalog(context.Background(), catalogDir, dbStore, logger)
		go runCatalogSyncLoop(catalogDir, dbStore, logger)
	}

	// 3. Handlers.
	eval := constraint.NewBuiltinEvaluator()
	source := &handlers.SidecarSource{Catalog: catalogDir}

	var dbReady handlers.ReadinessChecker
	var search handlers.Searcher
	if dbStore != nil {
		dbReady = dbStore
		search = dbStore
	}

	h := server.Handlers{
		DAP:     handlers.NewDAPHandler(cache, eval, source, catalogDir, logger),
		Catalog: handlers.NewCatalogHandler(catalogDir, search, logger),
		Health:  handlers.NewHealthHandler(cfg.CacheDir, dbReady),
		Admin:   handlers.NewAdminHandler(rc.Ledger(), rc.EntryPrefix(), uint64(cfg.CacheSizeMB)*1024*1024, logger),
	}

	if cfg.JWKSUrl != "" {
		auth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{JWKSURL: cfg.JWKSUrl}, logger)
		if err != nil {
			logger.Warn("jwks unavailable, admin endpoints will run without authentication",
				slog.String("jwks_url", cfg.JWKSUrl), slog.String("error", err.Error()))
		} else {
			h.Auth = auth
			logger.Info("jwt authentication configured", slog.String("jwks_url", cfg.JWKSUrl))
		}
	} else {
		logger.Warn("no jwks url configured, admin endpoints are unauthenticated")
	}

	// 4. HTTP server.
	srv := server.New(cfg, logger, h)
	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("dapfncached stopped")
}

// syncCatalog walks dir's filesystem tree and mirrors it into store,
// replacing the whole table in one transaction.
func syncCatalog(ctx context.Context, dir *catalog.Directory, store *postgres.Store, logger *slog.Logger) {
	entries, err := dir.Walk()
	if err != nil {
		logger.Error("catalog walk failed, skipping database sync", slog.String("error", err.Error()))
		return
	}
	if err := store.Sync(ctx, "", entries); err != nil {
		logger.Error("catalog database sync failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("catalog database mirror synced", slog.Int("entries", len(entries)))
}

// runCatalogSyncLoop re-syncs the catalog database mirror on a fixed
// interval for the lifetime of the process.
func runCatalogSyncLoop(dir *catalog.Directory, store *postgres.Store, logger *slog.Logger) {
	ticker := time.NewTicker(catalogSyncInterval)
	defer ticker.Stop()
	for range ticker.C {
		syncCatalog(context.Background(), dir, store, logger)
	}
}
