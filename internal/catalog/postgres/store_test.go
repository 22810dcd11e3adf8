package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/dapfncache/internal/catalog"
)

// setupTestDSN starts a disposable Postgres container and returns a
// connection string to it. Skipped unless TEST_INTEGRATION is set,
// since it needs a working Docker daemon.
func setupTestDSN(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("dapfncache_test"),
		tcpostgres.WithUsername("dapfncache"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return dsn
}

func TestMigrateAndConnect(t *testing.T) {
	dsn := setupTestDSN(t)

	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Applying migrations twice must be a no-op, not an error.
	if err := Migrate(dsn); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	ctx := context.Background()
	store, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer store.Close()

	if err := store.Ready(ctx); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestStore_SyncAndSearch(t *testing.T) {
	dsn := setupTestDSN(t)
	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	store, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer store.Close()

	entries := []catalog.Entry{
		{Name: "buoy.nc", IsData: true, Size: 1024, ModTime: time.Now()},
		{Name: "readme.txt", IsData: false, Size: 32, ModTime: time.Now()},
	}
	if err := store.Sync(ctx, "/root", entries); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	found, err := store.Search(ctx, "buoy", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Name != "buoy.nc" {
		t.Errorf("Search(\"buoy\") = %v, want just [buoy.nc]", found)
	}
}
