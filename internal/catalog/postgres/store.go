// Package postgres mirrors a filesystem catalog listing into
// PostgreSQL so it can be queried without re-walking the filesystem on
// every request. It is optional: dapfncached runs perfectly well
// without a Catalog.dsn configured, backed only by catalog.Directory.
// Grounded on a pgxpool connect/migrate/readiness-check pattern and a
// plain-SQL, no-ORM repository style.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/dapfncache/internal/catalog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store mirrors catalog.Entry records into the catalog_entries table.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog/postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Migrate applies every embedded migration to dsn's database.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog/postgres: migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("catalog/postgres: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("catalog/postgres: apply migrations: %w", err)
	}
	return nil
}

// Sync replaces the catalog_entries rows for basePath's subtree with
// entries, inside one transaction. basePath is stored as a prefix so
// concurrent syncs of different subtrees never blindly truncate the
// whole table.
func (s *Store) Sync(ctx context.Context, basePath string, entries []catalog.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_entries WHERE path LIKE $1`, basePath+"%"); err != nil {
		return fmt.Errorf("catalog/postgres: clear subtree %s: %w", basePath, err)
	}

	for _, e := range entries {
		path := basePath + "/" + e.Name
		_, err := tx.Exec(ctx, `
			INSERT INTO catalog_entries (path, collection, is_data, name, size_bytes, mod_time)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (path) DO UPDATE SET
				collection = EXCLUDED.collection,
				is_data = EXCLUDED.is_data,
				size_bytes = EXCLUDED.size_bytes,
				mod_time = EXCLUDED.mod_time,
				scanned_at = now()`,
			path, e.Collection, e.IsData, e.Name, e.Size, e.ModTime)
		if err != nil {
			return fmt.Errorf("catalog/postgres: upsert %s: %w", path, err)
		}
	}

	return tx.Commit(ctx)
}

// Search returns catalog entries whose name contains query
// (case-insensitive), most recently modified first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]catalog.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collection, is_data, name, size_bytes, mod_time
		FROM catalog_entries
		WHERE name ILIKE $1
		ORDER BY mod_time DESC
		LIMIT $2`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: search: %w", err)
	}
	defer rows.Close()

	var out []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var modTime time.Time
		if err := rows.Scan(&e.Collection, &e.IsData, &e.Name, &e.Size, &modTime); err != nil {
			return nil, fmt.Errorf("catalog/postgres: scan row: %w", err)
		}
		e.ModTime = modTime
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ready checks connectivity for the daemon's readiness endpoint.
func (s *Store) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
