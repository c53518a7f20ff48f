// Package db provides database connection helpers, schema migration, and the
// settings store that checkpoints the tracked live feed.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-Go sqlite driver registered as 'sqlite'
)

// Registered driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// DefaultDSN is a sqlite file in the working directory.
const DefaultDSN = "file:livefeed.db"

// DriverFor picks the driver for a DSN: postgres URLs use pgx, anything else
// is handed to sqlite.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open opens the database named by dsn and applies connection settings for
// its driver. An empty dsn uses DefaultDSN.
func Open(dsn string) (*sql.DB, string, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	driver := DriverFor(dsn)
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}
	switch driver {
	case DriverSQLite:
		// One connection keeps ":memory:" databases shared and serialises writers.
		conn.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := conn.Exec(pragma); err != nil {
				conn.Close()
				return nil, "", fmt.Errorf("%s: %w", pragma, err)
			}
		}
	case DriverPostgres:
		conn.SetMaxOpenConns(5)
		conn.SetMaxIdleConns(2)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}
	return conn, driver, nil
}

// Migrate applies idempotent schema changes for the settings tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS known_feeds (
			feed_id TEXT PRIMARY KEY,
			first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_known_feeds_first_seen ON known_feeds(first_seen)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func rebind(driver, q string) string {
	if driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
