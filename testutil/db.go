package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/livefeed-relay/db"
)

// SetupTestDB opens a migrated database for a test. It uses TEST_PG_DSN when
// set and a throwaway sqlite file otherwise.
func SetupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = "file:" + filepath.Join(t.TempDir(), "test.db")
	}
	database, driver, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, driver
}

// SetupTestStore returns a settings store backed by SetupTestDB.
func SetupTestStore(t *testing.T) *db.Store {
	t.Helper()
	database, driver := SetupTestDB(t)
	return db.NewStore(database, driver)
}
