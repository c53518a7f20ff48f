package db

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// openTestStores returns a sqlite store in a temp dir, plus a postgres store
// when TEST_PG_DSN is set.
func openTestStores(t *testing.T) map[string]*Store {
	t.Helper()
	dsns := map[string]string{
		"sqlite": "file:" + filepath.Join(t.TempDir(), "test.db"),
	}
	if pg := os.Getenv("TEST_PG_DSN"); pg != "" {
		dsns["postgres"] = pg
	}
	stores := make(map[string]*Store, len(dsns))
	for name, dsn := range dsns {
		conn, driver, err := Open(dsn)
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := Migrate(context.Background(), conn); err != nil {
			t.Fatalf("%s: migrate: %v", name, err)
		}
		if driver == DriverPostgres {
			for _, q := range []string{`DELETE FROM kv`, `DELETE FROM known_feeds`} {
				if _, err := conn.Exec(q); err != nil {
					t.Fatalf("%s: reset: %v", name, err)
				}
			}
		}
		stores[name] = NewStore(conn, driver)
	}
	return stores
}

func TestDriverFor(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":   DriverPostgres,
		"postgresql://u:p@localhost/db": DriverPostgres,
		"file:livefeed.db":              DriverSQLite,
		":memory:":                      DriverSQLite,
		"/var/lib/livefeed.db":          DriverSQLite,
	}
	for dsn, want := range tests {
		if got := DriverFor(dsn); got != want {
			t.Errorf("DriverFor(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	if got := rebind(DriverSQLite, q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	if got, want := rebind(DriverPostgres, q), `SELECT a FROM t WHERE x = $1 AND y = $2`; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	conn, _, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 3; i++ {
		if err := Migrate(context.Background(), conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
}

func TestStore_CurrentFeed(t *testing.T) {
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := s.CurrentFeed(ctx); err != nil || ok {
				t.Fatalf("empty store CurrentFeed() ok=%v err=%v", ok, err)
			}
			if err := s.SetCurrentFeed(ctx, "abc123"); err != nil {
				t.Fatalf("SetCurrentFeed: %v", err)
			}
			if err := s.SetCurrentFeed(ctx, "def456"); err != nil {
				t.Fatalf("SetCurrentFeed overwrite: %v", err)
			}
			id, ok, err := s.CurrentFeed(ctx)
			if err != nil || !ok || id != "def456" {
				t.Fatalf("CurrentFeed() = %q,%v,%v want def456", id, ok, err)
			}
			if err := s.SetCurrentFeed(ctx, ""); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if _, ok, _ := s.CurrentFeed(ctx); ok {
				t.Error("CurrentFeed() still set after clearing")
			}
		})
	}
}

func TestStore_LastPost(t *testing.T) {
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := s.LastPost(ctx); err != nil || ok {
				t.Fatalf("empty store LastPost() ok=%v err=%v", ok, err)
			}
			if err := s.SetLastPost(ctx, 1_700_000_123); err != nil {
				t.Fatalf("SetLastPost: %v", err)
			}
			ts, ok, err := s.LastPost(ctx)
			if err != nil || !ok || ts != 1_700_000_123 {
				t.Fatalf("LastPost() = %d,%v,%v", ts, ok, err)
			}
			if err := s.SetLastPost(ctx, 0); err != nil {
				t.Fatalf("SetLastPost(0): %v", err)
			}
			if ts, ok, _ := s.LastPost(ctx); !ok || ts != 0 {
				t.Errorf("LastPost() = %d,%v want 0,true", ts, ok)
			}
			if err := s.SetLastPost(ctx, -1); err != nil {
				t.Fatalf("SetLastPost(-1): %v", err)
			}
			if _, ok, _ := s.LastPost(ctx); ok {
				t.Error("LastPost() still set after clearing")
			}
		})
	}
}

func TestStore_KnownFeeds(t *testing.T) {
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a1", "b2", "a1"} {
				if err := s.AddKnownFeed(ctx, id); err != nil {
					t.Fatalf("AddKnownFeed(%q): %v", id, err)
				}
			}
			got, err := s.KnownFeeds(ctx)
			if err != nil {
				t.Fatalf("KnownFeeds: %v", err)
			}
			if !reflect.DeepEqual(got, []string{"a1", "b2"}) {
				t.Errorf("KnownFeeds() = %v, want [a1 b2]", got)
			}
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	conn, driver, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewStore(conn, driver)
	if err := s.SetCurrentFeed(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastPost(ctx, 110); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	conn, driver, err = Open(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer conn.Close()
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	s = NewStore(conn, driver)
	if id, ok, _ := s.CurrentFeed(ctx); !ok || id != "abc123" {
		t.Errorf("CurrentFeed() after reopen = %q,%v", id, ok)
	}
	if ts, ok, _ := s.LastPost(ctx); !ok || ts != 110 {
		t.Errorf("LastPost() after reopen = %d,%v", ts, ok)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
