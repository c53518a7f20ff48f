package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Settings keys in the kv table.
const (
	KeyCurrentFeed = "current_feed"
	KeyLastPost    = "last_post"
)

// Store persists the tracked feed, its high-water mark, and the feeds that
// have been followed before.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CurrentFeed returns the persisted feed id, if any.
func (s *Store) CurrentFeed(ctx context.Context) (string, bool, error) {
	return s.get(ctx, KeyCurrentFeed)
}

// LastPost returns the persisted high-water mark, if any.
func (s *Store) LastPost(ctx context.Context) (int64, bool, error) {
	v, ok, err := s.get(ctx, KeyLastPost)
	if err != nil || !ok {
		return 0, false, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s %q: %w", KeyLastPost, v, err)
	}
	return ts, true, nil
}

// SetCurrentFeed stores id; an empty id clears it.
func (s *Store) SetCurrentFeed(ctx context.Context, id string) error {
	if id == "" {
		return s.del(ctx, KeyCurrentFeed)
	}
	return s.set(ctx, KeyCurrentFeed, id)
}

// SetLastPost stores ts; a negative ts clears it.
func (s *Store) SetLastPost(ctx context.Context, ts int64) error {
	if ts < 0 {
		return s.del(ctx, KeyLastPost)
	}
	return s.set(ctx, KeyLastPost, strconv.FormatInt(ts, 10))
}

// AddKnownFeed records that id has been followed. Repeats are ignored.
func (s *Store) AddKnownFeed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO known_feeds(feed_id) VALUES(?) ON CONFLICT(feed_id) DO NOTHING`), id)
	if err != nil {
		return fmt.Errorf("add known feed: %w", err)
	}
	return nil
}

// KnownFeeds lists every recorded feed, oldest first.
func (s *Store) KnownFeeds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feed_id FROM known_feeds ORDER BY first_seen, feed_id`)
	if err != nil {
		return nil, fmt.Errorf("list known feeds: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, rebind(s.driver, `SELECT value FROM kv WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, rebind(s.driver,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`), key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, rebind(s.driver, `DELETE FROM kv WHERE key = ?`), key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}
