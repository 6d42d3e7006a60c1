// Package pg implements the kv gateway on Postgres, for deployments
// that want the documents in a managed database instead of an embedded
// file. A single kv_entries table carries every document; expiry is a
// nullable timestamp filtered on every read.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"contentd.org/internal/kv"
)

const defaultPageSize = 1000

// Schema creates the backing table; applied by cmd/migrate.
const Schema = `
create table if not exists kv_entries (
	key        text primary key,
	value      bytea not null,
	expires_at timestamptz
);
create index if not exists kv_entries_expiry on kv_entries (expires_at) where expires_at is not null;
`

// Store is a kv.Store over database/sql with the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)

// Open connects to dsn with pool settings tuned for a read-mostly load.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for readiness pings.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		select value from kv_entries
		where key = $1 and (expires_at is null or expires_at > now())
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into kv_entries (key, value, expires_at)
		values ($1, $2, $3)
		on conflict (key) do update
		set value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expires)
	if err != nil {
		return fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from kv_entries where key = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	// Fetch one extra row to learn whether the prefix is exhausted.
	rows, err := s.db.QueryContext(ctx, `
		select key from kv_entries
		where key like $1 || '%' and key > $2
		  and (expires_at is null or expires_at > now())
		order by key
		limit $3
	`, prefix, cursor, limit+1)
	if err != nil {
		return kv.Page{}, fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return kv.Page{}, fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return kv.Page{}, fmt.Errorf("%w: %v", kv.ErrUnavailable, err)
	}

	page := kv.Page{Done: true}
	if len(keys) > limit {
		keys = keys[:limit]
		page.Done = false
		page.Cursor = keys[len(keys)-1]
	}
	page.Keys = keys
	return page, nil
}
