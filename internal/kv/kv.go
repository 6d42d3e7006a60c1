// Package kv defines the key-value gateway the rest of the service is
// built on. The store offers single-key durability only: no
// transactions, no secondary indexes, no insert-if-absent. Everything
// above it (id allocation, the ownership ledger) is designed around
// that limitation.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Delimiter joins key segments, e.g. "spaces::A1b2C3d4E5f".
const Delimiter = "::"

var (
	// ErrNotFound reports an absent (or expired) key.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable reports that the store itself could not be
	// reached. Callers must never read it as "absent".
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Page is one slice of a prefix listing.
type Page struct {
	Keys   []string
	Cursor string
	// Done reports whether the keyspace under the prefix is exhausted.
	Done bool
}

// Store is the gateway contract. Writes are durable once acknowledged;
// reads after an acknowledged write on the same key observe it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value under key. A non-zero ttl expires the entry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// List returns keys under prefix starting after cursor, at most
	// limit per page (implementation default when limit <= 0).
	List(ctx context.Context, prefix, cursor string, limit int) (Page, error)
}

// Key joins segments with the fixed delimiter.
func Key(segments ...string) string {
	return strings.Join(segments, Delimiter)
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// PutJSON encodes v and writes it under key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw, ttl)
}

// ListAll drains a prefix listing into a single key slice.
func ListAll(ctx context.Context, s Store, prefix string) ([]string, error) {
	var keys []string
	var cursor string
	for {
		page, err := s.List(ctx, prefix, cursor, 0)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page.Keys...)
		if page.Done {
			return keys, nil
		}
		cursor = page.Cursor
	}
}
