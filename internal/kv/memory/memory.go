// Package memory provides an in-process kv.Store for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"contentd.org/internal/kv"
)

const defaultPageSize = 1000

type entry struct {
	value   []byte
	expires time.Time
}

// Store keeps everything in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	skew time.Duration
}

var _ kv.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return nil, kv.ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = s.clock().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) List(_ context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	s.mu.RLock()
	var keys []string
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && k > cursor && !s.expired(e) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)

	page := kv.Page{Done: true}
	if len(keys) > limit {
		keys = keys[:limit]
		page.Done = false
		page.Cursor = keys[len(keys)-1]
	}
	page.Keys = keys
	return page, nil
}

// Advance shifts the store clock forward; test hook for TTL expiry.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	s.skew += d
	s.mu.Unlock()
}

// clock and expired are called with s.mu held.
func (s *Store) clock() time.Time { return time.Now().Add(s.skew) }

func (s *Store) expired(e entry) bool {
	return !e.expires.IsZero() && s.clock().After(e.expires)
}
