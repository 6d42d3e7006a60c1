// Package bolt implements the kv gateway on an embedded bbolt file.
// TTLs are stored in a small envelope next to each payload; an expired
// entry reads as absent and is cleaned up lazily.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"contentd.org/internal/kv"
)

var bucketName = []byte("contentd")

const defaultPageSize = 1000

type envelope struct {
	Value   []byte `json:"v"`
	Expires int64  `json:"exp,omitempty"` // unix seconds, 0 = never
}

// Store is a kv.Store backed by a single bbolt bucket.
type Store struct {
	path   string
	db     *bolt.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ kv.Store = (*Store)(nil)

// NewStore returns a store over the file at path. Call Open before use.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Open creates the bbolt file if it doesn't exist and opens it otherwise.
func (s *Store) Open() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(s.path), err)
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bbolt file: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.logger.Info("kv store opened", zap.String("path", s.path))
	return nil
}

// Close the underlying database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	expired := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return kv.ErrNotFound
		}
		var e envelope
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode envelope %q: %w", key, err)
		}
		if e.Expires != 0 && s.now().Unix() >= e.Expires {
			expired = true
			return kv.ErrNotFound
		}
		out = append([]byte(nil), e.Value...)
		return nil
	})
	if expired {
		// Lazy cleanup; best effort outside the read transaction.
		_ = s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketName).Delete([]byte(key))
		})
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := envelope{Value: value}
	if ttl > 0 {
		e.Expires = s.now().Add(ttl).Unix()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), raw)
	})
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (s *Store) List(_ context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := kv.Page{Done: true}
	now := s.now().Unix()

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		pfx := []byte(prefix)

		k, v := c.Seek(pfx)
		if cursor != "" {
			k, v = c.Seek([]byte(cursor))
			if k != nil && string(k) == cursor {
				k, v = c.Next()
			}
		}
		for ; k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			var e envelope
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode envelope %q: %w", k, err)
			}
			if e.Expires != 0 && now >= e.Expires {
				continue
			}
			if len(page.Keys) == limit {
				page.Done = false
				page.Cursor = page.Keys[len(page.Keys)-1]
				return nil
			}
			page.Keys = append(page.Keys, string(k))
		}
		return nil
	})
	if err != nil {
		return kv.Page{}, err
	}
	return page, nil
}
