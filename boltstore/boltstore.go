// Package boltstore implements a persistent typedstore.Driver on top of a
// bbolt database file. It plays the role of origin-wide local storage:
// values survive restarts and every Store sharing the file sees them.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"code.byted.org/khicago/typedstore"
)

// DefaultBucket holds all keys unless WithBucket says otherwise.
const DefaultBucket = "typedstore"

// Store is a typedstore.Driver backed by boltdb.
type Store struct {
	path    string
	bucket  []byte
	db      *bbolt.DB
	logger  *zap.Logger
	timeout time.Duration
	noSync  bool
}

var _ typedstore.Driver = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBucket stores keys in the named bucket.
func WithBucket(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithNoSync disables fsync per transaction. Use only in tests.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// Open creates the bolt file if it doesn't exist and opens it otherwise.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		bucket:  []byte(DefaultBucket),
		logger:  zap.NewNop(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: s.timeout, NoSync: s.noSync})
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb file: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	s.db = db

	s.logger.Info("Resources opened", zap.String("path", s.path), zap.ByteString("bucket", s.bucket))
	return s, nil
}

// Close the connection to the bolt database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		// bolt memory is only valid inside the transaction; string() copies it.
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", typedstore.ErrNotFound
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		s.logger.Error("Failed to write key", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Keys scans the "prefix:" range with a cursor.
func (s *Store) Keys(ctx context.Context, prefix, pattern string) ([]string, error) {
	var keys []string
	start := []byte(prefix + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(start); k != nil && bytes.HasPrefix(k, start); k, _ = c.Next() {
			ok, err := typedstore.MatchKey(string(k), prefix, pattern)
			if err != nil {
				return err
			}
			if ok {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
