// Package bbolt provides a BBolt-backed storage repository.
//
// The database file is opened for the duration of each call and closed
// afterwards, so several cardledger processes can share one data directory.
// BBolt's file lock serializes them; Options.Timeout bounds the wait.
package bbolt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmcleod/cardledger/storage"
	"go.etcd.io/bbolt"
)

const defaultLockTimeout = 2 * time.Second

// Store implements storage.Repository backed by a BBolt database file.
type Store struct {
	path    string
	options *bbolt.Options
}

var _ storage.Repository = (*Store)(nil)

// NewRepositoryFromFile prepares a Repository at the given path, creating the
// file (and its directory) if needed.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: defaultLockTimeout}
	} else if options.Timeout == 0 {
		opts := *options
		opts.Timeout = defaultLockTimeout
		options = &opts
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating bbolt directory: %w", err)
	}
	s := &Store{path: path, options: options}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("closing bbolt db: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open() (*bbolt.DB, error) {
	db, err := bbolt.Open(s.path, 0600, s.options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return db, nil
}

func (s *Store) update(fn func(tx *bbolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *Store) view(fn func(tx *bbolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (s *Store) Put(bucket, key string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *Store) Get(bucket, key string) (*storage.Envelope, error) {
	var envelope storage.Envelope
	err := s.view(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%s: %w", bucket, storage.ErrBucketNotFound)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &envelope)
	})
	if err != nil {
		return nil, err
	}
	return &envelope, nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *Store) Delete(bucket, key string) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
