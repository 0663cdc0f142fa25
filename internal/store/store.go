// ABOUTME: Persisted host values backed by badger
// ABOUTME: Stores JSON-encoded values under string keys for the loopback host
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "loopback/"

// ErrClosed is returned after Close
var ErrClosed = errors.New("store closed")

// Config holds store configuration
type Config struct {
	// Dir is the badger directory. Empty keeps everything in memory.
	Dir    string
	Logger *log.Logger
}

// Store keeps host persisted values
type Store struct {
	db     *badger.DB
	logger *log.Logger
}

// Open opens or creates the store
func Open(config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	opts := badger.DefaultOptions(config.Dir)
	if config.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger := config.Logger.With("component", "store")
	logger.Debug("store opened", "dir", config.Dir, "in_memory", config.Dir == "")
	return &Store{db: db, logger: logger}, nil
}

// Read returns the value stored under key. ok is false when the key was never written.
func (s *Store) Read(key string) (value any, ok bool, err error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}

	var raw []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return value, true, nil
}

// Write stores value under key
func (s *Store) Write(key string, value any) error {
	if s.db == nil {
		return ErrClosed
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	s.logger.Debug("value persisted", "key", key, "value", value)
	return nil
}

// Delete removes key
func (s *Store) Delete(key string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Keys lists every stored key
func (s *Store) Keys() ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

// Close flushes and closes the store
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
