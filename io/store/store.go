// Package store persists the package registry in BadgerDB.
//
// Each installed package is one key under a fixed prefix holding the
// JSON-encoded registry entry.
package store

import (
	"encoding/json"
	stdErrors "errors"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/installd/core/registry"
)

const packagePrefix = "pkg/"

// ErrNotFound returned when key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Store keeps registry entries in BadgerDB.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// New opens (creating if needed) the store at dbPath.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}

	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, errors.Wrap(err, "create badger directory")
	}

	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger db")
	}

	return &Store{db: db}, nil
}

// Save stores e under its package name.
func (s *Store) Save(e registry.Entry) error {
	if e.Name == "" {
		return errors.New("package name cannot be empty")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encode %s", e.Name)
	}
	return s.put(packagePrefix+e.Name, raw)
}

// Delete removes the entry for name. Missing entries are not an error.
func (s *Store) Delete(name string) error {
	return s.put(packagePrefix+name, nil)
}

// Load returns the entry for name. Returns ErrNotFound if it does not exist.
func (s *Store) Load(name string) (registry.Entry, error) {
	raw, err := s.get(packagePrefix + name)
	if err != nil {
		return registry.Entry{}, err
	}
	var e registry.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return registry.Entry{}, errors.Wrapf(err, "decode %s", name)
	}
	return e, nil
}

// LoadAll returns every stored entry.
func (s *Store) LoadAll() ([]registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []registry.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(packagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var e registry.Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return errors.Wrapf(err, "decode %s", item.Key())
				}
				entries = append(entries, e)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Size returns current number of stored packages.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(packagePrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		if value == nil {
			if err := txn.Delete([]byte(key)); err != nil && !stdErrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return nil
		}
		return txn.Set([]byte(key), cloneBytes(value))
	})
}

func (s *Store) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if stdErrors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func cloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}

	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
