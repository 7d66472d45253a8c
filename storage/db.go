package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path string

	// InMemory is used by tests so we don't leave badger directories around
	InMemory bool
}

// Storage is the KV layer under the secret store and the oracle registry.
// Keys are namespaced by prefix ("secret:", "oracle:") by the callers.
type Storage interface {
	Close() error

	Exist(key []byte) (bool, error)
	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	CountKeysByPrefix(prefix []byte) (int64, error)

	Set(key, value []byte) error
	SetIfAbsent(key, value []byte) (bool, error)
	BatchWrite(updates map[string][]byte) error
	Delete(key []byte) error

	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)
	Load(ctx context.Context, r io.Reader) error

	DbPath() string
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

var ErrKeyNotFound = badger.ErrKeyNotFound

type BadgerStorage struct {
	config *Config
	db     *badger.DB
}

// Create storage at the particular path
func NewWithPath(path string) (Storage, error) {
	return New(&Config{Path: path})
}

// Create storage with the given config
func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	db, err := badger.Open(opts.WithSyncWrites(true))
	if err != nil {
		return nil, err
	}

	return &BadgerStorage{
		config: c,
		db:     db,
	}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// SetIfAbsent writes the value only when the key doesn't exist yet. The
// returned bool reports whether the write happened. Registration relies on
// this so a duplicate register is a no-op, not an overwrite.
func (s *BadgerStorage) SetIfAbsent(key, value []byte) (bool, error) {
	written := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		written = true
		return txn.Set(key, value)
	})

	return written, err
}

func (s *BadgerStorage) BatchWrite(updates map[string][]byte) error {
	txn := s.db.NewTransaction(true)
	for k, v := range updates {
		if err := txn.Set([]byte(k), v); err == badger.ErrTxnTooBig {
			_ = txn.Commit()
			txn = s.db.NewTransaction(true)
			_ = txn.Set([]byte(k), v)
		}
	}
	return txn.Commit()
}

func (s *BadgerStorage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStorage) Exist(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	return value, err
}

// GetByPrefix return a list of key/value item whose key prefix matches
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			k := item.KeyCopy(nil)
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}

			result = append(result, &KeyValueItem{
				Key:   k,
				Value: v,
			})
		}
		return nil
	})

	return result, err
}

// CountKeysByPrefix return total key under a specfic prefix. Key only, very
// cheap because it operates on the lsm tree alone.
func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	total := int64(0)

	if len(prefix) == 0 {
		return 0, fmt.Errorf("cannot count prefix with length 0")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total += 1
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	return total, nil
}

// Backup streams a full or incremental badger backup to w. The returned
// version can be passed as since on the next call for an incremental backup.
func (s *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	return s.db.Backup(w, since)
}

// Load restores a backup stream into the database.
func (s *BadgerStorage) Load(ctx context.Context, r io.Reader) error {
	return s.db.Load(r, 16)
}

func (s *BadgerStorage) DbPath() string {
	return s.config.Path
}

// Destroy is destructive action that shutdown a database, and wipe out its entire data directory
func Destroy(s *BadgerStorage) error {
	s.Close()
	return os.RemoveAll(s.config.Path)
}
