package store

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BulkStore is the unconstrained object store backed by an embedded
// BadgerDB. It holds the payloads the secure store is too small for.
type BulkStore struct {
	db *badger.DB
}

// OpenBulkStore opens a persistent bulk store at dir.
func OpenBulkStore(dir string) (*BulkStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create bulk store dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open bulk store: %w", err)
	}
	return &BulkStore{db: db}, nil
}

// OpenBulkStoreInMemory opens an in-memory bulk store for testing.
func OpenBulkStoreInMemory() (*BulkStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open bulk store: %w", err)
	}
	return &BulkStore{db: db}, nil
}

// Close closes the underlying database.
func (b *BulkStore) Close() error {
	return b.db.Close()
}

// GetItem reads the value for key. The second return is false when the key
// is absent.
func (b *BulkStore) GetItem(key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(value), true, nil
}

// SetItem stores value under key, overwriting any previous value.
func (b *BulkStore) SetItem(key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes the entry for key. Removing a missing key is not an
// error.
func (b *BulkStore) RemoveItem(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// MultiRemove deletes all the given keys in one transaction.
func (b *BulkStore) MultiRemove(keys []string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("multi remove: %w", err)
	}
	return nil
}

// GetAllKeys returns every key in the store.
func (b *BulkStore) GetAllKeys() ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}
