package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore implements Store on an embedded LevelDB database.
//
// LevelDB has no native expiry; the ttl passed to Set is ignored and stale
// entries are detected through their own expiry. Partitions are key
// prefixes: "p:<baseKey>\x00<key>". Unpartitioned entries use "k:<key>".
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (or creates) the database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return NewLevelDBStore(db), nil
}

// NewLevelDBStore wraps an open database.
func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	if db == nil {
		panic("leveldb database cannot be nil")
	}
	return &LevelDBStore{db: db}
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func partitionPrefix(baseKey string) []byte {
	return []byte("p:" + baseKey + "\x00")
}

func entryKey(key, baseKey string) []byte {
	if baseKey == "" {
		return []byte("k:" + key)
	}
	return append(partitionPrefix(baseKey), key...)
}

// Get retrieves an entry by key.
func (s *LevelDBStore) Get(ctx context.Context, key, baseKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get(entryKey(key, baseKey), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return data, nil
}

// Set stores an entry.
func (s *LevelDBStore) Set(ctx context.Context, key string, value []byte, _ time.Duration, baseKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(entryKey(key, baseKey), value, nil); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *LevelDBStore) Delete(ctx context.Context, key, baseKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(entryKey(key, baseKey), nil); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// Exists reports whether the partition holds at least one entry.
func (s *LevelDBStore) Exists(ctx context.Context, baseKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	it := s.db.NewIterator(util.BytesPrefix(partitionPrefix(baseKey)), nil)
	defer it.Release()

	found := it.First()
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("leveldb iterate: %w", err)
	}
	return found, nil
}

// Invalidate drops every entry of the partition in a single batch.
func (s *LevelDBStore) Invalidate(ctx context.Context, baseKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it := s.db.NewIterator(util.BytesPrefix(partitionPrefix(baseKey)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("leveldb iterate: %w", err)
	}

	if err := s.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("leveldb invalidate: %w", err)
	}
	return nil
}
