package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

// Key prefixes for different data types
const (
	prefixMeta = "m:" // StoredLog metadata as JSON
	prefixData = "d:" // raw payload
)

// BadgerStore is a BadgerDB-backed LogStore.
type BadgerStore struct {
	db          *badger.DB
	initialized bool
	readOnly    bool
	mu          sync.RWMutex
	now         func() time.Time
}

// NewBadgerStore creates a new BadgerDB store.
func NewBadgerStore() *BadgerStore {
	return &BadgerStore{now: time.Now}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerStore) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.db = db
	b.readOnly = readOnly
	b.initialized = true
	return nil
}

// Close releases all resources held by the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

func metaKey(name string) []byte { return []byte(prefixMeta + name) }
func dataKey(name string) []byte { return []byte(prefixData + name) }

// Put stores data under name, replacing any previous payload.
func (b *BadgerStore) Put(ctx context.Context, name string, format ocel.Format, data []byte) (StoredLog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return StoredLog{}, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return StoredLog{}, err
	}

	sum := sha256.Sum256(data)
	meta := StoredLog{
		Name:     name,
		Format:   format,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
		StoredAt: b.now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return StoredLog{}, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(name), data); err != nil {
			return fmt.Errorf("setting payload: %w", err)
		}
		if err := txn.Set(metaKey(name), encoded); err != nil {
			return fmt.Errorf("setting metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return StoredLog{}, err
	}
	return meta, nil
}

// Get returns the metadata and payload stored under name.
func (b *BadgerStore) Get(ctx context.Context, name string) (StoredLog, []byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return StoredLog{}, nil, ErrNotInitialized
	}

	var (
		meta StoredLog
		data []byte
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(name))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("unmarshaling metadata: %w", err)
		}

		item, err = txn.Get(dataKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return StoredLog{}, nil, fmt.Errorf("%w: %q", ErrLogNotFound, name)
	}
	if err != nil {
		return StoredLog{}, nil, fmt.Errorf("getting log: %w", err)
	}
	return meta, data, nil
}

// List returns the metadata of every stored log, sorted by name.
func (b *BadgerStore) List(ctx context.Context) ([]StoredLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	out := []StoredLog{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMeta)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Badger iterates in key order, so the result is sorted by name.
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var meta StoredLog
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return fmt.Errorf("unmarshaling metadata: %w", err)
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the log stored under name.
func (b *BadgerStore) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", ErrLogNotFound, name)
			}
			return err
		}
		if err := txn.Delete(metaKey(name)); err != nil {
			return fmt.Errorf("deleting metadata: %w", err)
		}
		if err := txn.Delete(dataKey(name)); err != nil {
			return fmt.Errorf("deleting payload: %w", err)
		}
		return nil
	})
}
