package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Benny93/fedgraph/internal/federation"
)

// Key prefixes for different data types
const (
	prefixFederation = "f:" // msgpack federation records
	prefixSummary    = "m:" // JSON federation summaries
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	mu          sync.RWMutex
	count       int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	b.count = b.countFromDB()
	return nil
}

// countFromDB counts the stored summaries.
func (b *BadgerBackend) countFromDB() int {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixSummary)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
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

// SaveFederation stores the federation record and its summary in one batch.
func (b *BadgerBackend) SaveFederation(ctx context.Context, fed *federation.Federation) error {
	if fed.Name == "" {
		return ErrInvalidName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}

	record, err := msgpack.Marshal(fed)
	if err != nil {
		return fmt.Errorf("encoding federation: %w", err)
	}
	summary, err := json.Marshal(fed.Summary())
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	exists, err := b.exists(fed.Name)
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	if err := wb.Set(federationKey(fed.Name), record); err != nil {
		return fmt.Errorf("writing federation: %w", err)
	}
	if err := wb.Set(summaryKey(fed.Name), summary); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing batch: %w", err)
	}

	if !exists {
		b.count++
	}
	return nil
}

func (b *BadgerBackend) exists(name string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(summaryKey(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking federation: %w", err)
	}
	return true, nil
}

// LoadFederation decodes the federation stored under name.
func (b *BadgerBackend) LoadFederation(ctx context.Context, name string) (*federation.Federation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	var fed federation.Federation
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(federationKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &fed)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading federation %s: %w", name, err)
	}
	return &fed, nil
}

// GetSummary reads the summary stored under name.
func (b *BadgerBackend) GetSummary(ctx context.Context, name string) (*federation.Summary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	var s federation.Summary
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(summaryKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading summary %s: %w", name, err)
	}
	return &s, nil
}

// ListFederations scans the summary prefix.
func (b *BadgerBackend) ListFederations(ctx context.Context) ([]federation.Summary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixSummary)
	it := txn.NewIterator(opts)
	defer it.Close()

	summaries := []federation.Summary{}
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var s federation.Summary
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		}); err != nil {
			return nil, fmt.Errorf("decoding summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// DeleteFederation removes both keys of a federation.
func (b *BadgerBackend) DeleteFederation(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(summaryKey(name)); err != nil {
			return err
		}
		if err := txn.Delete(federationKey(name)); err != nil {
			return err
		}
		return txn.Delete(summaryKey(name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting federation %s: %w", name, err)
	}

	b.count--
	return nil
}

// FederationCount returns the number of stored federations.
func (b *BadgerBackend) FederationCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

func federationKey(name string) []byte {
	return []byte(prefixFederation + name)
}

func summaryKey(name string) []byte {
	return []byte(prefixSummary + name)
}
