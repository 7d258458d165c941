package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/table"
	"github.com/cockroachdb/pebble"
)

// Store is a hash-map store: every key holds a set of string fields.
type Store interface {
	// HGetAll returns every field of key; a missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Multi starts a pending transaction.
	Multi() Tx

	Close() error
}

// Tx buffers field writes and applies them all or none on Exec.
type Tx interface {
	HSet(key, field, value string)
	Exec(ctx context.Context) error
}

// pending collects HSet calls until Exec hands them to the store.
type pending struct {
	writes map[string]map[string]string
	commit func(writes map[string]map[string]string) error
}

func (p *pending) HSet(key, field, value string) {
	fields, ok := p.writes[key]
	if !ok {
		fields = make(map[string]string)
		p.writes[key] = fields
	}
	fields[field] = value
}

func (p *pending) Exec(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.commit(p.writes)
}

func newPending(commit func(map[string]map[string]string) error) *pending {
	return &pending{writes: make(map[string]map[string]string), commit: commit}
}

func decodeFields(raw []byte) (map[string]string, error) {
	fields := make(map[string]string)
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode cache fields: %w", err)
	}
	return fields, nil
}

func merge(existing, update map[string]string) ([]byte, error) {
	for k, v := range update {
		existing[k] = v
	}
	return json.Marshal(existing)
}

// KVStore keeps hashes in a lachesis key-value store under a key prefix.
type KVStore struct {
	mu sync.Mutex
	db kvdb.Store

	// backing is the store under the prefix table; the table itself cannot be closed.
	backing kvdb.Store
}

var _ Store = (*KVStore)(nil)

// NewKVStore wraps db, namespacing every key under prefix.
func NewKVStore(db kvdb.Store, prefix string) *KVStore {
	return &KVStore{db: table.New(db, []byte(prefix)), backing: db}
}

// NewMemoryStore returns a process-local store.
func NewMemoryStore() *KVStore {
	return NewKVStore(memorydb.New(), "vp-cache/")
}

func (s *KVStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *KVStore) getLocked(key string) (map[string]string, error) {
	ok, err := s.db.Has([]byte(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]string{}, nil
	}
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return decodeFields(raw)
}

func (s *KVStore) Multi() Tx {
	return newPending(func(writes map[string]map[string]string) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		batch := s.db.NewBatch()
		for key, fields := range writes {
			existing, err := s.getLocked(key)
			if err != nil {
				return err
			}
			raw, err := merge(existing, fields)
			if err != nil {
				return err
			}
			if err := batch.Put([]byte(key), raw); err != nil {
				return err
			}
		}
		return batch.Write()
	})
}

func (s *KVStore) Close() error {
	return s.backing.Close()
}

// PebbleStore keeps hashes in an on-disk pebble database.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

// OpenPebble opens (or creates) the database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble cache at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *PebbleStore) getLocked(key string) (map[string]string, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return decodeFields(raw)
}

func (s *PebbleStore) Multi() Tx {
	return newPending(func(writes map[string]map[string]string) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		batch := s.db.NewBatch()
		defer batch.Close()
		for key, fields := range writes {
			existing, err := s.getLocked(key)
			if err != nil {
				return err
			}
			raw, err := merge(existing, fields)
			if err != nil {
				return err
			}
			if err := batch.Set([]byte(key), raw, nil); err != nil {
				return err
			}
		}
		return batch.Commit(pebble.Sync)
	})
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
