// Package reactive implements the wallet's persisted key/value store with
// change subscriptions. Projections and session flags are published here
// and consumers watch the keys they care about.
package reactive

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
)

// tableKey is the single storage key holding the whole table.
var tableKey = []byte("table")

// Subscription identifies one Watch registration.
type Subscription struct {
	key string
	id  uint64
}

// Key returns the watched key.
func (s Subscription) Key() string { return s.key }

type watcher struct {
	id uint64
	fn func(any)
}

// Store is an in-memory table mirrored to storage. Every Set rewrites the
// whole table. The table is hydrated lazily on first access.
//
// Set calls are serialized, and watchers of a key are called synchronously
// in registration order, so notifications follow Set completion order.
// Watch callbacks may call Get but must not call Set or Clear.
type Store struct {
	db storage.DB

	setMu sync.Mutex // serializes Set and Clear, held while notifying

	mu       sync.Mutex
	loaded   bool
	values   map[string]any
	raw      map[string]json.RawMessage
	watchers map[string][]watcher
	nextID   uint64
}

// New creates a store persisting to db. Callers typically pass a
// storage.PrefixDB so the table lives under its own namespace.
func New(db storage.DB) *Store {
	return &Store{
		db:       db,
		values:   make(map[string]any),
		raw:      make(map[string]json.RawMessage),
		watchers: make(map[string][]watcher),
	}
}

// hydrateLocked loads the persisted table once. A failed read leaves the
// store unloaded so the next access retries; values set in the meantime
// win over the persisted ones. Caller holds s.mu.
func (s *Store) hydrateLocked() {
	if s.loaded {
		return
	}

	data, err := s.db.Get(tableKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.loaded = true
		return
	}
	if err != nil {
		log.Store.Error().Err(err).Msg("Failed to read reactive table")
		return
	}
	s.loaded = true

	var table map[string]json.RawMessage
	if err := json.Unmarshal(data, &table); err != nil {
		log.Store.Error().Err(err).Msg("Discarding unreadable reactive table")
		return
	}
	for k, raw := range table {
		if _, ok := s.raw[k]; ok {
			continue
		}
		v, err := decode(raw)
		if err != nil {
			log.Store.Warn().Err(err).Str("key", k).Msg("Skipping unreadable entry")
			continue
		}
		s.values[k] = v
		s.raw[k] = raw
	}
	log.Store.Debug().Int("entries", len(s.values)).Msg("Reactive table hydrated")
}

// Get returns the value stored under key, or def when absent. The returned
// value is shared with other readers and must be treated as read-only.
func (s *Store) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked()
	v, ok := s.values[key]
	if !ok {
		return def
	}
	return v
}

// Has reports whether key holds a value.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked()
	_, ok := s.values[key]
	return ok
}

// Set normalizes value through its persisted JSON form, stores it, writes
// the table and notifies the key's watchers with the normalized value.
//
// A value that cannot be serialized is rejected with an error. A storage
// failure is logged and otherwise ignored: memory is updated and watchers
// are notified regardless. While the persisted table cannot be read, the
// table is not written so existing entries are not overwritten.
func (s *Store) Set(key string, value any) error {
	normalized, raw, err := normalize(value)
	if err != nil {
		return fmt.Errorf("reactive set %q: %w", key, err)
	}

	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	s.hydrateLocked()
	s.values[key] = normalized
	s.raw[key] = raw
	loaded := s.loaded
	table, err := json.Marshal(s.raw)
	subs := append([]watcher(nil), s.watchers[key]...)
	s.mu.Unlock()

	switch {
	case !loaded:
		log.Store.Warn().Str("key", key).Msg("Reactive table not loaded, skipping persist")
	case err == nil:
		err = s.db.Put(tableKey, table)
	}
	if err != nil {
		log.Store.Error().Err(err).Str("key", key).Msg("Failed to persist reactive table")
	}

	for _, w := range subs {
		w.fn(normalized)
	}
	return nil
}

// Watch registers fn for future Sets of key. There is no replay of the
// current value.
func (s *Store) Watch(key string, fn func(any)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.watchers[key] = append(s.watchers[key], watcher{id: s.nextID, fn: fn})
	return Subscription{key: key, id: s.nextID}
}

// Unwatch removes a registration. Unknown subscriptions are ignored.
func (s *Store) Unwatch(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[sub.key]
	for i, w := range list {
		if w.id == sub.id {
			s.watchers[sub.key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.watchers[sub.key]) == 0 {
		delete(s.watchers, sub.key)
	}
}

// Clear drops every value in memory and storage. Watch registrations stay.
func (s *Store) Clear() error {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	s.values = make(map[string]any)
	s.raw = make(map[string]json.RawMessage)
	s.loaded = true
	s.mu.Unlock()

	if err := s.db.Delete(tableKey); err != nil {
		return fmt.Errorf("reactive clear: %w", err)
	}
	log.Store.Info().Msg("Reactive store cleared")
	return nil
}
