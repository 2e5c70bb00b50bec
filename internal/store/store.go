// Package store provides a generic keyed record store shared by the kernel
// tables. It keeps *T values mapped by a comparable key obtained from a key
// selector and preserves nothing beyond that mapping, so tables layer their
// own invariants (state machines, refcounts) on top.
package store

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// MemoryStore is a generic in-memory record store.
type MemoryStore[K cmp.Ordered, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
}

// New creates a MemoryStore; keySelector extracts the record key.
func New[K cmp.Ordered, T any](keySelector func(*T) K) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
	}
}

// Save stores or overwrites a record. Nil values are ignored.
func (s *MemoryStore[K, T]) Save(v *T) {
	if v == nil {
		return
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = v
}

// Load returns a record by key.
func (s *MemoryStore[K, T]) Load(key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Has reports whether key is present.
func (s *MemoryStore[K, T]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok
}

// Delete removes a record and reports whether it existed.
func (s *MemoryStore[K, T]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	delete(s.records, key)
	return ok
}

// List returns all records ordered by key, optionally filtered.
func (s *MemoryStore[K, T]) List(filter func(*T) bool) []*T {
	s.mu.RLock()
	keys := make([]K, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)

	out := make([]*T, 0, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		v, ok := s.records[k]
		if !ok {
			continue
		}
		if filter == nil || filter(v) {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of records.
func (s *MemoryStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
