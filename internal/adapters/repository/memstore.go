package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/okian/apr/internal/domain/model"
)

// Default store configuration constants.
const (
	defaultMaxSize = 100
)

// node is one entry in the insertion-ordered list, oldest at the tail.
type node struct {
	id         string
	prev, next *node
}

// MemoryStore implements Store with a map and a doubly linked list so the
// oldest outcome can be evicted in constant time.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	head    *node // newest
	tail    *node // oldest
	maxSize int
}

type entry struct {
	out  model.Outcome
	node *node
}

// NewMemoryStore creates a bounded in-memory store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	s.byID = make(map[string]*entry, s.maxSize)
	return s
}

// Save stores a copy of out. Saving an existing id replaces it and marks it
// newest.
func (s *MemoryStore) Save(_ context.Context, out model.Outcome) error {
	if out.BatchID == "" {
		return ErrMissingID
	}
	out = clone(out)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byID[out.BatchID]; ok {
		s.unlink(e.node)
		delete(s.byID, out.BatchID)
	}
	for len(s.byID) >= s.maxSize && s.tail != nil {
		oldest := s.tail
		s.unlink(oldest)
		delete(s.byID, oldest.id)
	}

	n := &node{id: out.BatchID, next: s.head}
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.byID[out.BatchID] = &entry{out: out, node: n}
	return nil
}

// Get returns a copy of the stored outcome.
func (s *MemoryStore) Get(_ context.Context, batchID string) (model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[batchID]
	if !ok {
		return model.Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	return clone(e.out), nil
}

// Recent returns up to n outcomes, newest first.
func (s *MemoryStore) Recent(_ context.Context, n int) ([]model.Outcome, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Outcome, 0, min(n, len(s.byID)))
	for cur := s.head; cur != nil && len(out) < n; cur = cur.next {
		out = append(out, clone(s.byID[cur.id].out))
	}
	return out, nil
}

// Count returns the number of outcomes held.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// unlink removes n from the list. Must be called with s.mu held.
func (s *MemoryStore) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// clone copies the mutable parts of an outcome so callers cannot alias
// stored state.
func clone(out model.Outcome) model.Outcome {
	out.APRs = maps.Clone(out.APRs)
	out.Failed = slices.Clone(out.Failed)
	return out
}
