// Package lru bounds any store with a least recently used eviction
// policy. The recency order is tracked per identifier, separate from
// the wrapped store's own data; evicted identifiers are removed from
// the wrapped store.
package lru

import (
	"context"
	"fmt"
	"sync"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type Store[E any] struct {
	model entities.Model[E]
	inner store.Storing[E]

	// recency and the eviction buffer race on concurrent get/set,
	// guard them with a single mutex
	mu      sync.Mutex
	recency *simplelru.LRU[string, entities.Identifier]
	evicted []entities.Identifier
}

func New[E any](model entities.Model[E], inner store.Storing[E], capacity int) (*Store[E], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lru capacity must be positive, got %d", capacity)
	}

	s := &Store[E]{
		model: model,
		inner: inner,
	}

	recency, err := simplelru.NewLRU(capacity, func(key string, id entities.Identifier) {
		s.evicted = append(s.evicted, id)
	})
	if err != nil {
		return nil, err
	}

	s.recency = recency

	return s, nil
}

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	result, err := s.inner.Get(ctx, id, rc)
	if err != nil {
		return nil, err
	}

	if !result.None() {
		s.mu.Lock()
		s.recency.Get(id.Key())
		s.mu.Unlock()
	}

	return result, nil
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	outcome := s.inner.Set(ctx, items, wc)
	if outcome.Failed() {
		return outcome
	}

	s.mu.Lock()
	for _, item := range items {
		id := s.model.Identity(item)
		s.recency.Add(id.Key(), id)
	}
	overflow := s.drainEvicted()
	s.mu.Unlock()

	if len(overflow) > 0 {
		store.Evictions.WithLabelValues(s.model.EntityType()).Add(float64(len(overflow)))

		evictOutcome := s.inner.Remove(ctx, overflow, wc)
		if evictOutcome.Failed() {
			return evictOutcome
		}
	}

	return outcome
}

// drainEvicted collects the identifiers pushed out by the latest
// inserts. Callers must hold the mutex.
func (s *Store[E]) drainEvicted() []entities.Identifier {
	overflow := s.evicted
	s.evicted = nil
	return overflow
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	outcome := s.inner.Remove(ctx, ids, wc)
	if outcome.Failed() {
		return outcome
	}

	s.mu.Lock()
	for _, id := range ids {
		s.recency.Remove(id.Key())
	}
	s.evicted = nil
	s.mu.Unlock()

	return outcome
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	outcome := s.inner.RemoveAll(ctx, q, wc)
	if outcome.Failed() {
		return outcome
	}

	if result := outcome.Result(); result != nil {
		s.mu.Lock()
		for _, item := range result.All() {
			s.recency.Remove(s.model.Identity(item).Key())
		}
		s.evicted = nil
		s.mu.Unlock()
	}

	return outcome
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	return s.inner.Search(ctx, q, rc)
}

// Resident returns the number of identifiers currently tracked.
func (s *Store[E]) Resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recency.Len()
}
