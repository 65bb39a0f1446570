// Package inmemory provides the volatile, process lifetime tier of a
// composed store stack.
package inmemory

import (
	"context"
	"sync"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
)

// PressurePolicy decides how the store reacts to a low memory
// signal. The platform decides whether clearing is a no-op or a full
// purge, so the reaction is configured, not fixed.
type PressurePolicy int

const (
	PurgeOnPressure PressurePolicy = iota
	IgnorePressure
)

type Store[E any] struct {
	model entities.Model[E]

	mu    sync.RWMutex
	items map[string]E
	order []string

	pressure PressurePolicy
	signal   <-chan struct{}
}

// OnLowMemory subscribes the store to an external low memory signal.
func OnLowMemory[E any](signal <-chan struct{}) func(*Store[E]) {
	return func(s *Store[E]) {
		s.signal = signal
	}
}

func WithPressurePolicy[E any](policy PressurePolicy) func(*Store[E]) {
	return func(s *Store[E]) {
		s.pressure = policy
	}
}

func New[E any](ctx context.Context, model entities.Model[E], options ...func(*Store[E])) *Store[E] {
	s := &Store[E]{
		model: model,
		items: map[string]E{},
	}

	for _, option := range options {
		option(s)
	}

	if s.signal != nil {
		go s.watchPressure(ctx)
	}

	return s
}

func (s *Store[E]) watchPressure(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.signal:
			if !ok {
				return
			}

			if s.pressure == PurgeOnPressure {
				s.mu.Lock()
				s.items = map[string]E{}
				s.order = nil
				s.mu.Unlock()
			}
		}
	}
}

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, _, ok := s.lookup(id)
	if !ok {
		return store.EmptyResult[E](), nil
	}

	return store.SingleResult(item), nil
}

// lookup resolves an identifier to a stored entity, honoring the
// local/remote equality rule. Callers must hold at least a read
// lock.
func (s *Store[E]) lookup(id entities.Identifier) (E, string, bool) {
	if item, ok := s.items[id.Key()]; ok {
		return item, id.Key(), true
	}

	if item, ok := s.items[id.Local()]; ok && id.Local() != "" {
		return item, id.Local(), true
	}

	for key, item := range s.items {
		if s.model.Identity(item).Equals(id) {
			return item, key, true
		}
	}

	var zero E
	return zero, "", false
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]E, 0, len(items))

	for _, item := range items {
		id := s.model.Identity(item)

		if existing, key, ok := s.lookup(id); ok {
			if wc.Merge == store.MergeByIdentifier {
				item = s.model.Merge(existing, item)
				id = s.model.Identity(item)
			}

			if key != id.Key() {
				// the entity was confirmed under a new remote key,
				// collapse the stale entry
				s.drop(key)
			}
		}

		if _, exists := s.items[id.Key()]; !exists {
			s.order = append(s.order, id.Key())
		}

		s.items[id.Key()] = item
		stored = append(stored, item)
	}

	return store.Completed(store.MultiResult(stored))
}

func (s *Store[E]) drop(key string) {
	delete(s.items, key)

	for idx, k := range s.order {
		if k == key {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := []E{}

	for _, id := range ids {
		if item, key, ok := s.lookup(id); ok {
			s.drop(key)
			removed = append(removed, item)
		}
	}

	return store.Completed(store.MultiResult(removed))
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	if q.MatchesNothing() {
		return store.Completed(store.EmptyResult[E]())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := []E{}

	for _, key := range append([]string{}, s.order...) {
		item := s.items[key]

		matches, err := q.Match(s.model, item)
		if err != nil {
			return store.Failed[E](err)
		}

		if matches {
			s.drop(key)
			removed = append(removed, item)
		}
	}

	return store.Completed(store.MultiResult(removed))
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	if q.MatchesNothing() {
		return store.EmptyResult[E](), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found := []E{}

	for _, key := range s.order {
		item := s.items[key]

		matches, err := q.Match(s.model, item)
		if err != nil {
			return nil, err
		}

		if matches {
			found = append(found, item)
		}
	}

	q.Sort(s.model, found)

	return store.MultiResult(found), nil
}

// Len returns the number of resident entities.
func (s *Store[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
