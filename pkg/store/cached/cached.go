// Package cached composes a fast tier with a durable tier. Reads
// consult the fast tier first and fall back to the durable tier,
// populating the fast tier with durable hits. Writes skip the
// durable tier when the incoming value is identical to the cached
// one, unless the write context demands a merge by identifier.
package cached

import (
	"context"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
)

type Store[E any] struct {
	model   entities.Model[E]
	fast    store.Storing[E]
	durable store.Storing[E]
}

func New[E any](model entities.Model[E], fast, durable store.Storing[E]) *Store[E] {
	return &Store[E]{
		model:   model,
		fast:    fast,
		durable: durable,
	}
}

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	result, err := s.fast.Get(ctx, id, rc)
	if err != nil {
		return nil, err
	}

	if !result.None() {
		store.CacheHits.WithLabelValues(s.model.EntityType()).Inc()
		return result, nil
	}

	store.CacheMisses.WithLabelValues(s.model.EntityType()).Inc()

	result, err = s.durable.Get(ctx, id, rc)
	if err != nil {
		return nil, err
	}

	if !result.None() {
		s.fast.Set(ctx, result.All(), store.WriteContext{Persistence: store.DoNotPersist})
	}

	return result, nil
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	stored := make([]E, 0, len(items))

	for _, item := range items {
		id := s.model.Identity(item)

		existing, err := s.fast.Get(ctx, id, store.ReadContext{Source: store.SourceLocal})
		if err != nil {
			return store.Failed[E](err)
		}

		current, exists := existing.One()

		if exists && wc.Merge == store.MergeByIdentifier {
			merged := s.model.Merge(current, item)

			if outcome := s.writeThrough(ctx, merged, wc); outcome.Failed() {
				return outcome
			}
			stored = append(stored, merged)
			continue
		}

		if exists && s.model.Identical(current, item) {
			// identical value already cached, the durable write can
			// be skipped
			if outcome := s.fast.Set(ctx, []E{item}, wc); outcome.Failed() {
				return outcome
			}
			stored = append(stored, item)
			continue
		}

		if outcome := s.writeThrough(ctx, item, wc); outcome.Failed() {
			return outcome
		}
		stored = append(stored, item)
	}

	return store.Completed(store.MultiResult(stored))
}

func (s *Store[E]) writeThrough(ctx context.Context, item E, wc store.WriteContext) store.Outcome[E] {
	if outcome := s.fast.Set(ctx, []E{item}, wc); outcome.Failed() {
		return outcome
	}

	if wc.Persistence == store.DoNotPersist {
		return store.Completed(store.SingleResult(item))
	}

	return s.durable.Set(ctx, []E{item}, wc)
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	if outcome := s.fast.Remove(ctx, ids, wc); outcome.Failed() {
		return outcome
	}

	return s.durable.Remove(ctx, ids, wc)
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	if outcome := s.fast.RemoveAll(ctx, q, wc); outcome.Failed() {
		return outcome
	}

	return s.durable.RemoveAll(ctx, q, wc)
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	if q.MatchesNothing() {
		return store.EmptyResult[E](), nil
	}

	result, err := s.fast.Search(ctx, q, rc)
	if err != nil {
		return nil, err
	}

	if !result.None() {
		store.CacheHits.WithLabelValues(s.model.EntityType()).Inc()
		return result, nil
	}

	store.CacheMisses.WithLabelValues(s.model.EntityType()).Inc()

	result, err = s.durable.Search(ctx, q, rc)
	if err != nil {
		return nil, err
	}

	if !result.None() {
		s.fast.Set(ctx, result.All(), store.WriteContext{Persistence: store.DoNotPersist})
	}

	return result, nil
}
