// Package routed composes a local store stack with a remote tier and
// routes each operation according to the data source policy in the
// caller's context.
package routed

import (
	"context"
	"errors"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type Store[E any] struct {
	model  entities.Model[E]
	local  store.Storing[E]
	remote store.Storing[E]
}

func New[E any](model entities.Model[E], local, remote store.Storing[E]) *Store[E] {
	return &Store[E]{
		model:  model,
		local:  local,
		remote: remote,
	}
}

// Get routes a single entity read. Remote results are persisted into
// the local stack so that later local reads observe them merged.
func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	switch rc.Source {
	case store.SourceLocal:
		return s.local.Get(ctx, id, rc)

	case store.SourceRemote:
		result, err := s.remote.Get(ctx, id, rc)
		if err != nil {
			return nil, err
		}

		s.absorb(ctx, result)
		return result, nil

	case store.SourceRemoteThenLocal:
		result, err := s.remote.Get(ctx, id, rc)
		if err != nil && !errors.Is(err, store.ErrEmptyResponse) {
			return nil, err
		}

		s.absorb(ctx, result)
		return s.local.Get(ctx, id, localised(rc))

	case store.SourceRemoteOrLocal:
		result, err := s.remote.Get(ctx, id, rc)
		if err != nil {
			logging.GetFromContext(ctx).Debug("falling back to local read",
				"entity_type", s.model.EntityType(), "err", err.Error(),
			)
			return s.local.Get(ctx, id, localised(rc))
		}

		s.absorb(ctx, result)
		return result, nil
	}

	return nil, store.ErrNotSupported
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	if q.MatchesNothing() {
		return store.EmptyResult[E](), nil
	}

	switch rc.Source {
	case store.SourceLocal:
		return s.local.Search(ctx, q, rc)

	case store.SourceRemote:
		result, err := s.remote.Search(ctx, q, rc)
		if err != nil {
			return nil, err
		}

		s.absorb(ctx, result)
		return result, nil

	case store.SourceRemoteThenLocal:
		result, err := s.remote.Search(ctx, q, rc)
		if err != nil && !errors.Is(err, store.ErrEmptyResponse) {
			return nil, err
		}

		s.absorb(ctx, result)
		return s.local.Search(ctx, q, localised(rc))

	case store.SourceRemoteOrLocal:
		result, err := s.remote.Search(ctx, q, rc)
		if err != nil {
			logging.GetFromContext(ctx).Debug("falling back to local search",
				"entity_type", s.model.EntityType(), "err", err.Error(),
			)
			return s.local.Search(ctx, q, localised(rc))
		}

		s.absorb(ctx, result)
		return result, nil
	}

	return nil, store.ErrNotSupported
}

// Set submits the write to the remote tier and keeps the local stack
// aligned: a confirmed write persists the server's version of the
// entities, a deferred write persists the submitted version so that
// local reads observe it while the remote operation is in flight.
func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	outcome := s.remote.Set(ctx, items, wc)

	if wc.Persistence == store.DoNotPersist {
		return outcome
	}

	localWC := store.WriteContext{Persistence: store.Persist, Merge: store.MergeByIdentifier}

	switch {
	case outcome.IsCompleted():
		if local := s.local.Set(ctx, outcome.Result().All(), localWC); local.Failed() {
			return local
		}

	case outcome.IsDeferred():
		if local := s.local.Set(ctx, items, localWC); local.Failed() {
			return local
		}
	}

	return outcome
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	outcome := s.remote.Remove(ctx, ids, wc)
	if outcome.Failed() {
		return outcome
	}

	if local := s.local.Remove(ctx, ids, wc); local.Failed() {
		return local
	}

	return outcome
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	if q.MatchesNothing() {
		return store.Completed(store.EmptyResult[E]())
	}

	outcome := s.remote.RemoveAll(ctx, q, wc)
	if outcome.Failed() {
		return outcome
	}

	if local := s.local.RemoveAll(ctx, q, wc); local.Failed() {
		return local
	}

	return outcome
}

// absorb merges remotely fetched entities into the local stack.
func (s *Store[E]) absorb(ctx context.Context, result *store.Result[E]) {
	if result == nil || result.None() {
		return
	}

	wc := store.WriteContext{Persistence: store.Persist, Merge: store.MergeByIdentifier}

	if outcome := s.local.Set(ctx, result.All(), wc); outcome.Failed() {
		logging.GetFromContext(ctx).Error("failed to absorb remote entities",
			"entity_type", s.model.EntityType(), "err", outcome.Err().Error(),
		)
	}
}

// localised rewrites a read context for the local leg of a mixed
// source policy.
func localised(rc store.ReadContext) store.ReadContext {
	rc.Source = store.SourceLocal
	rc.Known = nil
	return rc
}
