// Package recoverable composes a main store with a recovery copy.
// The two are reconciled at construction, every write is applied to
// both, and reads are served from main only. Failures in the
// recovery store never fail the caller's operation, they are only
// reported for observability.
package recoverable

import (
	"context"
	"sync"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"golang.org/x/sync/errgroup"
)

type Store[E any] struct {
	model    entities.Model[E]
	main     store.Storing[E]
	recovery store.Storing[E]

	pending sync.WaitGroup
}

func New[E any](ctx context.Context, model entities.Model[E], main, recovery store.Storing[E]) (*Store[E], error) {
	s := &Store[E]{
		model:    model,
		main:     main,
		recovery: recovery,
	}

	err := s.reconcile(ctx)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// reconcile aligns the two stores at start-up: an empty main is
// seeded from recovery, an empty recovery is seeded from main, and
// when both hold data main wins and recovery is overwritten to
// mirror it.
func (s *Store[E]) reconcile(ctx context.Context) error {
	var mainContents, recoveryContents *store.Result[E]

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		mainContents, err = s.main.Search(groupCtx, query.All[E](), store.ReadContext{Source: store.SourceLocal})
		return err
	})

	g.Go(func() error {
		var err error
		recoveryContents, err = s.recovery.Search(groupCtx, query.All[E](), store.ReadContext{Source: store.SourceLocal})
		return err
	})

	err := g.Wait()
	if err != nil {
		return err
	}

	wc := store.WriteContext{}

	switch {
	case mainContents.None() && !recoveryContents.None():
		if outcome := s.main.Set(ctx, recoveryContents.All(), wc); outcome.Failed() {
			return outcome.Err()
		}

	case recoveryContents.None() && !mainContents.None():
		if outcome := s.recovery.Set(ctx, mainContents.All(), wc); outcome.Failed() {
			return outcome.Err()
		}

	case !mainContents.None() && !recoveryContents.None():
		if outcome := s.recovery.RemoveAll(ctx, query.All[E](), wc); outcome.Failed() {
			return outcome.Err()
		}
		if outcome := s.recovery.Set(ctx, mainContents.All(), wc); outcome.Failed() {
			return outcome.Err()
		}
	}

	return nil
}

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	return s.main.Get(ctx, id, rc)
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	return s.main.Search(ctx, q, rc)
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	s.mirror(ctx, func(ctx context.Context) store.Outcome[E] {
		return s.recovery.Set(ctx, items, wc)
	})

	return s.main.Set(ctx, items, wc)
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	s.mirror(ctx, func(ctx context.Context) store.Outcome[E] {
		return s.recovery.Remove(ctx, ids, wc)
	})

	return s.main.Remove(ctx, ids, wc)
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	s.mirror(ctx, func(ctx context.Context) store.Outcome[E] {
		return s.recovery.RemoveAll(ctx, q, wc)
	})

	return s.main.RemoveAll(ctx, q, wc)
}

// mirror dispatches a write to the recovery store without blocking
// the main store's completion. The write is guaranteed to be issued;
// a failure is logged and swallowed.
func (s *Store[E]) mirror(ctx context.Context, write func(ctx context.Context) store.Outcome[E]) {
	s.pending.Add(1)

	// detach from the caller's cancellation but keep the logger
	mirrorCtx := context.WithoutCancel(ctx)

	go func() {
		defer s.pending.Done()

		outcome := write(mirrorCtx)
		if outcome.Failed() {
			log := logging.GetFromContext(mirrorCtx)
			log.Error("recovery store write failed", "entity_type", s.model.EntityType(), "err", outcome.Err().Error())
		}
	}()
}

// Sync blocks until all mirrored writes have been issued and
// completed.
func (s *Store[E]) Sync() {
	s.pending.Wait()
}
