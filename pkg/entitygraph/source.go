package entitygraph

import (
	"context"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
)

// Source fetches entities of one type by identifier batch. The second
// return value reports whether the payload came from a live remote
// fetch.
type Source interface {
	Fetch(ctx context.Context, ids []entities.Identifier, rc store.ReadContext) ([]Node, bool, error)
}

type storeSource[E any] struct {
	model entities.Model[E]
	store store.Storing[E]
}

// StoreSource adapts a typed store into a Source. All identifiers
// needed for one relationship path are fetched in a single search.
func StoreSource[E any](model entities.Model[E], s store.Storing[E]) Source {
	return &storeSource[E]{model: model, store: s}
}

func (src *storeSource[E]) Fetch(ctx context.Context, ids []entities.Identifier, rc store.ReadContext) ([]Node, bool, error) {
	q := query.Where[E](query.MemberOf(ids...))

	result, err := src.store.Search(ctx, q, rc)
	if err != nil {
		return nil, false, err
	}

	live := result.Metadata != nil && result.Metadata.Origin == store.OriginServer

	return WrapSlice(src.model, result.All()), live, nil
}
