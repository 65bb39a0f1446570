package store

import (
	"context"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
)

// Storing is the uniform contract implemented by every tier in a
// composed store stack, and by external backends.
type Storing[E any] interface {
	Get(ctx context.Context, id entities.Identifier, rc ReadContext) (*Result[E], error)
	Set(ctx context.Context, items []E, wc WriteContext) Outcome[E]
	Remove(ctx context.Context, ids []entities.Identifier, wc WriteContext) Outcome[E]
	RemoveAll(ctx context.Context, q query.Query[E], wc WriteContext) Outcome[E]
	Search(ctx context.Context, q query.Query[E], rc ReadContext) (*Result[E], error)
}

// Contract is a pluggable predicate deciding whether an entity is
// acceptable. Rejected entities are dropped without failing the
// operation that produced them.
type Contract interface {
	Accept(ctx context.Context, e any) bool
}

// ContractFunc adapts an ordinary function to the Contract interface.
type ContractFunc func(ctx context.Context, e any) bool

func (f ContractFunc) Accept(ctx context.Context, e any) bool {
	return f(ctx, e)
}
