package store

import (
	"github.com/diwise/entity-store/pkg/entities"
)

// ResponseOrigin classifies where a response payload came from. The
// distinction matters for filtering policy: cache replays are always
// re-filtered locally, live server responses only when the caller
// does not trust remote filtering.
type ResponseOrigin int

const (
	OriginLocal ResponseOrigin = iota
	OriginServer
	OriginCache
)

// ResponseMetadata is per endpoint metadata attached to results that
// originated remotely.
type ResponseMetadata struct {
	Origin      ResponseOrigin
	NotModified bool
	ETag        string
	TotalCount  int64

	// Roots is the server declared root entity set, when declared.
	Roots []entities.Identifier
}

// EntityMetadata is per entity metadata attached when the data
// originated remotely.
type EntityMetadata struct {
	Headers map[string]string
}

// Result is the outcome of a read: no entity, one entity, or an
// ordered sequence of entities, with optional metadata.
type Result[E any] struct {
	items    []E
	Metadata *ResponseMetadata
	ByEntity map[string]EntityMetadata
}

func EmptyResult[E any]() *Result[E] {
	return &Result[E]{}
}

func SingleResult[E any](item E) *Result[E] {
	return &Result[E]{items: []E{item}}
}

func MultiResult[E any](items []E) *Result[E] {
	return &Result[E]{items: items}
}

func (r *Result[E]) None() bool {
	return len(r.items) == 0
}

func (r *Result[E]) One() (E, bool) {
	if len(r.items) == 0 {
		var zero E
		return zero, false
	}
	return r.items[0], true
}

func (r *Result[E]) All() []E {
	return r.items
}

func (r *Result[E]) Count() int {
	return len(r.items)
}

func (r *Result[E]) WithMetadata(md *ResponseMetadata) *Result[E] {
	r.Metadata = md
	return r
}
