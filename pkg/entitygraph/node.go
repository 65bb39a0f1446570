// Package entitygraph resolves relationship paths between entities of
// different types into a graph, either once for the current root
// snapshot or continuously as the root source emits new snapshots.
package entitygraph

import (
	"github.com/diwise/entity-store/pkg/entities"
)

// Reference is one relationship path as declared by a single entity:
// the path name, the type it points at and the identifiers it holds.
type Reference struct {
	Path       string
	TargetType string
	Objects    []entities.Identifier
}

// Node is the type erased view of an entity that the graph operates
// on. The store stack is generic per entity type; a graph mixes
// types, so nodes carry their own model behaviour.
type Node interface {
	EntityType() string
	Identity() entities.Identifier
	References() []Reference

	// Merge combines this node with an incoming version carrying the
	// same identity and returns the node to keep.
	Merge(incoming Node) Node
}

type wrapped[E any] struct {
	model  entities.Model[E]
	entity E
}

// Wrap adapts a typed entity and its model into a graph node.
func Wrap[E any](model entities.Model[E], entity E) Node {
	return wrapped[E]{model: model, entity: entity}
}

// WrapSlice adapts a slice of typed entities into graph nodes.
func WrapSlice[E any](model entities.Model[E], items []E) []Node {
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, Wrap(model, item))
	}
	return nodes
}

// Unwrap recovers the typed entity from a node, if the node holds an
// entity of that type.
func Unwrap[E any](n Node) (E, bool) {
	if w, ok := n.(wrapped[E]); ok {
		return w.entity, true
	}

	var zero E
	return zero, false
}

func (w wrapped[E]) EntityType() string {
	return w.model.EntityType()
}

func (w wrapped[E]) Identity() entities.Identifier {
	return w.model.Identity(w.entity)
}

func (w wrapped[E]) References() []Reference {
	refs := make([]Reference, 0, len(w.model.RelationshipPaths()))

	for _, path := range w.model.RelationshipPaths() {
		refs = append(refs, Reference{
			Path:       path.Name,
			TargetType: path.TargetType,
			Objects:    w.model.Related(w.entity, path.Name),
		})
	}

	return refs
}

func (w wrapped[E]) Merge(incoming Node) Node {
	if other, ok := incoming.(wrapped[E]); ok {
		return wrapped[E]{model: w.model, entity: w.model.Merge(w.entity, other.entity)}
	}

	// different types under the same identity, last writer wins
	return incoming
}
