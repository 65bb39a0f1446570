package query

import (
	"github.com/diwise/entity-store/pkg/entities"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type sortKind int

const (
	sortByField sortKind = iota
	sortByIdentity
	sortByExplicitOrder
)

// SortDescriptor orders entities by a field, by their identifier, or
// by an explicit list of identifiers defining the desired order.
type SortDescriptor struct {
	kind      sortKind
	field     string
	direction Direction
	order     []entities.Identifier
}

func Ascending(field string) SortDescriptor {
	return SortDescriptor{kind: sortByField, field: field, direction: Asc}
}

func Descending(field string) SortDescriptor {
	return SortDescriptor{kind: sortByField, field: field, direction: Desc}
}

func ByIdentity(direction Direction) SortDescriptor {
	return SortDescriptor{kind: sortByIdentity, direction: direction}
}

// InOrderOf places entities in the order given by the identifier
// list. Entities absent from the list are placed after those
// present, keeping their relative original order.
func InOrderOf(order []entities.Identifier) SortDescriptor {
	return SortDescriptor{kind: sortByExplicitOrder, order: order}
}
