package query

// Query is an immutable filter and ordering specification over
// entities of type E. The zero value matches everything.
type Query[E any] struct {
	filter Expression
	sort   []SortDescriptor
}

func All[E any]() Query[E] {
	return Query[E]{}
}

func Where[E any](filter Expression) Query[E] {
	return Query[E]{filter: filter}
}

func (q Query[E]) OrderBy(sort ...SortDescriptor) Query[E] {
	ordered := q
	ordered.sort = append(append([]SortDescriptor{}, q.sort...), sort...)
	return ordered
}

func (q Query[E]) Filter() Expression {
	return q.filter
}

func (q Query[E]) Sorting() []SortDescriptor {
	return q.sort
}

// MatchesNothing reports whether the filter can be proven to match
// no entity at all, which happens when an explicitly empty
// identifier set makes the tree unsatisfiable. Such queries short
// circuit to an empty result without touching any backing tier.
func (q Query[E]) MatchesNothing() bool {
	if q.filter == nil {
		return false
	}
	return definitely(q.filter) == ternaryFalse
}

type ternary int

const (
	ternaryFalse ternary = iota
	ternaryTrue
	ternaryUnknown
)

// definitely evaluates the tree with comparisons treated as unknown
// and containment in an empty set treated as false.
func definitely(expr Expression) ternary {
	switch e := expr.(type) {
	case ConstantExpr:
		if e.Value {
			return ternaryTrue
		}
		return ternaryFalse
	case ContainmentExpr:
		if len(e.Set) == 0 {
			return ternaryFalse
		}
		return ternaryUnknown
	case NotExpr:
		switch definitely(e.Expr) {
		case ternaryTrue:
			return ternaryFalse
		case ternaryFalse:
			return ternaryTrue
		default:
			return ternaryUnknown
		}
	case AndExpr:
		result := ternaryTrue
		for _, sub := range e.Exprs {
			switch definitely(sub) {
			case ternaryFalse:
				return ternaryFalse
			case ternaryUnknown:
				result = ternaryUnknown
			}
		}
		return result
	case OrExpr:
		result := ternaryFalse
		for _, sub := range e.Exprs {
			switch definitely(sub) {
			case ternaryTrue:
				return ternaryTrue
			case ternaryUnknown:
				result = ternaryUnknown
			}
		}
		return result
	default:
		return ternaryUnknown
	}
}
