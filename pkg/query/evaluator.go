package query

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/diwise/entity-store/pkg/entities"
)

// ErrNotSupported is returned for expression shapes that no backend
// can evaluate, such as a comparison between two field references
// handed to a tier that must translate predicates.
var ErrNotSupported = errors.New("not supported")

// Match evaluates the query's filter tree against a single entity.
// The in-memory evaluator accepts field vs field comparisons that
// translating backends reject.
func (q Query[E]) Match(m entities.Model[E], e E) (bool, error) {
	if q.filter == nil {
		return true, nil
	}
	return match(m, q.filter, e)
}

func match[E any](m entities.Model[E], expr Expression, e E) (bool, error) {
	switch node := expr.(type) {
	case ConstantExpr:
		return node.Value, nil

	case NotExpr:
		result, err := match(m, node.Expr, e)
		return !result, err

	case AndExpr:
		for _, sub := range node.Exprs {
			result, err := match(m, sub, e)
			if err != nil {
				return false, err
			}
			if !result {
				return false, nil
			}
		}
		return true, nil

	case OrExpr:
		for _, sub := range node.Exprs {
			result, err := match(m, sub, e)
			if err != nil {
				return false, err
			}
			if result {
				return true, nil
			}
		}
		return false, nil

	case ContainmentExpr:
		id := m.Identity(e)
		for _, member := range node.Set {
			if id.Equals(member) {
				return true, nil
			}
		}
		return false, nil

	case ComparisonExpr:
		return matchComparison(m, node, e)

	default:
		return false, fmt.Errorf("unknown expression %T: %w", expr, ErrNotSupported)
	}
}

func matchComparison[E any](m entities.Model[E], node ComparisonExpr, e E) (bool, error) {
	left, leftIsID, err := resolveOperand(m, node.Left, e)
	if err != nil {
		return false, err
	}

	right, rightIsID, err := resolveOperand(m, node.Right, e)
	if err != nil {
		return false, err
	}

	if leftIsID || rightIsID {
		if !leftIsID || !rightIsID {
			return false, fmt.Errorf("identifiers are only comparable to identifiers: %w", ErrNotSupported)
		}

		equal := left.(entities.Identifier).Equals(right.(entities.Identifier))

		switch node.Op {
		case Equal:
			return equal, nil
		case NotEqual:
			return !equal, nil
		default:
			return false, fmt.Errorf("identifiers have no defined order: %w", ErrNotSupported)
		}
	}

	switch node.Op {
	case Contains:
		return containsFold(left, right)
	case Matches:
		return matchesPattern(left, right)
	}

	ordering, err := compareValues(left, right)
	if err != nil {
		return false, err
	}

	switch node.Op {
	case Equal:
		return ordering == 0, nil
	case NotEqual:
		return ordering != 0, nil
	case LessThan:
		return ordering < 0, nil
	case LessOrEqual:
		return ordering <= 0, nil
	case GreaterThan:
		return ordering > 0, nil
	case GreaterOrEqual:
		return ordering >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %d: %w", node.Op, ErrNotSupported)
	}
}

func resolveOperand[E any](m entities.Model[E], op Operand, e E) (value any, isIdentifier bool, err error) {
	switch operand := op.(type) {
	case FieldOperand:
		v, ok := m.Value(e, operand.Name)
		if !ok {
			return nil, false, nil
		}
		return v, false, nil
	case IdentityOperand:
		return m.Identity(e), true, nil
	case ValueOperand:
		return operand.Value, false, nil
	case IdentifierOperand:
		return operand.ID, true, nil
	default:
		return nil, false, fmt.Errorf("unknown operand %T: %w", op, ErrNotSupported)
	}
}

func containsFold(haystack, needle any) (bool, error) {
	h, hok := haystack.(string)
	n, nok := needle.(string)

	if !hok || !nok {
		return false, fmt.Errorf("substring match requires string operands: %w", ErrNotSupported)
	}

	return strings.Contains(strings.ToLower(h), strings.ToLower(n)), nil
}

func matchesPattern(value, pattern any) (bool, error) {
	v, vok := value.(string)
	p, pok := pattern.(string)

	if !vok || !pok {
		return false, fmt.Errorf("pattern match requires string operands: %w", ErrNotSupported)
	}

	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return false, err
	}

	return re.MatchString(v), nil
}

// compareValues orders two field values of compatible types.
// Numeric values compare across int/int64/float64.
func compareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}

	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, fmt.Errorf("cannot compare %T with %T: %w", a, b, ErrNotSupported)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T: %w", a, b, ErrNotSupported)
		}
		return strings.Compare(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T: %w", a, b, ErrNotSupported)
		}
		switch {
		case av == bv:
			return 0, nil
		case bv:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T: %w", a, b, ErrNotSupported)
		}
		return av.Compare(bv), nil
	default:
		return 0, fmt.Errorf("values of type %T are not comparable: %w", a, ErrNotSupported)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Sort orders items in place according to the query's sort
// descriptors, applied left to right with stable tie break.
func (q Query[E]) Sort(m entities.Model[E], items []E) {
	SortBy(m, items, q.sort)
}

func SortBy[E any](m entities.Model[E], items []E, descriptors []SortDescriptor) {
	if len(descriptors) == 0 {
		return
	}

	positions := make([]map[string]int, len(descriptors))
	for idx, d := range descriptors {
		if d.kind != sortByExplicitOrder {
			continue
		}
		positions[idx] = make(map[string]int, len(d.order))
		for pos, id := range d.order {
			positions[idx][id.Key()] = pos
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		for idx, d := range descriptors {
			ordering := compareBy(m, d, positions[idx], items[i], items[j])
			if ordering != 0 {
				return ordering < 0
			}
		}
		return false
	})
}

func compareBy[E any](m entities.Model[E], d SortDescriptor, positions map[string]int, a, b E) int {
	switch d.kind {
	case sortByIdentity:
		ordering := strings.Compare(m.Identity(a).Key(), m.Identity(b).Key())
		if d.direction == Desc {
			return -ordering
		}
		return ordering

	case sortByExplicitOrder:
		apos, aok := positionOf(positions, m.Identity(a))
		bpos, bok := positionOf(positions, m.Identity(b))

		switch {
		case aok && bok:
			return apos - bpos
		case aok:
			return -1
		case bok:
			return 1
		default:
			// both absent from the list, keep original order
			return 0
		}

	default:
		av, _ := m.Value(a, d.field)
		bv, _ := m.Value(b, d.field)

		ordering, err := compareValues(av, bv)
		if err != nil {
			return 0
		}

		if d.direction == Desc {
			return -ordering
		}
		return ordering
	}
}

func positionOf(positions map[string]int, id entities.Identifier) (int, bool) {
	pos, ok := positions[id.Key()]
	return pos, ok
}
