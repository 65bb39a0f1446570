package query

import (
	"fmt"
	"strings"
)

// Canonical returns a deterministic textual form of the query, used
// by the remote tier to compute request signatures for in-flight
// deduplication. Two queries with the same canonical form describe
// the same request.
func (q Query[E]) Canonical() string {
	var b strings.Builder

	b.WriteString("filter:")
	writeExpression(&b, q.filter)

	b.WriteString(";sort:")
	for idx, d := range q.sort {
		if idx > 0 {
			b.WriteByte(',')
		}
		writeDescriptor(&b, d)
	}

	return b.String()
}

func writeExpression(b *strings.Builder, expr Expression) {
	switch node := expr.(type) {
	case nil:
		b.WriteString("all")
	case ConstantExpr:
		fmt.Fprintf(b, "const(%t)", node.Value)
	case NotExpr:
		b.WriteString("not(")
		writeExpression(b, node.Expr)
		b.WriteByte(')')
	case AndExpr:
		writeJunction(b, "and", node.Exprs)
	case OrExpr:
		writeJunction(b, "or", node.Exprs)
	case ContainmentExpr:
		b.WriteString("in(")
		for idx, id := range node.Set {
			if idx > 0 {
				b.WriteByte(',')
			}
			b.WriteString(id.Key())
		}
		b.WriteByte(')')
	case ComparisonExpr:
		b.WriteString("cmp(")
		writeOperand(b, node.Left)
		fmt.Fprintf(b, ",%d,", node.Op)
		writeOperand(b, node.Right)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "unknown(%T)", expr)
	}
}

func writeJunction(b *strings.Builder, name string, exprs []Expression) {
	b.WriteString(name)
	b.WriteByte('(')
	for idx, sub := range exprs {
		if idx > 0 {
			b.WriteByte(',')
		}
		writeExpression(b, sub)
	}
	b.WriteByte(')')
}

func writeOperand(b *strings.Builder, op Operand) {
	switch operand := op.(type) {
	case FieldOperand:
		fmt.Fprintf(b, "field(%s)", operand.Name)
	case IdentityOperand:
		b.WriteString("identity")
	case ValueOperand:
		// strings are quoted so that value("1") and value(1) stay
		// distinct and the form can be parsed back
		if s, ok := operand.Value.(string); ok {
			fmt.Fprintf(b, "value(%q)", s)
		} else {
			fmt.Fprintf(b, "value(%v)", operand.Value)
		}
	case IdentifierOperand:
		fmt.Fprintf(b, "id(%s)", operand.ID.Key())
	default:
		fmt.Fprintf(b, "unknown(%T)", op)
	}
}

func writeDescriptor(b *strings.Builder, d SortDescriptor) {
	switch d.kind {
	case sortByIdentity:
		fmt.Fprintf(b, "identity(%d)", d.direction)
	case sortByExplicitOrder:
		b.WriteString("explicit(")
		for idx, id := range d.order {
			if idx > 0 {
				b.WriteByte(',')
			}
			b.WriteString(id.Key())
		}
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "field(%s,%d)", d.field, d.direction)
	}
}
