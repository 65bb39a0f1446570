package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/diwise/entity-store/pkg/entities"
)

// Parse is the inverse of Canonical. It lets a server interpret the
// query a client encoded on the wire. Identifier keys are restored as
// paired identifiers matching either component.
func Parse[E any](canonical string) (Query[E], error) {
	p := &parser{s: canonical}

	if err := p.expect("filter:"); err != nil {
		return Query[E]{}, err
	}

	filter, err := p.parseExpression()
	if err != nil {
		return Query[E]{}, err
	}

	if err := p.expect(";sort:"); err != nil {
		return Query[E]{}, err
	}

	sort, err := p.parseDescriptors()
	if err != nil {
		return Query[E]{}, err
	}

	if p.pos != len(p.s) {
		return Query[E]{}, fmt.Errorf("unexpected trailing input at %d", p.pos)
	}

	return Query[E]{filter: filter, sort: sort}, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) expect(prefix string) error {
	if !strings.HasPrefix(p.s[p.pos:], prefix) {
		return fmt.Errorf("expected %q at %d", prefix, p.pos)
	}
	p.pos += len(prefix)
	return nil
}

func (p *parser) accept(prefix string) bool {
	if strings.HasPrefix(p.s[p.pos:], prefix) {
		p.pos += len(prefix)
		return true
	}
	return false
}

// until consumes and returns everything up to, not including, the
// first occurrence of any of the given stop bytes.
func (p *parser) until(stop string) string {
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune(stop, rune(p.s[p.pos])) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) parseExpression() (Expression, error) {
	switch {
	case p.accept("all"):
		return nil, nil

	case p.accept("const("):
		literal := p.until(")")
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return ConstantExpr{Value: literal == "true"}, nil

	case p.accept("not("):
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return NotExpr{Expr: inner}, nil

	case p.accept("and("):
		exprs, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return AndExpr{Exprs: exprs}, nil

	case p.accept("or("):
		exprs, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return OrExpr{Exprs: exprs}, nil

	case p.accept("in("):
		set, err := p.parseIdentifierList()
		if err != nil {
			return nil, err
		}
		return ContainmentExpr{Set: set}, nil

	case p.accept("cmp("):
		return p.parseComparison()
	}

	return nil, fmt.Errorf("expected expression at %d", p.pos)
}

func (p *parser) parseExpressionList() ([]Expression, error) {
	exprs := []Expression{}

	if p.accept(")") {
		return exprs, nil
	}

	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)

		if p.accept(",") {
			continue
		}

		return exprs, p.expect(")")
	}
}

func (p *parser) parseIdentifierList() ([]entities.Identifier, error) {
	set := []entities.Identifier{}

	if p.accept(")") {
		return set, nil
	}

	for {
		key := p.until(",)")
		set = append(set, entities.NewPairedIdentifier(key, key))

		if p.accept(",") {
			continue
		}

		return set, p.expect(")")
	}
}

func (p *parser) parseComparison() (Expression, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if err := p.expect(","); err != nil {
		return nil, err
	}

	op, err := strconv.Atoi(p.until(","))
	if err != nil {
		return nil, fmt.Errorf("invalid operator: %w", err)
	}

	if op < int(Equal) || op > int(Matches) {
		return nil, fmt.Errorf("unknown operator %d", op)
	}

	if err := p.expect(","); err != nil {
		return nil, err
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if err := p.expect(")"); err != nil {
		return nil, err
	}

	return ComparisonExpr{Left: left, Op: Operator(op), Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	switch {
	case p.accept("field("):
		name := p.until(")")
		return FieldOperand{Name: name}, p.expect(")")

	case p.accept("identity"):
		return IdentityOperand{}, nil

	case p.accept("id("):
		key := p.until(")")
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return IdentifierOperand{ID: entities.NewPairedIdentifier(key, key)}, nil

	case p.accept("value("):
		value, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return ValueOperand{Value: value}, p.expect(")")
	}

	return nil, fmt.Errorf("expected operand at %d", p.pos)
}

func (p *parser) parseLiteral() (any, error) {
	if p.pos < len(p.s) && p.s[p.pos] == '"' {
		return p.parseQuotedString()
	}

	literal := p.until(")")

	switch literal {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "<nil>":
		return nil, nil
	}

	if n, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return n, nil
	}

	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("unparseable literal %q", literal)
}

func (p *parser) parseQuotedString() (string, error) {
	start := p.pos
	p.pos++ // opening quote

	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			p.pos++
			return strconv.Unquote(p.s[start:p.pos])
		}
		p.pos++
	}

	return "", fmt.Errorf("unterminated string at %d", start)
}

func (p *parser) parseDescriptors() ([]SortDescriptor, error) {
	descriptors := []SortDescriptor{}

	if p.pos == len(p.s) {
		return nil, nil
	}

	for {
		d, err := p.parseDescriptor()
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)

		if !p.accept(",") {
			return descriptors, nil
		}
	}
}

func (p *parser) parseDescriptor() (SortDescriptor, error) {
	switch {
	case p.accept("identity("):
		dir, err := p.parseDirection(")")
		if err != nil {
			return SortDescriptor{}, err
		}
		return ByIdentity(dir), p.expect(")")

	case p.accept("explicit("):
		order, err := p.parseIdentifierList()
		if err != nil {
			return SortDescriptor{}, err
		}
		return InOrderOf(order), nil

	case p.accept("field("):
		field := p.until(",")
		if err := p.expect(","); err != nil {
			return SortDescriptor{}, err
		}

		dir, err := p.parseDirection(")")
		if err != nil {
			return SortDescriptor{}, err
		}

		if err := p.expect(")"); err != nil {
			return SortDescriptor{}, err
		}

		if dir == Desc {
			return Descending(field), nil
		}
		return Ascending(field), nil
	}

	return SortDescriptor{}, fmt.Errorf("expected sort descriptor at %d", p.pos)
}

func (p *parser) parseDirection(stop string) (Direction, error) {
	d, err := strconv.Atoi(p.until(stop))
	if err != nil || (d != int(Asc) && d != int(Desc)) {
		return Asc, fmt.Errorf("invalid sort direction at %d", p.pos)
	}
	return Direction(d), nil
}
