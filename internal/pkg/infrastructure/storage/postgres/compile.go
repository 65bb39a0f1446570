package postgres

import (
	"fmt"
	"strings"

	"github.com/diwise/entity-store/pkg/query"
)

// compileFilter translates a filter tree into a parameterized WHERE
// clause over the entities table. Parameter numbering starts after
// the given offset so that callers can bind their own leading
// arguments. Predicates that cannot be expressed against the backend,
// such as field against field comparisons, fail with
// query.ErrNotSupported.
func compileFilter(expr query.Expression, offset int) (string, []any, error) {
	c := &compiler{offset: offset}

	clause, err := c.compile(expr)
	if err != nil {
		return "", nil, err
	}

	return clause, c.args, nil
}

type compiler struct {
	offset int
	args   []any
}

func (c *compiler) bind(value any) string {
	c.args = append(c.args, value)
	return fmt.Sprintf("$%d", c.offset+len(c.args))
}

// fieldAccessor returns the SQL expression extracting a field value
// as text from the stored document. The field name is bound as a
// parameter, never interpolated.
func (c *compiler) fieldAccessor(name string) string {
	return fmt.Sprintf("(body->0->'fields'->(%s::text)->>'value')", c.bind(name))
}

func (c *compiler) compile(expr query.Expression) (string, error) {
	switch e := expr.(type) {
	case nil:
		return "TRUE", nil

	case query.ConstantExpr:
		if e.Value {
			return "TRUE", nil
		}
		return "FALSE", nil

	case query.NotExpr:
		inner, err := c.compile(e.Expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	case query.AndExpr:
		return c.compileJunction(e.Exprs, "AND", "TRUE")

	case query.OrExpr:
		return c.compileJunction(e.Exprs, "OR", "FALSE")

	case query.ContainmentExpr:
		return c.compileContainment(e)

	case query.ComparisonExpr:
		return c.compileComparison(e)
	}

	return "", fmt.Errorf("unknown expression %T: %w", expr, query.ErrNotSupported)
}

func (c *compiler) compileJunction(exprs []query.Expression, op, empty string) (string, error) {
	if len(exprs) == 0 {
		return empty, nil
	}

	parts := make([]string, 0, len(exprs))

	for _, sub := range exprs {
		part, err := c.compile(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("(%s)", part))
	}

	return strings.Join(parts, " "+op+" "), nil
}

func (c *compiler) compileContainment(e query.ContainmentExpr) (string, error) {
	remotes := []string{}
	locals := []string{}

	for _, id := range e.Set {
		if remote, err := id.Remote(); err == nil {
			remotes = append(remotes, remote)
		} else if id.Local() != "" {
			locals = append(locals, id.Local())
		}
	}

	parts := []string{}

	if len(remotes) > 0 {
		parts = append(parts, fmt.Sprintf("(remote_id <> '' AND remote_id = ANY(%s))", c.bind(remotes)))
	}

	if len(locals) > 0 {
		parts = append(parts, fmt.Sprintf("(local_id <> '' AND local_id = ANY(%s))", c.bind(locals)))
	}

	if len(parts) == 0 {
		return "FALSE", nil
	}

	return strings.Join(parts, " OR "), nil
}

func (c *compiler) compileComparison(e query.ComparisonExpr) (string, error) {
	left, op, right := e.Left, e.Op, e.Right

	// normalize so that the field or identity sits on the left
	if needsFlip(left, right) {
		left, right = right, left
		op = flip(op)
	}

	switch l := left.(type) {
	case query.FieldOperand:
		value, ok := right.(query.ValueOperand)
		if !ok {
			return "", fmt.Errorf("field comparisons require a constant operand: %w", query.ErrNotSupported)
		}
		return c.compileFieldComparison(l.Name, op, value.Value)

	case query.IdentityOperand:
		id, ok := right.(query.IdentifierOperand)
		if !ok {
			return "", fmt.Errorf("identity comparisons require an identifier operand: %w", query.ErrNotSupported)
		}
		return c.compileIdentityComparison(op, id)
	}

	return "", fmt.Errorf("unsupported operand pairing: %w", query.ErrNotSupported)
}

func needsFlip(left, right query.Operand) bool {
	switch left.(type) {
	case query.FieldOperand, query.IdentityOperand:
		return false
	}

	switch right.(type) {
	case query.FieldOperand, query.IdentityOperand:
		return true
	}

	return false
}

func flip(op query.Operator) query.Operator {
	switch op {
	case query.LessThan:
		return query.GreaterThan
	case query.LessOrEqual:
		return query.GreaterOrEqual
	case query.GreaterThan:
		return query.LessThan
	case query.GreaterOrEqual:
		return query.LessOrEqual
	}
	return op
}

var sqlOperators = map[query.Operator]string{
	query.Equal:          "=",
	query.NotEqual:       "<>",
	query.LessThan:       "<",
	query.LessOrEqual:    "<=",
	query.GreaterThan:    ">",
	query.GreaterOrEqual: ">=",
}

func (c *compiler) compileFieldComparison(field string, op query.Operator, value any) (string, error) {
	accessor := c.fieldAccessor(field)

	switch op {
	case query.Contains:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("contains requires a string operand: %w", query.ErrNotSupported)
		}
		return fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", accessor, c.bind(s)), nil

	case query.Matches:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("matches requires a string operand: %w", query.ErrNotSupported)
		}
		return fmt.Sprintf("%s ~* %s", accessor, c.bind(s)), nil
	}

	sqlOp, ok := sqlOperators[op]
	if !ok {
		return "", fmt.Errorf("unknown operator: %w", query.ErrNotSupported)
	}

	switch v := value.(type) {
	case nil:
		switch op {
		case query.Equal:
			return fmt.Sprintf("%s IS NULL", accessor), nil
		case query.NotEqual:
			return fmt.Sprintf("%s IS NOT NULL", accessor), nil
		}
		return "", fmt.Errorf("null only supports equality: %w", query.ErrNotSupported)

	case string:
		return fmt.Sprintf("%s %s %s", accessor, sqlOp, c.bind(v)), nil

	case bool:
		if op != query.Equal && op != query.NotEqual {
			return "", fmt.Errorf("booleans only support equality: %w", query.ErrNotSupported)
		}
		return fmt.Sprintf("(%s)::boolean %s %s", accessor, sqlOp, c.bind(v)), nil

	case int, int32, int64, float32, float64:
		return fmt.Sprintf("(%s)::numeric %s %s", accessor, sqlOp, c.bind(v)), nil
	}

	return "", fmt.Errorf("unsupported constant type %T: %w", value, query.ErrNotSupported)
}

func (c *compiler) compileIdentityComparison(op query.Operator, operand query.IdentifierOperand) (string, error) {
	if op != query.Equal && op != query.NotEqual {
		return "", fmt.Errorf("identifiers have no ordering: %w", query.ErrNotSupported)
	}

	var clause string

	if remote, err := operand.ID.Remote(); err == nil {
		clause = fmt.Sprintf("remote_id = %s", c.bind(remote))
	} else {
		clause = fmt.Sprintf("local_id = %s", c.bind(operand.ID.Local()))
	}

	if op == query.NotEqual {
		clause = fmt.Sprintf("NOT (%s)", clause)
	}

	return clause, nil
}
