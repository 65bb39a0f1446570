package query

import (
	"github.com/diwise/entity-store/pkg/entities"
)

type Operator int

const (
	Equal Operator = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual

	// Contains matches string fields containing the operand as a
	// case insensitive substring.
	Contains

	// Matches matches string fields against a case insensitive
	// regular expression.
	Matches
)

// Expression is a node in a boolean filter tree over entity fields.
type Expression interface {
	isExpression()
}

// Operand is one side of a comparison. Valid pairings are field vs
// constant, identity vs identifier and identity vs identifier set;
// anything else is rejected by tiers that translate predicates to a
// backend language.
type Operand interface {
	isOperand()
}

type FieldOperand struct {
	Name string
}

// IdentityOperand refers to the identifier of the entity under
// evaluation.
type IdentityOperand struct{}

type ValueOperand struct {
	Value any
}

type IdentifierOperand struct {
	ID entities.Identifier
}

func (FieldOperand) isOperand()      {}
func (IdentityOperand) isOperand()   {}
func (ValueOperand) isOperand()      {}
func (IdentifierOperand) isOperand() {}

type ComparisonExpr struct {
	Left  Operand
	Op    Operator
	Right Operand
}

// ContainmentExpr checks whether the entity's identifier is a member
// of the supplied identifier set, using the same local/remote
// equality rule as identifiers themselves.
type ContainmentExpr struct {
	Set []entities.Identifier
}

type AndExpr struct {
	Exprs []Expression
}

type OrExpr struct {
	Exprs []Expression
}

type NotExpr struct {
	Expr Expression
}

type ConstantExpr struct {
	Value bool
}

func (ComparisonExpr) isExpression()  {}
func (ContainmentExpr) isExpression() {}
func (AndExpr) isExpression()         {}
func (OrExpr) isExpression()          {}
func (NotExpr) isExpression()         {}
func (ConstantExpr) isExpression()    {}

func Field(name string) Operand {
	return FieldOperand{Name: name}
}

func Identity() Operand {
	return IdentityOperand{}
}

func Value(v any) Operand {
	return ValueOperand{Value: v}
}

func ID(id entities.Identifier) Operand {
	return IdentifierOperand{ID: id}
}

func Compare(left Operand, op Operator, right Operand) Expression {
	return ComparisonExpr{Left: left, Op: op, Right: right}
}

func Eq(left, right Operand) Expression {
	return Compare(left, Equal, right)
}

func MemberOf(set ...entities.Identifier) Expression {
	return ContainmentExpr{Set: set}
}

func And(exprs ...Expression) Expression {
	return AndExpr{Exprs: exprs}
}

func Or(exprs ...Expression) Expression {
	return OrExpr{Exprs: exprs}
}

func Not(expr Expression) Expression {
	return NotExpr{Expr: expr}
}

func Bool(value bool) Expression {
	return ConstantExpr{Value: value}
}
