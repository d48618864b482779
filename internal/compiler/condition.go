package compiler

import (
	"fmt"
	"strings"

	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/meta"
)

// Operator is a comparison operator of a condition.
type Operator int

// Supported operators.
const (
	Eq Operator = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Like
	NotLike
	StartsWith
	EndsWith
	Contains
	In
	NotIn
	IsNull
	IsNotNull
)

var operatorNames = [...]string{
	Eq:         "eq",
	Ne:         "ne",
	Lt:         "lt",
	Le:         "le",
	Gt:         "gt",
	Ge:         "ge",
	Like:       "like",
	NotLike:    "not_like",
	StartsWith: "starts_with",
	EndsWith:   "ends_with",
	Contains:   "contains",
	In:         "in",
	NotIn:      "not_in",
	IsNull:     "is_null",
	IsNotNull:  "is_not_null",
}

var operatorSymbols = map[string]Operator{
	"=":  Eq,
	"==": Eq,
	"!=": Ne,
	"<>": Ne,
	"<":  Lt,
	"<=": Le,
	">":  Gt,
	">=": Ge,
}

func (o Operator) String() string {
	if o.Valid() {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	return o >= Eq && o <= IsNotNull
}

// MatchesNull reports whether a null value is meaningful for o: Eq and Ne
// compare against NULL as IS [NOT] NULL.
func (o Operator) MatchesNull() bool {
	return o == Eq || o == Ne
}

// Valueless reports whether o takes no value.
func (o Operator) Valueless() bool {
	return o == IsNull || o == IsNotNull
}

// Multi reports whether o takes a list of values.
func (o Operator) Multi() bool {
	return o == In || o == NotIn
}

// ParseOperator accepts operator names ("starts_with", "not-in") and the
// comparison symbols.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorSymbols[s]; ok {
		return op, nil
	}
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for op, name := range operatorNames {
		if name == norm {
			return Operator(op), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// Combinator joins a condition to the condition preceding it.
type Combinator int

// Combinators.
const (
	And Combinator = iota
	Or
)

func (c Combinator) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// ParseCombinator parses "and" or "or"; the empty string is And.
func ParseCombinator(s string) (Combinator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return 0, fmt.Errorf("unknown combinator %q", s)
}

// ConditionSpec declares one condition of an operation.
type ConditionSpec struct {
	// Path is the dotted field path from the operation entity.
	Path     string
	Operator Operator
	// Param is the index of the runtime argument bound to the condition.
	// A negative index evaluates Default instead.
	Param int
	// Default is the expression evaluated for negative Param indexes.
	Default string
	// Property is a dotted accessor into a composite runtime argument.
	Property   string
	Combinator Combinator
	// Nullable keeps null-matching conditions when the bound value is null.
	Nullable   bool
	IgnoreCase bool
	// Group makes the spec a parenthesized group of its children; Path,
	// Operator and the value source are then ignored.
	Group []ConditionSpec
}

// Condition is a compiled condition.
type Condition struct {
	Path       string
	Operator   Operator
	Param      int
	Default    *expr.Program
	Property   string
	Combinator Combinator
	Nullable   bool
	IgnoreCase bool

	// Table and Field locate the compared column. They are nil for groups
	// and subquery conditions.
	Table *TableInfo
	Field *meta.Field

	Group    []*Condition
	Subquery *Subquery

	accessor []string
}

// IsGroup reports whether c is a group of conditions.
func (c *Condition) IsGroup() bool {
	return c.Group != nil
}

func (c *Condition) clone(memo map[*Subquery]*Subquery) *Condition {
	cp := *c
	if c.Group != nil {
		cp.Group = make([]*Condition, len(c.Group))
		for i, child := range c.Group {
			cp.Group[i] = child.clone(memo)
		}
	}
	if c.Subquery != nil {
		cp.Subquery = c.Subquery.cloneMemo(memo)
	}
	return &cp
}

// Subquery is a correlated subquery reached through a many-valued relation:
// Outer.OuterField IN (SELECT Root.Column FROM Root ... WHERE <inner conditions>).
type Subquery struct {
	// Path is the prefix up to and including the many-valued segment.
	Path       string
	Outer      *TableInfo
	OuterField *meta.Field
	Root       *TableInfo
	Column     string

	builder *Builder
}

// Builder returns the nested builder compiling the inner conditions.
func (s *Subquery) Builder() *Builder {
	return s.builder
}

func (s *Subquery) cloneMemo(memo map[*Subquery]*Subquery) *Subquery {
	if cp, ok := memo[s]; ok {
		return cp
	}
	cp := *s
	cp.builder = s.builder.Clone()
	memo[s] = &cp
	return &cp
}
