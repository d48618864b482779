package compiler

// Row is one flat result row keyed by result code.
type Row map[string]any

// Join is one join emitted into a statement: ToTable, aliased ToAlias, is
// joined on FromAlias.FromColumn = ToAlias.ToColumn.
type Join struct {
	FromAlias  string
	FromColumn string
	ToAlias    string
	ToColumn   string
	ToTable    string
	// Nullable joins must not drop rows of the parent table.
	Nullable bool
}

// Predicate is one emitted filter.
//
// A leaf predicate has Alias and Column set. Grouped predicates attached to
// a leaf follow it inside one parenthesized group, each joined by its own
// Combinator. A predicate with no Column is a pure group of its Grouped
// children. Subquery is set for correlated-subquery predicates, rendered as
// Column IN (subquery).
type Predicate struct {
	Alias      string
	Column     string
	Operator   Operator
	Value      any
	Combinator Combinator
	IgnoreCase bool
	Grouped    []Predicate
	Subquery   Sink
}

// IsGroup reports whether p is a pure group without a head column.
func (p Predicate) IsGroup() bool {
	return p.Column == "" && p.Subquery == nil
}

// Sink receives a compiled operation at invocation time and turns it into
// an executable statement.
type Sink interface {
	// SetRootTable sets the table the statement selects from.
	SetRootTable(alias, table string)
	// AddJoin adds one join. Joins arrive source-first and at most once per alias.
	AddJoin(j Join)
	// AddResultColumn projects alias.column under code.
	AddResultColumn(alias, column, code string)
	// AddCondition adds a top-level predicate.
	AddCondition(p Predicate)
	// AddOrderBy orders by alias.column, projected under code.
	AddOrderBy(alias, column, code string, dir Direction)
	// Subquery creates an independent sink for a correlated subquery.
	Subquery() Sink
}
