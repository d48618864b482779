// Package statement renders compiled operations as SQL and runs them.
//
// Select implements compiler.Sink: binding an operation into a Select
// collects its root table, joins, projected columns, predicates and order,
// and Render turns them into one parameterized SELECT for a dialect.
package statement

import (
	"strconv"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/dialects"
)

// Statement is a rendered SELECT.
type Statement struct {
	SQL  string
	Args []any
	// Columns names the column each argument is compared against.
	Columns []string
	// Table is the root table.
	Table string
	// Operation is the operation the statement was bound from, if known.
	Operation string
}

type resultColumn struct {
	alias, name, code string
}

type order struct {
	alias, column string
	dir           compiler.Direction
}

// Select is a SELECT statement under construction.
type Select struct {
	dialect dialects.Dialect
	alias   string
	table   string
	joins   []compiler.Join
	columns []resultColumn
	codes   map[string]bool
	where   []compiler.Predicate
	orderBy []order
	limit   int
	offset  int
}

var _ compiler.Sink = (*Select)(nil)

// NewSelect creates an empty statement for dialect d.
func NewSelect(d dialects.Dialect) *Select {
	return &Select{
		dialect: d,
		codes:   make(map[string]bool),
	}
}

// SetRootTable sets the FROM table.
func (s *Select) SetRootTable(alias, table string) {
	s.alias, s.table = alias, table
}

// AddJoin appends a join; nullable joins render as LEFT JOIN.
func (s *Select) AddJoin(j compiler.Join) {
	s.joins = append(s.joins, j)
}

// AddResultColumn projects alias.column as code. Repeated codes are ignored.
func (s *Select) AddResultColumn(alias, column, code string) {
	if s.codes[code] {
		return
	}
	s.codes[code] = true
	s.columns = append(s.columns, resultColumn{alias: alias, name: column, code: code})
}

// AddCondition appends a top-level predicate.
func (s *Select) AddCondition(p compiler.Predicate) {
	s.where = append(s.where, p)
}

// AddOrderBy orders by alias.column, projecting it under code if needed.
func (s *Select) AddOrderBy(alias, column, code string, dir compiler.Direction) {
	s.AddResultColumn(alias, column, code)
	s.orderBy = append(s.orderBy, order{alias: alias, column: column, dir: dir})
}

// Subquery returns a new statement in the same dialect.
func (s *Select) Subquery() compiler.Sink {
	return NewSelect(s.dialect)
}

// SetLimit limits the number of rows; zero means no limit. The offset
// applies only together with a limit.
func (s *Select) SetLimit(limit, offset int) {
	s.limit, s.offset = limit, offset
}

// Build renders the statement and returns its SQL and arguments.
func (s *Select) Build() (string, []any) {
	st := s.Render()
	return st.SQL, st.Args
}

// Render renders the statement.
func (s *Select) Render() Statement {
	w := &writer{d: s.dialect}
	s.render(w)
	return Statement{
		SQL:     w.sb.String(),
		Args:    w.args,
		Columns: w.cols,
		Table:   s.table,
	}
}

func (s *Select) render(w *writer) {
	q := s.dialect.QuoteIdentifier

	w.write("SELECT ")
	if len(s.columns) == 0 {
		w.write("1")
	}
	for i, c := range s.columns {
		if i > 0 {
			w.write(", ")
		}
		w.ident(c.alias, c.name)
		w.write(" AS ", q(c.code))
	}

	w.write(" FROM ", q(s.table), " ", q(s.alias))
	for _, j := range s.joins {
		if j.Nullable {
			w.write(" LEFT JOIN ")
		} else {
			w.write(" JOIN ")
		}
		w.write(q(j.ToTable), " ", q(j.ToAlias), " ON ")
		w.ident(j.ToAlias, j.ToColumn)
		w.write(" = ")
		w.ident(j.FromAlias, j.FromColumn)
	}

	if len(s.where) > 0 {
		w.write(" WHERE ")
		chain := &chainExp{}
		for _, p := range s.where {
			chain.add(p.Combinator, predicate(s.dialect, p))
		}
		chain.build(w)
	}

	for i, o := range s.orderBy {
		if i == 0 {
			w.write(" ORDER BY ")
		} else {
			w.write(", ")
		}
		w.ident(o.alias, o.column)
		switch o.dir {
		case compiler.Asc:
			w.write(" ASC")
		case compiler.Desc:
			w.write(" DESC")
		}
	}

	if s.limit > 0 {
		w.write(" LIMIT ", strconv.Itoa(s.limit))
		if s.offset > 0 {
			w.write(" OFFSET ", strconv.Itoa(s.offset))
		}
	}
}
