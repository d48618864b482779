package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/dialects"
)

// likeEscape escapes the pattern characters of values matched literally.
var likeEscape = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// writer accumulates one statement. Placeholders are numbered as they are
// written, so a subquery rendered into the same writer continues the
// numbering of its outer statement.
type writer struct {
	d    dialects.Dialect
	sb   strings.Builder
	args []any
	cols []string
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.sb.WriteString(p)
	}
}

func (w *writer) ident(alias, column string) {
	w.write(w.d.QuoteIdentifier(alias), ".", w.d.QuoteIdentifier(column))
}

func (w *writer) param(column string, v any) {
	w.args = append(w.args, v)
	w.cols = append(w.cols, column)
	w.write(w.d.Placeholder(len(w.args)))
}

// expression is one rendered WHERE fragment.
type expression interface {
	build(w *writer)
}

// columnRef is a qualified column, optionally lowered on both sides of the
// comparison.
type columnRef struct {
	alias  string
	column string
	lower  bool
}

func (c columnRef) build(w *writer) {
	if c.lower {
		w.write("LOWER(")
		w.ident(c.alias, c.column)
		w.write(")")
		return
	}
	w.ident(c.alias, c.column)
}

func (c columnRef) param(w *writer, v any) {
	if c.lower {
		w.write("LOWER(")
		w.param(c.column, v)
		w.write(")")
		return
	}
	w.param(c.column, v)
}

// compareExp is a binary comparison. A nil value compares with IS [NOT] NULL.
type compareExp struct {
	col   columnRef
	op    string
	value any
}

func (e compareExp) build(w *writer) {
	if e.value == nil {
		switch e.op {
		case "=":
			w.ident(e.col.alias, e.col.column)
			w.write(" IS NULL")
			return
		case "<>":
			w.ident(e.col.alias, e.col.column)
			w.write(" IS NOT NULL")
			return
		}
	}
	e.col.build(w)
	w.write(" ", e.op, " ")
	e.col.param(w, e.value)
}

// nullExp is IS [NOT] NULL.
type nullExp struct {
	col columnRef
	not bool
}

func (e nullExp) build(w *writer) {
	w.ident(e.col.alias, e.col.column)
	if e.not {
		w.write(" IS NOT NULL")
		return
	}
	w.write(" IS NULL")
}

// inExp is [NOT] IN over a value list. An empty list is always false for
// IN and always true for NOT IN; a single value compares directly.
type inExp struct {
	col    columnRef
	values []any
	not    bool
}

func (e inExp) build(w *writer) {
	switch len(e.values) {
	case 0:
		if e.not {
			w.write("0=0")
			return
		}
		w.write("0=1")
		return
	case 1:
		op := "="
		if e.not {
			op = "<>"
		}
		compareExp{col: e.col, op: op, value: e.values[0]}.build(w)
		return
	}

	e.col.build(w)
	if e.not {
		w.write(" NOT IN (")
	} else {
		w.write(" IN (")
	}
	for i, v := range e.values {
		if i > 0 {
			w.write(", ")
		}
		if v == nil {
			w.write("NULL")
			continue
		}
		e.col.param(w, v)
	}
	w.write(")")
}

// likeExp is a pattern match. Values of prefix, suffix and substring
// matches are escaped before the wildcards are added.
type likeExp struct {
	col     columnRef
	op      string
	pattern string
}

func newLike(d dialects.Dialect, col columnRef, op compiler.Operator, value any, ignoreCase bool) likeExp {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	switch op {
	case compiler.StartsWith:
		s = likeEscape.Replace(s) + "%"
	case compiler.EndsWith:
		s = "%" + likeEscape.Replace(s)
	case compiler.Contains:
		s = "%" + likeEscape.Replace(s) + "%"
	}
	keyword, folded := d.Like(op == compiler.NotLike, ignoreCase)
	col.lower = ignoreCase && !folded
	return likeExp{col: col, op: keyword, pattern: s}
}

func (e likeExp) build(w *writer) {
	e.col.build(w)
	w.write(" ", e.op, " ")
	e.col.param(w, e.pattern)
	w.write(w.d.LikeEscape())
}

// subqueryExp is col IN (SELECT ...).
type subqueryExp struct {
	col   columnRef
	query *Select
}

func (e subqueryExp) build(w *writer) {
	e.col.build(w)
	w.write(" IN (")
	e.query.render(w)
	w.write(")")
}

// chainExp joins expressions left to right, each by its own combinator.
// The combinator of the first element is ignored.
type chainExp struct {
	exps   []expression
	ops    []compiler.Combinator
	parens bool
}

func (e *chainExp) add(op compiler.Combinator, exp expression) {
	e.exps = append(e.exps, exp)
	e.ops = append(e.ops, op)
}

func (e *chainExp) build(w *writer) {
	if e.parens {
		w.write("(")
	}
	for i, exp := range e.exps {
		if i > 0 {
			if e.ops[i] == compiler.Or {
				w.write(" OR ")
			} else {
				w.write(" AND ")
			}
		}
		exp.build(w)
	}
	if e.parens {
		w.write(")")
	}
}

var comparisons = map[compiler.Operator]string{
	compiler.Eq: "=",
	compiler.Ne: "<>",
	compiler.Lt: "<",
	compiler.Le: "<=",
	compiler.Gt: ">",
	compiler.Ge: ">=",
}

// predicate converts an emitted predicate into an expression.
func predicate(d dialects.Dialect, p compiler.Predicate) expression {
	if p.IsGroup() {
		group := &chainExp{parens: true}
		for _, c := range p.Grouped {
			group.add(c.Combinator, predicate(d, c))
		}
		return group
	}

	head := leaf(d, p)
	if len(p.Grouped) == 0 {
		return head
	}
	group := &chainExp{parens: true}
	group.add(compiler.And, head)
	for _, c := range p.Grouped {
		group.add(c.Combinator, predicate(d, c))
	}
	return group
}

func leaf(d dialects.Dialect, p compiler.Predicate) expression {
	col := columnRef{alias: p.Alias, column: p.Column}
	if p.Subquery != nil {
		sub, ok := p.Subquery.(*Select)
		if !ok {
			panic(fmt.Sprintf("statement: subquery sink %T was not created by Select", p.Subquery))
		}
		return subqueryExp{col: col, query: sub}
	}

	switch p.Operator {
	case compiler.IsNull, compiler.IsNotNull:
		return nullExp{col: col, not: p.Operator == compiler.IsNotNull}
	case compiler.Like, compiler.NotLike, compiler.StartsWith, compiler.EndsWith, compiler.Contains:
		return newLike(d, col, p.Operator, p.Value, p.IgnoreCase)
	case compiler.In, compiler.NotIn:
		col.lower = p.IgnoreCase
		return inExp{col: col, values: values(p.Value), not: p.Operator == compiler.NotIn}
	}

	op, ok := comparisons[p.Operator]
	if !ok {
		panic("statement: unsupported operator " + strconv.Quote(p.Operator.String()))
	}
	col.lower = p.IgnoreCase && p.Value != nil
	return compareExp{col: col, op: op, value: p.Value}
}

func values(v any) []any {
	switch vs := v.(type) {
	case nil:
		return nil
	case []any:
		return vs
	}
	return []any{v}
}
