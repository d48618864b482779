package compiler

import (
	"context"
	"testing"

	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/testmodel"
)

type column struct {
	Alias, Column, Code string
}

type order struct {
	Alias, Column, Code string
	Dir                 Direction
}

// recorder is a Sink capturing everything it receives.
type recorder struct {
	alias      string
	table      string
	joins      []Join
	columns    []column
	conditions []Predicate
	orders     []order
}

func (r *recorder) SetRootTable(alias, table string) {
	r.alias, r.table = alias, table
}

func (r *recorder) AddJoin(j Join) {
	r.joins = append(r.joins, j)
}

func (r *recorder) AddResultColumn(alias, col, code string) {
	r.columns = append(r.columns, column{alias, col, code})
}

func (r *recorder) AddCondition(p Predicate) {
	r.conditions = append(r.conditions, p)
}

func (r *recorder) AddOrderBy(alias, col, code string, dir Direction) {
	r.orders = append(r.orders, order{alias, col, code, dir})
}

func (r *recorder) Subquery() Sink {
	return &recorder{}
}

func (r *recorder) aliases() []string {
	out := []string{r.alias}
	for _, j := range r.joins {
		out = append(out, j.ToAlias)
	}
	return out
}

func sub(t *testing.T, p Predicate) *recorder {
	t.Helper()
	r, ok := p.Subquery.(*recorder)
	if !ok {
		t.Fatalf("predicate on %s.%s has no subquery", p.Alias, p.Column)
	}
	return r
}

func newBuilder(t *testing.T, entity string, opts ...Option) (*Builder, *meta.Registry) {
	t.Helper()
	reg := testmodel.Registry()
	return New("test", testmodel.Entity(reg, entity), reg, opts...), reg
}

func ctx() context.Context {
	return context.Background()
}
