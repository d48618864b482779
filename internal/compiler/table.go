package compiler

import "github.com/coregx/relmap/internal/meta"

// TableInfo is one table instance of a compiled operation: the root table or
// a join hanging off Parent on Parent.ParentColumn = Alias.Column.
// TableInfo values are immutable once created.
type TableInfo struct {
	Alias string
	Table string
	// Entity is nil for join tables and extension tables.
	Entity       *meta.Entity
	Parent       *TableInfo
	ParentColumn string
	Column       string
	// Nullable is set when any hop from the root to this table is optional.
	Nullable bool
	// Extension marks the extension table of Parent.Entity.
	Extension bool
}

// Chain returns the joined tables leading to t, source-first. The root is
// not part of the chain.
func (t *TableInfo) Chain() []*TableInfo {
	var chain []*TableInfo
	for n := t; n != nil && n.Parent != nil; n = n.Parent {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Join describes how t is joined to its parent.
func (t *TableInfo) Join() Join {
	if t.Parent == nil {
		return Join{ToAlias: t.Alias, ToTable: t.Table}
	}
	return Join{
		FromAlias:  t.Parent.Alias,
		FromColumn: t.ParentColumn,
		ToAlias:    t.Alias,
		ToColumn:   t.Column,
		ToTable:    t.Table,
		Nullable:   t.Nullable,
	}
}

// Owner returns the entity whose fields are stored in t: the entity itself,
// or the extended entity for extension tables.
func (t *TableInfo) Owner() *meta.Entity {
	if t.Extension && t.Parent != nil {
		return t.Parent.Entity
	}
	return t.Entity
}
