package compiler

import (
	"strings"

	"github.com/coregx/relmap/internal/meta"
)

// joinShape is the storage layout of one relation hop, derived from
// (cardinality, ownership, join table).
type joinShape int

const (
	// shapeForeignKey: the declaring table holds the foreign key.
	shapeForeignKey joinShape = iota
	// shapeInverseForeignKey: the target table holds the foreign key of the
	// owning field (mapped one-to-one).
	shapeInverseForeignKey
	// shapeJoinTable: single-valued, owned through a join table.
	shapeJoinTable
	// shapeInverseJoinTable: single-valued, mapped through the owner's join table.
	shapeInverseJoinTable
	// shapeCollectionForeignKey: many-valued, the target table holds the
	// foreign key back to the declaring entity.
	shapeCollectionForeignKey
	// shapeCollectionJoinTable: many-valued, owned through a join table.
	shapeCollectionJoinTable
	// shapeInverseCollectionJoinTable: many-valued, mapped through the
	// owner's join table.
	shapeInverseCollectionJoinTable
)

func (s joinShape) many() bool {
	return s >= shapeCollectionForeignKey
}

// hop is a classified relation: its shape plus the storage details the
// shape needs.
type hop struct {
	shape  joinShape
	target *meta.Entity
	// column is the foreign-key column for the foreign-key shapes.
	column string
	// joinTable is the mediating table for the join-table shapes, described
	// from the owning side.
	joinTable *meta.JoinTable
}

// classify derives the join shape of relation field f declared on e.
func (b *Builder) classify(e *meta.Entity, f *meta.Field, path string) (hop, error) {
	rel := f.Relation
	target, err := b.provider.Entity(rel.Target)
	if err != nil {
		return hop{}, configErr(b.operation, path, ErrInvalidRelation, "%s.%s: %v", e.Name, f.Name, err)
	}
	h := hop{target: target}

	invalid := func(reason string) (hop, error) {
		return hop{}, configErr(b.operation, path, ErrInvalidRelation, "%s.%s (%s, %s): %s",
			e.Name, f.Name, rel.Cardinality, rel.Ownership, reason)
	}

	// owner is the owning field on the target for mapped relations.
	var owner *meta.Field
	if rel.Ownership == meta.Mapped {
		o, ok := target.Field(rel.MappedBy)
		if !ok || o.Relation == nil || o.Relation.Ownership != meta.Owned {
			return invalid("mapped by " + rel.MappedBy + " which is not an owned relation of " + target.Name)
		}
		owner = o
	}

	switch rel.Cardinality {
	case meta.OneToOne, meta.ManyToOne:
		switch {
		case rel.Ownership == meta.Owned && rel.JoinTable == nil:
			h.shape, h.column = shapeForeignKey, f.Column
		case rel.Ownership == meta.Owned:
			h.shape, h.joinTable = shapeJoinTable, rel.JoinTable
		case rel.Cardinality == meta.ManyToOne:
			return invalid("the many side always owns the foreign key")
		case owner.Relation.JoinTable != nil:
			h.shape, h.joinTable = shapeInverseJoinTable, owner.Relation.JoinTable
		case owner.HoldsForeignKey():
			h.shape, h.column = shapeInverseForeignKey, owner.Column
		default:
			return invalid("owner " + owner.Name + " holds no foreign key")
		}

	case meta.OneToMany, meta.ManyToMany:
		switch {
		case rel.Ownership == meta.Owned && rel.JoinTable != nil:
			h.shape, h.joinTable = shapeCollectionJoinTable, rel.JoinTable
		case rel.Ownership == meta.Owned && rel.Cardinality == meta.OneToMany:
			h.shape, h.column = shapeCollectionForeignKey, f.Column
		case rel.Ownership == meta.Owned:
			return invalid("no join table")
		case owner.Relation.JoinTable != nil:
			h.shape, h.joinTable = shapeInverseCollectionJoinTable, owner.Relation.JoinTable
		case owner.HoldsForeignKey():
			h.shape, h.column = shapeCollectionForeignKey, owner.Column
		default:
			return invalid("owner " + owner.Name + " holds no foreign key and no join table")
		}

	default:
		return invalid("unknown cardinality")
	}
	return h, nil
}

// resolution is the outcome of resolving one path.
type resolution struct {
	table *TableInfo
	field *meta.Field
	// extension is set when field is a dynamic attribute.
	extension bool

	// sub and rest are set instead of table and field when the path crosses
	// a many-valued relation.
	sub  *Subquery
	rest string
}

// resolve walks path from the start table. Subqueries are looked up and
// registered in scope; a nil scope rejects many-valued hops.
func (b *Builder) resolve(path string, scope map[string]*Subquery) (*resolution, error) {
	full := b.qualify(path)
	if strings.TrimSpace(path) == "" {
		return nil, configErr(b.operation, full, ErrUnknownField, "empty path")
	}

	segs := strings.Split(path, ".")
	last := len(segs) - 1
	cur := b.start

	for i, seg := range segs[:last] {
		prefix := strings.Join(segs[:i+1], ".")

		if t, ok := b.paths[prefix]; ok {
			cur = t
			continue
		}
		if sq, ok := scope[prefix]; ok {
			return &resolution{sub: sq, rest: strings.Join(segs[i+1:], ".")}, nil
		}
		if cur.Extension {
			return nil, configErr(b.operation, full, ErrExtensionPlacement, "")
		}

		e := cur.Entity
		if e.IsExtensionField(seg) {
			if i != last-1 {
				return nil, configErr(b.operation, full, ErrExtensionPlacement, "")
			}
			cur = b.joinExtension(cur, prefix)
			continue
		}

		f, ok := e.Field(seg)
		if !ok {
			return nil, configErr(b.operation, full, ErrUnknownField, "%s has no field %q", e.Name, seg)
		}
		if !f.IsRelation() {
			return nil, configErr(b.operation, full, ErrNotRelation, "%s.%s", e.Name, seg)
		}

		h, err := b.classify(e, f, full)
		if err != nil {
			return nil, err
		}
		if h.shape.many() {
			if scope == nil {
				return nil, configErr(b.operation, full, ErrManyValuedProjection, "%s.%s", e.Name, seg)
			}
			sq := b.newSubquery(cur, h, prefix)
			scope[prefix] = sq
			return &resolution{sub: sq, rest: strings.Join(segs[i+1:], ".")}, nil
		}

		cur = b.joinRelation(cur, f, h, prefix)
	}

	term := segs[last]
	if cur.Extension {
		return &resolution{table: cur, field: cur.Owner().DynamicField(term), extension: true}, nil
	}
	if cur.Entity.IsExtensionField(term) {
		return nil, configErr(b.operation, full, ErrExtensionPlacement, "")
	}
	f, ok := cur.Entity.Field(term)
	if !ok {
		return nil, configErr(b.operation, full, ErrUnknownField, "%s has no field %q", cur.Entity.Name, term)
	}
	return b.shortcut(cur, f), nil
}

// shortcut reads the target id of a join-table hop from the join table
// itself, sparing the join to the target.
func (b *Builder) shortcut(t *TableInfo, f *meta.Field) *resolution {
	if t != b.start || t.Parent == nil || t.Parent.Entity != nil || f != t.Entity.ID {
		return &resolution{table: t, field: f}
	}
	direct := *f
	direct.Column = t.ParentColumn
	return &resolution{table: t.Parent, field: &direct}
}

func (b *Builder) newTable(table string, e *meta.Entity, parent *TableInfo, parentColumn, column string, nullable bool) *TableInfo {
	return &TableInfo{
		Alias:        b.aliases.Next(table),
		Table:        table,
		Entity:       e,
		Parent:       parent,
		ParentColumn: parentColumn,
		Column:       column,
		Nullable:     nullable,
	}
}

func (b *Builder) joinExtension(cur *TableInfo, prefix string) *TableInfo {
	ext := cur.Entity.Extension
	t := b.newTable(ext.Table, nil, cur, cur.Entity.ID.Column, ext.IDColumn, true)
	t.Extension = true
	b.remember(prefix, t)
	return t
}

// joinRelation joins the target of a single-valued relation hop onto cur.
func (b *Builder) joinRelation(cur *TableInfo, f *meta.Field, h hop, prefix string) *TableInfo {
	nullable := cur.Nullable || f.Optional
	id := cur.Entity.ID.Column
	targetID := h.target.ID.Column

	var t *TableInfo
	switch h.shape {
	case shapeForeignKey:
		t = b.newTable(h.target.Table, h.target, cur, h.column, targetID, nullable)
	case shapeInverseForeignKey:
		t = b.newTable(h.target.Table, h.target, cur, id, h.column, nullable)
	case shapeJoinTable:
		jt := b.newTable(h.joinTable.Name, nil, cur, id, h.joinTable.OwnerColumn, nullable)
		t = b.newTable(h.target.Table, h.target, jt, h.joinTable.TargetColumn, targetID, nullable)
	case shapeInverseJoinTable:
		jt := b.newTable(h.joinTable.Name, nil, cur, id, h.joinTable.TargetColumn, nullable)
		t = b.newTable(h.target.Table, h.target, jt, h.joinTable.OwnerColumn, targetID, nullable)
	case shapeCollectionForeignKey, shapeCollectionJoinTable, shapeInverseCollectionJoinTable:
		panic("compiler: many-valued relation joined inline")
	}
	b.remember(prefix, t)
	return t
}

// newSubquery creates the nested builder of a many-valued hop from cur.
func (b *Builder) newSubquery(cur *TableInfo, h hop, prefix string) *Subquery {
	sq := &Subquery{
		Path:       b.qualify(prefix),
		Outer:      cur,
		OuterField: cur.Entity.ID,
	}
	targetID := h.target.ID.Column

	var root, start *TableInfo
	switch h.shape {
	case shapeCollectionForeignKey:
		root = b.newTable(h.target.Table, h.target, nil, "", "", false)
		start, sq.Column = root, h.column
	case shapeCollectionJoinTable:
		root = b.newTable(h.joinTable.Name, nil, nil, "", "", false)
		start = b.newTable(h.target.Table, h.target, root, h.joinTable.TargetColumn, targetID, false)
		sq.Column = h.joinTable.OwnerColumn
	case shapeInverseCollectionJoinTable:
		root = b.newTable(h.joinTable.Name, nil, nil, "", "", false)
		start = b.newTable(h.target.Table, h.target, root, h.joinTable.OwnerColumn, targetID, false)
		sq.Column = h.joinTable.TargetColumn
	case shapeForeignKey, shapeInverseForeignKey, shapeJoinTable, shapeInverseJoinTable:
		panic("compiler: single-valued relation used as subquery")
	}
	sq.Root = root
	sq.builder = b.nested(h.target, root, start, sq.Path)

	b.logger.Debug("subquery allocated",
		"operation", b.operation,
		"path", sq.Path,
		"root", root.Alias,
		"column", sq.Column,
	)
	return sq
}

func (b *Builder) remember(prefix string, t *TableInfo) {
	b.paths[prefix] = t
	b.logger.Debug("join allocated",
		"operation", b.operation,
		"path", b.qualify(prefix),
		"alias", t.Alias,
		"table", t.Table,
		"nullable", t.Nullable,
	)
}

// qualify prefixes path with the path of the enclosing subquery.
func (b *Builder) qualify(path string) string {
	if b.prefix == "" {
		return path
	}
	return b.prefix + "." + path
}
