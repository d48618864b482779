// Package meta describes the entity graph the query compiler walks: entities,
// their persisted fields, and the foreign-key and join-table relations between them.
// Every value in this package is treated as immutable once registered.
package meta

import (
	"fmt"
	"strings"
)

// FieldType is the declared in-memory type of a field or result.
type FieldType string

// Supported field types.
const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeInt64  FieldType = "int64"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeTime   FieldType = "time"
	TypeUUID   FieldType = "uuid"
	TypeJSON   FieldType = "json"
	TypeAny    FieldType = "any"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeInt64, TypeFloat, TypeBool, TypeTime, TypeUUID, TypeJSON, TypeAny:
		return true
	}
	return false
}

// Cardinality of a relation seen from the declaring entity.
type Cardinality int

// Relation cardinalities.
const (
	OneToOne Cardinality = iota
	ManyToOne
	OneToMany
	ManyToMany
)

var cardinalityNames = map[Cardinality]string{
	OneToOne:   "one-to-one",
	ManyToOne:  "many-to-one",
	OneToMany:  "one-to-many",
	ManyToMany: "many-to-many",
}

func (c Cardinality) String() string {
	if name, ok := cardinalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// IsMany reports whether the relation yields a collection.
func (c Cardinality) IsMany() bool {
	return c == OneToMany || c == ManyToMany
}

// ParseCardinality accepts the names produced by String, case-insensitively,
// with or without dashes or underscores.
func ParseCardinality(s string) (Cardinality, error) {
	norm := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(s))
	for c, name := range cardinalityNames {
		if strings.ReplaceAll(name, "-", "") == norm {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cardinality %q", s)
}

// Ownership tells which side of a relation holds the foreign key or owns the join table.
type Ownership int

// Relation ownership.
const (
	// Owned means this entity holds the foreign key (or owns the join table).
	Owned Ownership = iota
	// Mapped means the relation is the inverse of a field on the target entity.
	Mapped
)

func (o Ownership) String() string {
	if o == Mapped {
		return "mapped"
	}
	return "owned"
}

// ParseOwnership parses "owned" or "mapped".
func ParseOwnership(s string) (Ownership, error) {
	switch strings.ToLower(s) {
	case "", "owned":
		return Owned, nil
	case "mapped":
		return Mapped, nil
	}
	return 0, fmt.Errorf("unknown ownership %q", s)
}

// JoinTable mediates a relation. It is always described from the owning side:
// OwnerColumn references the owner's id and TargetColumn the target's id.
type JoinTable struct {
	Name         string
	OwnerColumn  string
	TargetColumn string
}

// ForeignConstraint describes the relation nature of a field.
type ForeignConstraint struct {
	Target      string
	Cardinality Cardinality
	Ownership   Ownership
	// MappedBy names the owning field on Target for mapped relations.
	MappedBy  string
	JoinTable *JoinTable
}

// Field is one persisted field of an entity.
type Field struct {
	Name string
	// Column is the storage column. For owned single-valued relations it holds
	// the foreign key; for owned one-to-many relations without a join table it
	// names the foreign-key column on the target table.
	Column   string
	Type     FieldType
	Optional bool
	Relation *ForeignConstraint
	// Dynamic marks extension attributes synthesized at resolution time.
	Dynamic bool
}

// IsRelation reports whether the field refers to another entity.
func (f *Field) IsRelation() bool {
	return f.Relation != nil
}

// HoldsForeignKey reports whether the declaring table stores the related id
// in Column, so the relation can be projected without an extra join.
func (f *Field) HoldsForeignKey() bool {
	return f.Relation != nil &&
		f.Relation.Ownership == Owned &&
		f.Relation.JoinTable == nil &&
		!f.Relation.Cardinality.IsMany()
}

// Extension describes the side table storing dynamically named attributes of
// an entity, keyed by the entity id.
type Extension struct {
	// Field is the synthetic path segment addressing the extension table.
	Field    string
	Table    string
	IDColumn string
	// Holder is the property receiving the attribute map on materialized entities.
	Holder string
}

// Entity is the immutable description of one persisted type.
type Entity struct {
	Name      string
	Table     string
	ID        *Field
	Extension *Extension

	fields []*Field
	byName map[string]*Field
}

// NewEntity creates an entity with the given id field. The id is also the
// first entry of Fields.
func NewEntity(name, table string, id *Field, fields ...*Field) *Entity {
	e := &Entity{
		Name:   name,
		Table:  table,
		ID:     id,
		byName: make(map[string]*Field, len(fields)+1),
	}
	if id != nil {
		e.fields = append(e.fields, id)
		e.byName[id.Name] = id
	}
	for _, f := range fields {
		e.fields = append(e.fields, f)
		e.byName[f.Name] = f
	}
	return e
}

// WithExtension attaches an extension table and returns the entity.
func (e *Entity) WithExtension(ext *Extension) *Entity {
	e.Extension = ext
	return e
}

// Fields returns the fields in declaration order.
func (e *Entity) Fields() []*Field {
	return append([]*Field(nil), e.fields...)
}

// Field looks up a declared field by name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// IsExtensionField reports whether name is the entity's extension segment.
func (e *Entity) IsExtensionField(name string) bool {
	return e.Extension != nil && e.Extension.Field == name
}

// DynamicField synthesizes the descriptor of an extension attribute.
func (e *Entity) DynamicField(attr string) *Field {
	return &Field{
		Name:     attr,
		Column:   attr,
		Type:     TypeAny,
		Optional: true,
		Dynamic:  true,
	}
}

func (e *Entity) String() string {
	return e.Name
}
