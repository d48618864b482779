package compiler

import (
	"fmt"
	"strings"

	"github.com/coregx/relmap/internal/meta"
)

// Property sigils of dynamic results.
const (
	// ExtensionSigil marks a result read from the entity's extension table.
	ExtensionSigil = "@"
	// AdHocSigil marks a free-form projected value that has no property on
	// the result type.
	AdHocSigil = "#"
)

// ResultKind classifies a result field.
type ResultKind int

// Result kinds.
const (
	Scalar ResultKind = iota
	// Relation results carry the foreign id of a related entity.
	Relation
	// Extension results carry one dynamic attribute of the extension table.
	Extension
	// AdHoc results carry a value with no declared destination property.
	AdHoc
	// HiddenID is the entity id added for proxying; it is never assigned.
	HiddenID
)

func (k ResultKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Relation:
		return "relation"
	case Extension:
		return "extension"
	case AdHoc:
		return "adhoc"
	case HiddenID:
		return "hidden-id"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// Direction of an order-by field.
type Direction int

// Directions.
const (
	None Direction = iota
	Asc
	Desc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	}
	return ""
}

// ParseDirection parses "asc", "desc" or the empty string.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return None, nil
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

// ResultField is one projected column.
type ResultField struct {
	// Property is the destination property without sigil. It is empty for
	// the direct value of a scalar operation.
	Property string
	Kind     ResultKind
	Path     string
	Table    *TableInfo
	Field    *meta.Field
	Type     meta.FieldType
	// Code is the alias-qualified column label the row is keyed by.
	Code  string
	Order Direction
}

// IsDirect reports whether rf is the direct value of the operation.
func (rf *ResultField) IsDirect() bool {
	return rf.Property == "" && rf.Kind != HiddenID
}

// Target returns the related entity name of a relation result.
func (rf *ResultField) Target() string {
	if rf.Field == nil || rf.Field.Relation == nil {
		return ""
	}
	return rf.Field.Relation.Target
}

// OrderBy is one order-by entry referencing a result field.
type OrderBy struct {
	Property  string
	Direction Direction
	Field     *ResultField
}

// Shape is the materialization strategy of an operation, fixed at
// registration.
type Shape int

// Shapes.
const (
	// ShapeScalar returns the direct value only.
	ShapeScalar Shape = iota
	// ShapeEntity fills a registered entity type.
	ShapeEntity
	// ShapeProjection fills a plain result type.
	ShapeProjection
	// ShapeProjectionWithExtensions fills a plain result type backed by an
	// id-keyed proxy for its relation and extension values.
	ShapeProjectionWithExtensions
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeEntity:
		return "entity"
	case ShapeProjection:
		return "projection"
	case ShapeProjectionWithExtensions:
		return "projection+extensions"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

func resultCode(t *TableInfo, f *meta.Field) string {
	return t.Alias + "." + f.Column
}

// splitSigil separates a leading sigil from a property name.
func splitSigil(property string) (sigil, name string) {
	for _, s := range []string{ExtensionSigil, AdHocSigil} {
		if strings.HasPrefix(property, s) {
			return s, strings.TrimPrefix(property, s)
		}
	}
	return "", property
}
