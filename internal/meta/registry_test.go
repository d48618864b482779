package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idField() *Field {
	return &Field{Name: "id", Column: "id", Type: TypeInt64}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewEntity("Group", "groups", idField(),
		&Field{Name: "name", Column: "name", Type: TypeString})))

	err := reg.Register(NewEntity("Group", "groups", idField()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEntity))

	_, err = reg.Entity("Missing")
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestRegistry_RejectsInvalidEntities(t *testing.T) {
	tests := []struct {
		name   string
		entity *Entity
	}{
		{"no id", NewEntity("A", "a", nil)},
		{"unsafe table", NewEntity("A", "a; drop", idField())},
		{"duplicate field", NewEntity("A", "a", idField(), &Field{Name: "id", Column: "x"})},
		{"unsafe column", NewEntity("A", "a", idField(), &Field{Name: "x", Column: "x y"})},
		{"bad type", NewEntity("A", "a", idField(), &Field{Name: "x", Column: "x", Type: "decimal"})},
		{"mapped without owner", NewEntity("A", "a", idField(), &Field{
			Name:     "bs",
			Relation: &ForeignConstraint{Target: "B", Cardinality: OneToMany, Ownership: Mapped},
		})},
		{"owned many-to-many without join table", NewEntity("A", "a", idField(), &Field{
			Name:     "bs",
			Relation: &ForeignConstraint{Target: "B", Cardinality: ManyToMany},
		})},
		{"extension shadows field", NewEntity("A", "a", idField(), &Field{Name: "ext", Column: "ext"}).
			WithExtension(&Extension{Field: "ext", Table: "a_ext", IDColumn: "a_id"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.entity)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEntity))
		})
	}
}

func TestRegistry_Bindings(t *testing.T) {
	type group struct {
		ID   int64
		Name string
	}

	reg := NewRegistry().MustRegister(NewEntity("Group", "groups", idField()))
	assert.IsType(t, RecordBinding{}, reg.Binding("Group"))

	b := MustBindStruct(group{})
	require.NoError(t, reg.Bind("Group", b))
	assert.Same(t, b, reg.Binding("Group"))

	e, ok := reg.EntityFor(b)
	require.True(t, ok)
	assert.Equal(t, "Group", e.Name)

	assert.Error(t, reg.Bind("Missing", b))
}
