package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type audit struct {
	CreatedBy string `db:"createdBy"`
}

type order struct {
	audit
	ID         int64
	Title      string
	Total      float64
	Quantity   *int32
	Note       string `db:"-"`
	Attributes map[string]any
	internal   string
}

func TestBindStruct_Properties(t *testing.T) {
	b, err := BindStruct(&order{})
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"attributes", "createdBy", "id", "quantity", "title", "total"},
		b.Properties())
	assert.False(t, b.Has("note"))
	assert.False(t, b.Has("internal"))

	again, err := BindStruct(order{})
	require.NoError(t, err)
	assert.Same(t, b, again, "bindings are cached per type")
}

func TestStructBinding_SetGet(t *testing.T) {
	b := MustBindStruct(order{})
	obj := b.New()
	require.IsType(t, &order{}, obj)

	require.NoError(t, b.Set(obj, "id", int64(7)))
	require.NoError(t, b.Set(obj, "title", "first"))
	require.NoError(t, b.Set(obj, "total", 12), "int converts to float64")
	require.NoError(t, b.Set(obj, "quantity", int64(3)), "pointer fields are allocated")
	require.NoError(t, b.Set(obj, "createdBy", "alice"), "promoted fields are bound")
	require.NoError(t, b.Set(obj, "attributes", map[string]any{"color": "red"}))

	o := obj.(*order)
	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, "first", o.Title)
	assert.Equal(t, 12.0, o.Total)
	require.NotNil(t, o.Quantity)
	assert.Equal(t, int32(3), *o.Quantity)
	assert.Equal(t, "alice", o.CreatedBy)

	v, ok := b.Get(obj, "title")
	require.True(t, ok)
	assert.Equal(t, "first", v)

	require.NoError(t, b.Set(obj, "title", nil))
	assert.Empty(t, o.Title)
}

func TestStructBinding_Errors(t *testing.T) {
	b := MustBindStruct(order{})
	obj := b.New()

	err := b.Set(obj, "missing", 1)
	assert.True(t, errors.Is(err, ErrUnknownProperty))

	assert.Error(t, b.Set(obj, "title", 42), "numbers never become strings")
	assert.Error(t, b.Set(order{}, "title", "x"), "destination must be a pointer")

	_, err = BindStruct(42)
	assert.Error(t, err)
}

func TestRecordBinding(t *testing.T) {
	var b RecordBinding
	obj := b.New()
	require.NoError(t, b.Set(obj, "title", "x"))
	v, ok := b.Get(obj, "title")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, b.Has("anything"))
	assert.Error(t, b.Set(map[string]any{}, "x", 1))
}
