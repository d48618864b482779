package convert

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relmap/internal/meta"
)

func field(t meta.FieldType) *meta.Field {
	return &meta.Field{Name: "f", Column: "f", Type: t}
}

func TestDefault_ToStorage(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		typ   meta.FieldType
		input any
		want  any
	}{
		{"string passthrough", meta.TypeString, "order1", "order1"},
		{"bytes to string", meta.TypeString, []byte("abc"), "abc"},
		{"int widened", meta.TypeInt, 7, int64(7)},
		{"numeric string", meta.TypeInt64, "42", int64(42)},
		{"integral float", meta.TypeInt64, 3.0, int64(3)},
		{"float", meta.TypeFloat, float32(1.5), 1.5},
		{"int to float", meta.TypeFloat, 2, 2.0},
		{"bool text", meta.TypeBool, "yes", true},
		{"bool int", meta.TypeBool, int64(0), false},
		{"time", meta.TypeTime, ts, ts},
		{"time text", meta.TypeTime, "2024-03-01T12:00:00Z", ts},
		{"sql time text", meta.TypeTime, "2024-03-01 12:00:00", ts},
		{"uuid stored as text", meta.TypeUUID, id, id.String()},
		{"uuid text", meta.TypeUUID, id.String(), id.String()},
		{"json value", meta.TypeJSON, map[string]any{"a": 1}, `{"a":1}`},
		{"json text", meta.TypeJSON, `[1,2]`, `[1,2]`},
		{"any", meta.TypeAny, 5, 5},
		{"any bytes", meta.TypeAny, []byte("x"), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Default{}.ToStorage(tt.input, field(tt.typ))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefault_ToRuntime(t *testing.T) {
	id := uuid.New()

	got, err := Default{}.ToRuntime(int64(9), field(meta.TypeInt))
	require.NoError(t, err)
	assert.Equal(t, 9, got)

	got, err = Default{}.ToRuntime(id.String(), field(meta.TypeUUID))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = Default{}.ToRuntime([]byte(`{"color":"red"}`), field(meta.TypeJSON))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"color": "red"}, got)

	got, err = Default{}.ToRuntime([]byte("Ada"), field(meta.TypeString))
	require.NoError(t, err)
	assert.Equal(t, "Ada", got)

	got, err = Default{}.ToRuntime(nil, field(meta.TypeInt))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Default{}.ToRuntime("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestDefault_Errors(t *testing.T) {
	tests := []struct {
		typ   meta.FieldType
		input any
	}{
		{meta.TypeInt, "forty-two"},
		{meta.TypeInt, 1.5},
		{meta.TypeInt64, uint64(1 << 63)},
		{meta.TypeBool, "maybe"},
		{meta.TypeTime, "yesterday"},
		{meta.TypeUUID, "not-a-uuid"},
		{meta.TypeJSON, "{broken"},
		{meta.TypeString, struct{}{}},
		{meta.TypeFloat, true},
	}

	for _, tt := range tests {
		_, err := Default{}.ToStorage(tt.input, field(tt.typ))
		require.Error(t, err, "%s from %#v", tt.typ, tt.input)
		assert.True(t, errors.Is(err, ErrConversion))
	}
}
