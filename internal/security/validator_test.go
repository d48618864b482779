package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"orders", "order_ext", "_tmp", "public.orders", "Customer1"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "1orders", "orders; DROP TABLE x", "a.b.c", "na me", `"quoted"`}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrUnsafeIdentifier))
	}
}

func TestValidator_ValidateQuery(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateQuery(`SELECT "ord0"."title" AS "ord0.title" FROM "orders" AS "ord0" WHERE "ord0"."title" = $1`))

	err := v.ValidateQuery(`SELECT * FROM orders; DROP TABLE orders`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsafeStatement))

	assert.Error(t, v.ValidateQuery(`SELECT a FROM b UNION SELECT c FROM d`))
}

func TestValidator_Strict(t *testing.T) {
	v := NewValidator(WithStrict(true))

	assert.NoError(t, v.ValidateQuery(`SELECT "a" FROM "b" WHERE "a" = ?`))
	assert.Error(t, v.ValidateQuery(`SELECT "a" FROM "b" WHERE "a" = 'x'`))
}
