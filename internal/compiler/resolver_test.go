package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relmap/internal/meta"
)

func TestResolve_AliasStability(t *testing.T) {
	b, _ := newBuilder(t, "Order")

	name, err := b.AddResultField("customer.name", "customerName", "", None)
	require.NoError(t, err)
	email, err := b.AddResultField("customer.email", "customerEmail", "", None)
	require.NoError(t, err)

	assert.Same(t, name.Table, email.Table, "same path reuses the join")
	assert.Equal(t, "cus1", name.Table.Alias)

	city, err := b.AddResultField("customer.address.city", "city", "", None)
	require.NoError(t, err)
	assert.Same(t, name.Table, city.Table.Parent, "a longer path extends the chain")
	assert.Equal(t, []string{"cus1", "add2"}, []string{city.Table.Chain()[0].Alias, city.Table.Chain()[1].Alias})

	again, err := b.AddCondition(ConditionSpec{Path: "customer.address.city", Param: 0})
	require.NoError(t, err)
	assert.Same(t, city.Table, again.Table)
}

func TestResolve_NullabilityIsMonotonic(t *testing.T) {
	b, _ := newBuilder(t, "Order")

	rf, err := b.AddResultField("customer.address.country.code", "country", "", None)
	require.NoError(t, err)

	customer, _ := b.Table("customer")
	address, _ := b.Table("customer.address")
	country, _ := b.Table("customer.address.country")

	assert.False(t, customer.Nullable)
	assert.True(t, address.Nullable, "address is optional")
	assert.True(t, country.Nullable, "country inherits the optional hop")
	assert.Same(t, country, rf.Table)

	rec := &recorder{}
	require.NoError(t, b.Bind(ctx(), rec, nil, nil))
	require.Len(t, rec.joins, 3)
	assert.False(t, rec.joins[0].Nullable)
	assert.True(t, rec.joins[1].Nullable)
	assert.True(t, rec.joins[2].Nullable)
}

func TestResolve_JoinShapes(t *testing.T) {
	t.Run("foreign key", func(t *testing.T) {
		b, _ := newBuilder(t, "Order")
		_, err := b.AddResultField("customer.name", "n", "", None)
		require.NoError(t, err)

		c, _ := b.Table("customer")
		assert.Equal(t, Join{FromAlias: "ord0", FromColumn: "customer_id", ToAlias: "cus1", ToColumn: "id", ToTable: "customers"}, c.Join())
	})

	t.Run("inverse foreign key", func(t *testing.T) {
		b, _ := newBuilder(t, "Customer")
		_, err := b.AddResultField("profile.bio", "bio", "", None)
		require.NoError(t, err)

		p, _ := b.Table("profile")
		assert.Equal(t, Join{FromAlias: "cus0", FromColumn: "id", ToAlias: "pro1", ToColumn: "customer_id", ToTable: "profiles"}, p.Join())
	})

	t.Run("join table", func(t *testing.T) {
		b, _ := newBuilder(t, "Order")
		_, err := b.AddResultField("coupon.code", "coupon", "", None)
		require.NoError(t, err)

		c, _ := b.Table("coupon")
		chain := c.Chain()
		require.Len(t, chain, 2)
		assert.Equal(t, Join{FromAlias: "ord0", FromColumn: "id", ToAlias: "ord1", ToColumn: "order_id", ToTable: "order_coupons", Nullable: true}, chain[0].Join())
		assert.Equal(t, Join{FromAlias: "ord1", FromColumn: "coupon_id", ToAlias: "cou2", ToColumn: "id", ToTable: "coupons", Nullable: true}, chain[1].Join())
		assert.Nil(t, chain[0].Entity)
	})

	t.Run("extension", func(t *testing.T) {
		b, _ := newBuilder(t, "Order")
		rf, err := b.AddResultField("ext.color", "@color", "", None)
		require.NoError(t, err)

		assert.True(t, rf.Table.Extension)
		assert.Equal(t, Join{FromAlias: "ord0", FromColumn: "id", ToAlias: "ord1", ToColumn: "order_id", ToTable: "order_ext", Nullable: true}, rf.Table.Join())
		assert.True(t, rf.Field.Dynamic)
		assert.Equal(t, "color", rf.Field.Column)
		assert.Equal(t, "Order", rf.Table.Owner().Name)

		size, err := b.AddResultField("ext.size", "@size", "", None)
		require.NoError(t, err)
		assert.Same(t, rf.Table, size.Table, "one extension join per path")
	})
}

func TestResolve_ManyValuedPathsNeverInline(t *testing.T) {
	tests := []struct {
		name       string
		entity     string
		path       string
		prefix     string
		outerAlias string
		root       string
		column     string
	}{
		{"mapped one-to-many", "Order", "items.sku", "items", "ord0", "items", "order_id"},
		{"owned one-to-many", "Order", "notes.text", "notes", "ord0", "notes", "order_id"},
		{"owned many-to-many", "Customer", "groups.name", "groups", "cus0", "customer_groups", "customer_id"},
		{"mapped many-to-many", "Group", "customers.name", "customers", "gro0", "customer_groups", "group_id"},
		{"behind a join", "Order", "customer.orders.title", "customer.orders", "cus1", "orders", "customer_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBuilder(t, tt.entity)

			c, err := b.AddCondition(ConditionSpec{Path: tt.path, Param: 0})
			require.NoError(t, err)
			require.NotNil(t, c.Subquery)
			assert.Nil(t, c.Table)

			_, inline := b.Table(tt.prefix)
			assert.False(t, inline)

			sq, ok := b.Subquery(tt.prefix)
			require.True(t, ok)
			assert.Same(t, c.Subquery, sq)
			assert.Equal(t, tt.outerAlias, sq.Outer.Alias)
			assert.Equal(t, "id", sq.OuterField.Column)
			assert.Equal(t, tt.root, sq.Root.Table)
			assert.Equal(t, tt.column, sq.Column)

			_, err = b.AddResultField(tt.path, "x", "", None)
			assert.True(t, errors.Is(err, ErrManyValuedProjection))
		})
	}
}

func TestResolve_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		want error
	}{
		{"unknown field", "subject", ErrUnknownField},
		{"unknown nested field", "customer.nickname", ErrUnknownField},
		{"empty path", "", ErrUnknownField},
		{"scalar traversal", "title.length", ErrNotRelation},
		{"relation terminal", "customer", ErrRelationTerminal},
		{"extension terminal", "ext", ErrExtensionPlacement},
		{"extension too deep", "ext.color.hue", ErrExtensionPlacement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBuilder(t, "Order")
			_, err := b.AddCondition(ConditionSpec{Path: tt.path, Param: 0})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())

			var cfg *ConfigError
			require.True(t, errors.As(err, &cfg))
			assert.Equal(t, "test", cfg.Operation)
			assert.Equal(t, tt.path, cfg.Path)
		})
	}
}

func TestResolve_InvalidRelation(t *testing.T) {
	reg := meta.NewRegistry().MustRegister(
		meta.NewEntity("A", "a", &meta.Field{Name: "id", Column: "id"},
			&meta.Field{Name: "b", Relation: &meta.ForeignConstraint{
				Target: "B", Cardinality: meta.ManyToOne, Ownership: meta.Mapped, MappedBy: "as",
			}},
		),
		meta.NewEntity("B", "b", &meta.Field{Name: "id", Column: "id"},
			&meta.Field{Name: "as", Column: "a_id", Relation: &meta.ForeignConstraint{
				Target: "A", Cardinality: meta.OneToMany,
			}},
			&meta.Field{Name: "name", Column: "name"},
		),
	)
	a, _ := reg.Entity("A")

	b := New("broken", a, reg)
	_, err := b.AddCondition(ConditionSpec{Path: "b.name", Param: 0})
	assert.True(t, errors.Is(err, ErrInvalidRelation))
}

func TestResolve_JoinTableShortcut(t *testing.T) {
	b, _ := newBuilder(t, "Customer")

	c, err := b.AddCondition(ConditionSpec{Path: "groups.id", Operator: In, Param: 0})
	require.NoError(t, err)

	inner := c.Subquery.Builder().Conditions()
	require.Len(t, inner, 1)
	assert.Same(t, c.Subquery.Root, inner[0].Table, "the target id is read from the join table")
	assert.Equal(t, "group_id", inner[0].Field.Column)

	rec := &recorder{}
	require.NoError(t, b.Bind(ctx(), rec, []any{[]int64{1, 2}}, nil))
	require.Len(t, rec.conditions, 1)
	s := sub(t, rec.conditions[0])
	assert.Empty(t, s.joins)
	assert.Equal(t, []any{int64(1), int64(2)}, s.conditions[0].Value)
}
