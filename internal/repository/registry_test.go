package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/materialize"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/operation"
	"github.com/coregx/relmap/internal/statement"
	"github.com/coregx/relmap/internal/testmodel"
)

type Customer struct {
	ID      int64
	Name    string
	Email   *string
	Address *materialize.Ref
}

type Order struct {
	ID       int64
	Title    string
	Total    float64
	Created  time.Time
	Customer *materialize.Ref
}

type Item struct {
	ID       int64
	SKU      string `db:"sku"`
	Quantity int
	Order    *materialize.Ref
}

type Group struct {
	ID   int64
	Name string
}

func newShop(t *testing.T, opts ...Option) (*Registry, *meta.Registry) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, testmodel.Load(context.Background(), db))

	reg := testmodel.Registry()
	require.NoError(t, reg.Bind("Customer", meta.MustBindStruct(Customer{})))
	require.NoError(t, reg.Bind("Order", meta.MustBindStruct(Order{})))
	require.NoError(t, reg.Bind("Item", meta.MustBindStruct(Item{})))
	require.NoError(t, reg.Bind("Group", meta.MustBindStruct(Group{})))

	runner := statement.NewRunner(db, dialects.GetDialect("sqlite"))
	return New(reg, runner, opts...), reg
}

func object(t *testing.T, v any) *materialize.Object {
	t.Helper()
	o, ok := v.(*materialize.Object)
	require.True(t, ok, "expected *materialize.Object, got %T", v)
	return o
}

func TestResolveByID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newShop(t)

	v, err := repo.ResolveByID(ctx, "Customer", int64(1))
	require.NoError(t, err)
	o := object(t, v)
	assert.Equal(t, int64(1), o.ID)

	c, ok := materialize.As[*Customer](v)
	require.True(t, ok)
	assert.Equal(t, "Ada", c.Name)
	require.NotNil(t, c.Email)
	assert.Equal(t, "ada@example.com", *c.Email)
	require.NotNil(t, c.Address)
	assert.Equal(t, "Address", c.Address.Entity)
	assert.False(t, c.Address.Loaded())

	addr, err := c.Address.Get(ctx)
	require.NoError(t, err)
	rec, ok := materialize.Unwrap(addr).(meta.Record)
	require.True(t, ok)
	assert.Equal(t, "Berlin", rec["city"])

	country, ok := rec["country"].(*materialize.Ref)
	require.True(t, ok)
	code, err := country.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta.Record{"id": int64(1), "code": "DE"}, materialize.Unwrap(code))
}

func TestResolveByID_NullRelation(t *testing.T) {
	repo, _ := newShop(t)

	v, err := repo.ResolveByID(context.Background(), "Customer", int64(2))
	require.NoError(t, err)
	c, _ := materialize.As[*Customer](v)
	require.NotNil(t, c)
	assert.Nil(t, c.Email)
	assert.Nil(t, c.Address)
}

func TestResolveByID_Errors(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	_, err := repo.ResolveByID(ctx, "Customer", int64(99))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.ResolveByID(ctx, "Invoice", int64(1))
	assert.ErrorIs(t, err, meta.ErrUnknownEntity)
}

func TestResolveByID_CachesLookups(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	for _, id := range []int64{10, 11, 12} {
		_, err := repo.ResolveByID(ctx, "Order", id)
		require.NoError(t, err)
	}
	stats := repo.lookups.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestLoadRelation_SingleValued(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	v, err := repo.ResolveByID(ctx, "Order", int64(10))
	require.NoError(t, err)
	o := object(t, v)

	order, _ := materialize.As[*Order](v)
	assert.Equal(t, "order1", order.Title)
	assert.Equal(t, 25.5, order.Total)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), order.Created.UTC())

	customer, err := o.Load(ctx, "customer")
	require.NoError(t, err)
	c, _ := materialize.As[*Customer](customer)
	require.NotNil(t, c)
	assert.Equal(t, "Ada", c.Name)

	coupon, err := o.Load(ctx, "coupon")
	require.NoError(t, err)
	assert.Equal(t, meta.Record{"id": int64(1), "code": "WELCOME"}, materialize.Unwrap(coupon))

	again, err := o.Load(ctx, "customer")
	require.NoError(t, err)
	assert.Same(t, customer, again)
}

func TestLoadRelation_Absent(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	coupon, err := repo.LoadRelation(ctx, "Order", int64(11), "coupon")
	require.NoError(t, err)
	assert.Nil(t, coupon)

	profile, err := repo.LoadRelation(ctx, "Customer", int64(2), "profile")
	require.NoError(t, err)
	assert.Nil(t, profile)

	profile, err = repo.LoadRelation(ctx, "Customer", int64(1), "profile")
	require.NoError(t, err)
	rec, _ := materialize.Unwrap(profile).(meta.Record)
	assert.Equal(t, "mathematician", rec["bio"])
}

func TestLoadRelation_Collections(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	t.Run("mapped one-to-many", func(t *testing.T) {
		v, err := repo.LoadRelation(ctx, "Customer", int64(1), "orders")
		require.NoError(t, err)
		orders := v.([]any)
		require.Len(t, orders, 2)
		var titles []string
		for _, o := range orders {
			order, _ := materialize.As[*Order](o)
			titles = append(titles, order.Title)
		}
		assert.Equal(t, []string{"order1", "order2"}, titles)
	})

	t.Run("items keep their owner reference", func(t *testing.T) {
		v, err := repo.LoadRelation(ctx, "Order", int64(10), "items")
		require.NoError(t, err)
		items := v.([]any)
		require.Len(t, items, 2)
		item, _ := materialize.As[*Item](items[0])
		assert.Equal(t, "SKU-1", item.SKU)
		assert.Equal(t, 2, item.Quantity)
		require.NotNil(t, item.Order)
		assert.Equal(t, int64(10), item.Order.ID)
	})

	t.Run("owned many-to-many through its inverse", func(t *testing.T) {
		v, err := repo.LoadRelation(ctx, "Customer", int64(2), "groups")
		require.NoError(t, err)
		groups := v.([]any)
		require.Len(t, groups, 2)
		g1, _ := materialize.As[*Group](groups[0])
		g3, _ := materialize.As[*Group](groups[1])
		assert.Equal(t, "Group1", g1.Name)
		assert.Equal(t, "Group3", g3.Name)
	})

	t.Run("empty", func(t *testing.T) {
		v, err := repo.LoadRelation(ctx, "Customer", int64(3), "orders")
		require.NoError(t, err)
		assert.Empty(t, v)
	})
}

func TestLoadRelation_Errors(t *testing.T) {
	repo, _ := newShop(t)
	ctx := context.Background()

	_, err := repo.LoadRelation(ctx, "Order", int64(10), "notes")
	assert.ErrorIs(t, err, ErrNoInverse)

	_, err = repo.LoadRelation(ctx, "Order", int64(10), "title")
	assert.Error(t, err)
}

const operations = `
operations:
  - name: customerOrders
    entity: Order
    limit: 1
    results:
      - {path: title}
      - {path: total, order: desc}
      - {path: customer, property: customer}
    conditions:
      - {path: customer.name}
`

func TestQuery(t *testing.T) {
	ctx := context.Background()
	set := operation.NewSet(testmodel.Registry())
	require.NoError(t, set.LoadYAML(strings.NewReader(operations)))
	repo, _ := newShop(t, WithOperations(set))

	type summary struct {
		Title    string
		Total    float64
		Customer *materialize.Ref
	}
	out, err := repo.Query(ctx, "customerOrders", meta.MustBindStruct(summary{}), []any{"Ada"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1, "limit applies")

	o := object(t, out[0])
	assert.Equal(t, int64(10), o.ID)
	s, _ := materialize.As[*summary](out[0])
	assert.Equal(t, "order1", s.Title)

	c, err := s.Customer.Get(ctx)
	require.NoError(t, err)
	customer, _ := materialize.As[*Customer](c)
	assert.Equal(t, "Ada", customer.Name)

	records, err := repo.Query(ctx, "customerOrders", nil, []any{"Bob"}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "order3", materialize.Unwrap(records[0]).(meta.Record)["title"])

	_, err = repo.Query(ctx, "missing", nil, nil, nil)
	assert.ErrorIs(t, err, operation.ErrUnknownOperation)
}

func TestQuery_NoOperations(t *testing.T) {
	repo, _ := newShop(t)
	_, err := repo.Query(context.Background(), "customerOrders", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoOperations)
}
