package benchmark

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/coregx/relmap"
	"github.com/coregx/relmap/internal/testmodel"
)

type OrderRow struct {
	Title    string
	Total    float64
	Customer *relmap.Ref
}

func setupShop(b *testing.B) *relmap.DB {
	b.Helper()
	db, err := relmap.Open("sqlite", ":memory:", testmodel.Registry(), relmap.WithMaxOpenConns(1))
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	if err := testmodel.Load(context.Background(), db.SQLDB()); err != nil {
		b.Fatalf("Failed to load shop: %v", err)
	}
	err = db.Register(&relmap.Descriptor{
		Name:   "ordersOfCustomer",
		Entity: "Order",
		Results: []relmap.ResultSpec{
			{Path: "title"},
			{Path: "total", Order: "asc"},
			{Path: "customer"},
			{Path: "customer.address.city", Property: "city"},
		},
		Conditions: []relmap.ConditionDescriptor{
			{Path: "customer.name"},
			{Path: "customer.groups.name"},
			{Path: "total", Operator: ">"},
		},
	})
	if err != nil {
		b.Fatalf("Failed to register operation: %v", err)
	}
	return db
}

// BenchmarkExplain measures binding and rendering without execution.
func BenchmarkExplain(b *testing.B) {
	db := setupShop(b)
	defer db.Close()
	ctx := context.Background()

	b.Run("AllConditions", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _, _ = db.Explain(ctx, "ordersOfCustomer", []any{"Ada", "Group3", 1.0}, nil)
		}
	})

	b.Run("DroppedConditions", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _, _ = db.Explain(ctx, "ordersOfCustomer", []any{nil, nil, nil}, nil)
		}
	})
}

// BenchmarkQuery measures a full round trip including materialization.
func BenchmarkQuery(b *testing.B) {
	db := setupShop(b)
	defer db.Close()
	ctx := context.Background()

	b.Run("Records", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = db.Query(ctx, "ordersOfCustomer", nil, []any{"Ada", nil, nil}, nil)
		}
	})

	b.Run("Struct", func(b *testing.B) {
		binding := relmap.MustBindStruct(OrderRow{})
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = db.Query(ctx, "ordersOfCustomer", binding, []any{"Ada", nil, nil}, nil)
		}
	})
}

// BenchmarkFind measures id lookups, whose builders are cached per entity.
func BenchmarkFind(b *testing.B) {
	db := setupShop(b)
	defer db.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = db.Find(ctx, "Customer", int64(1))
	}
}

// BenchmarkRefGet measures resolving deferred relations in parallel.
func BenchmarkRefGet(b *testing.B) {
	db := setupShop(b)
	defer db.Close()
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			out, err := db.Query(ctx, "ordersOfCustomer", nil, []any{"Ada", nil, nil}, nil)
			if err != nil || len(out) == 0 {
				continue
			}
			rec, _ := relmap.As[relmap.Record](out[0])
			if ref, ok := rec["customer"].(*relmap.Ref); ok {
				_, _ = ref.Get(ctx)
			}
		}
	})
}
