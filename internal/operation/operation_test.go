package operation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/testmodel"
)

const shopOperations = `
operations:
  - name: ordersOfCustomer
    entity: Order
    limit: 10
    results:
      - {path: title}
      - {path: customer.name, property: customerName}
      - {path: total, order: desc}
    conditions:
      - {path: customer.name}
      - {path: total, operator: ">", default: "minTotal"}
      - combinator: or
        group:
          - {path: title, operator: starts_with, ignore_case: true}
          - {path: customer.email, operator: eq, combinator: or, nullable: true}
  - name: customerNames
    entity: Customer
    results:
      - {path: name, direct: true, order: asc}
    conditions:
      - {path: groups.name, operator: in, param: 2}
      - {path: email, operator: is_not_null}
`

func TestLoadYAML(t *testing.T) {
	set := NewSet(testmodel.Registry())
	require.NoError(t, set.LoadYAML(strings.NewReader(shopOperations)))
	assert.Equal(t, []string{"customerNames", "ordersOfCustomer"}, set.Names())

	op, err := set.Get("ordersOfCustomer")
	require.NoError(t, err)
	assert.Equal(t, 3, op.Params, "customer.name, title and customer.email take arguments")
	assert.Equal(t, 10, op.Limit)

	b := op.Builder
	require.Len(t, b.Results(), 3)
	assert.Equal(t, "customerName", b.Results()[1].Property)
	require.Len(t, b.OrderBy(), 1)
	assert.Equal(t, compiler.Desc, b.OrderBy()[0].Direction)

	conds := b.Conditions()
	require.Len(t, conds, 3)
	assert.Equal(t, 0, conds[0].Param)
	assert.Equal(t, -1, conds[1].Param)
	assert.NotNil(t, conds[1].Default)
	assert.Equal(t, compiler.Gt, conds[1].Operator)
	require.True(t, conds[2].IsGroup())
	assert.Equal(t, compiler.Or, conds[2].Combinator)
	assert.Equal(t, 1, conds[2].Group[0].Param)
	assert.True(t, conds[2].Group[0].IgnoreCase)
	assert.Equal(t, 2, conds[2].Group[1].Param)
	assert.True(t, conds[2].Group[1].Nullable)

	names, err := set.Get("customerNames")
	require.NoError(t, err)
	assert.Equal(t, 3, names.Params, "explicit param 2 needs three arguments")
	assert.NotNil(t, names.Builder.DirectValue())
	require.Len(t, names.Builder.OrderBy(), 1)
	assert.Equal(t, compiler.Asc, names.Builder.OrderBy()[0].Direction)
}

func TestCompiledOperationBinds(t *testing.T) {
	set := NewSet(testmodel.Registry())
	require.NoError(t, set.LoadYAML(strings.NewReader(shopOperations)))
	op, err := set.Get("ordersOfCustomer")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var joins []compiler.Join
			sink := &joinRecorder{joins: &joins}
			err := op.Builder.Bind(context.Background(), sink, []any{"Ada", nil, nil}, map[string]any{"minTotal": 5})
			assert.NoError(t, err)
			assert.Len(t, joins, 1)
		}()
	}
	wg.Wait()
}

type joinRecorder struct {
	compiler.Sink
	joins *[]compiler.Join
}

func (r *joinRecorder) SetRootTable(string, string) {}

func (r *joinRecorder) AddJoin(j compiler.Join) { *r.joins = append(*r.joins, j) }

func (r *joinRecorder) AddResultColumn(string, string, string) {}

func (r *joinRecorder) AddCondition(compiler.Predicate) {}

func (r *joinRecorder) AddOrderBy(string, string, string, compiler.Direction) {}

func TestCompile_Errors(t *testing.T) {
	reg := testmodel.Registry()
	param := -2

	tests := []struct {
		name     string
		d        Descriptor
		sentinel error
	}{
		{"missing name", Descriptor{Entity: "Order"}, ErrDescriptor},
		{"unknown entity", Descriptor{Name: "x", Entity: "Invoice"}, ErrDescriptor},
		{"unknown field", Descriptor{Name: "x", Entity: "Order", Results: []ResultSpec{{Path: "colour"}}}, compiler.ErrUnknownField},
		{"bad order", Descriptor{Name: "x", Entity: "Order", Results: []ResultSpec{{Path: "title", Order: "up"}}}, ErrDescriptor},
		{"direct with property", Descriptor{Name: "x", Entity: "Order", Results: []ResultSpec{{Path: "title", Property: "t", Direct: true}}}, ErrDescriptor},
		{"bad operator", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Path: "title", Operator: "~"}}}, ErrDescriptor},
		{"bad combinator", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Path: "title", Combinator: "xor"}}}, ErrDescriptor},
		{"negative param", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Path: "title", Param: &param}}}, ErrDescriptor},
		{"empty group", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Group: []ConditionSpec{}}}}, ErrDescriptor},
		{"relation terminal", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Path: "customer"}}}, compiler.ErrRelationTerminal},
		{"unknown order property", Descriptor{Name: "x", Entity: "Order", OrderBy: []OrderSpec{{Property: "title"}}}, compiler.ErrUnknownOrderProperty},
		{"bad default", Descriptor{Name: "x", Entity: "Order", Conditions: []ConditionSpec{{Path: "title", Default: "1 +"}}}, compiler.ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Compile(&tt.d, reg)
			assert.Nil(t, b)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestCompile_ConfigErrorCarriesOperation(t *testing.T) {
	_, err := Compile(&Descriptor{
		Name:    "broken",
		Entity:  "Order",
		Results: []ResultSpec{{Path: "customer.colour"}},
	}, testmodel.Registry())

	var cfg *compiler.ConfigError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "broken", cfg.Operation)
}

func TestSet_Duplicates(t *testing.T) {
	set := NewSet(testmodel.Registry())
	d := &Descriptor{Name: "titles", Entity: "Order", Results: []ResultSpec{{Path: "title"}}}
	_, err := set.Add(d)
	require.NoError(t, err)
	_, err = set.Add(d)
	assert.ErrorIs(t, err, ErrDuplicateOperation)

	_, err = set.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestSet_LoadIsAtomic(t *testing.T) {
	set := NewSet(testmodel.Registry())
	err := set.LoadYAML(strings.NewReader(`
operations:
  - name: good
    entity: Order
    results: [{path: title}]
  - name: bad
    entity: Order
    results: [{path: nope}]
`))
	require.Error(t, err)
	assert.Empty(t, set.Names(), "a failing document registers nothing")

	err = set.LoadYAML(strings.NewReader("operations:\n  - name: x\n    entiti: Order\n"))
	assert.ErrorContains(t, err, "decode operations")
}
