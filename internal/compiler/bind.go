package compiler

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/tracer"
)

// binding is the state of one Bind invocation. It is never shared between
// invocations.
type binding struct {
	b      *Builder
	params []any
	env    expr.Env

	used    map[string]bool
	codes   map[string]bool
	emitted int
	dropped int
}

func (b *Builder) newBinding(params []any, env expr.Env) *binding {
	return &binding{
		b:      b,
		params: params,
		env:    env,
		used:   map[string]bool{b.root.Alias: true},
		codes:  make(map[string]bool),
	}
}

// Bind emits the operation into sink for one invocation. params are the
// runtime arguments indexed by ConditionSpec.Param; env is the context of
// default-value expressions. Conditions whose value resolves to null are
// dropped unless they match null and were declared nullable.
func (b *Builder) Bind(ctx context.Context, sink Sink, params []any, env expr.Env) error {
	_, span := b.tracer.StartSpan(ctx, "relmap.bind")
	defer span.End()

	st := b.newBinding(params, env)
	err := st.emit(sink)

	tracer.AddBindAttributes(span, &tracer.BindMetadata{
		Operation: b.operation,
		Entity:    b.entity.Name,
		Emitted:   st.emitted,
		Dropped:   st.dropped,
		Joins:     len(st.used) - 1,
		Error:     err,
	})
	return err
}

func (st *binding) emit(sink Sink) error {
	b := st.b
	sink.SetRootTable(b.root.Alias, b.root.Table)

	for _, rf := range b.results {
		if st.codes[rf.Code] {
			continue
		}
		st.codes[rf.Code] = true
		st.joins(sink, rf.Table)
		sink.AddResultColumn(rf.Table.Alias, rf.Field.Column, rf.Code)
	}

	if err := st.conditions(sink); err != nil {
		return err
	}

	for _, ob := range b.orderBy {
		st.joins(sink, ob.Field.Table)
		sink.AddOrderBy(ob.Field.Table.Alias, ob.Field.Field.Column, ob.Field.Code, ob.Direction)
	}
	return nil
}

func (st *binding) conditions(sink Sink) error {
	for _, c := range st.b.conditions {
		p, ok, err := st.predicate(sink, c)
		if err != nil {
			return err
		}
		if ok {
			sink.AddCondition(p)
		}
	}
	return nil
}

// joins emits the join chain of t, skipping aliases already emitted.
func (st *binding) joins(sink Sink, t *TableInfo) {
	for _, n := range t.Chain() {
		if st.used[n.Alias] {
			continue
		}
		st.used[n.Alias] = true
		sink.AddJoin(n.Join())
	}
}

// predicate compiles c for this invocation. ok is false when c is dropped.
func (st *binding) predicate(sink Sink, c *Condition) (Predicate, bool, error) {
	switch {
	case c.Group != nil:
		return st.group(sink, c)
	case c.Subquery != nil:
		return st.subquery(sink, c)
	}

	p := Predicate{
		Alias:      c.Table.Alias,
		Column:     c.Field.Column,
		Operator:   c.Operator,
		Combinator: c.Combinator,
		IgnoreCase: c.IgnoreCase,
	}

	if !c.Operator.Valueless() {
		v, err := st.value(c)
		if err != nil {
			return Predicate{}, false, err
		}
		if v == nil && !(c.Operator.MatchesNull() && c.Nullable) {
			st.dropped++
			st.b.logger.Debug("condition dropped",
				"operation", st.b.operation,
				"path", st.b.qualify(c.Path),
				"reason", "null value",
			)
			return Predicate{}, false, nil
		}
		p.Value = v
	}

	st.emitted++
	st.joins(sink, c.Table)
	return p, true, nil
}

// group folds the surviving children of c: the first becomes the head and
// the rest attach under it. A group with no survivors is dropped.
func (st *binding) group(sink Sink, c *Condition) (Predicate, bool, error) {
	var head *Predicate
	for _, child := range c.Group {
		p, ok, err := st.predicate(sink, child)
		if err != nil {
			return Predicate{}, false, err
		}
		if !ok {
			continue
		}
		if head == nil {
			// A folded group keeps its own parentheses.
			if p.IsGroup() || len(p.Grouped) > 0 {
				p = Predicate{Grouped: []Predicate{p}}
			}
			head = &p
			continue
		}
		head.Grouped = append(head.Grouped, p)
	}
	if head == nil {
		return Predicate{}, false, nil
	}
	head.Combinator = c.Combinator
	return *head, true, nil
}

// subquery binds the inner builder of c into a fresh sink. The subquery is
// dropped when none of its conditions survive.
func (st *binding) subquery(sink Sink, c *Condition) (Predicate, bool, error) {
	sq := c.Subquery
	inner := sink.Subquery()

	child := sq.builder.newBinding(st.params, st.env)
	inner.SetRootTable(sq.Root.Alias, sq.Root.Table)
	inner.AddResultColumn(sq.Root.Alias, sq.Column, sq.Root.Alias+"."+sq.Column)
	if err := child.conditions(inner); err != nil {
		return Predicate{}, false, err
	}

	st.dropped += child.dropped
	if child.emitted == 0 {
		st.b.logger.Debug("subquery dropped",
			"operation", st.b.operation,
			"path", sq.Path,
			"reason", "no condition applies",
		)
		return Predicate{}, false, nil
	}
	st.emitted += child.emitted

	st.joins(sink, sq.Outer)
	return Predicate{
		Alias:      sq.Outer.Alias,
		Column:     sq.OuterField.Column,
		Operator:   In,
		Combinator: c.Combinator,
		Subquery:   inner,
	}, true, nil
}

// value resolves and converts the bound value of c.
func (st *binding) value(c *Condition) (any, error) {
	b := st.b
	path := b.qualify(c.Path)
	conv := b.converter

	if c.Param < 0 {
		raw, err := b.evaluator.Eval(c.Default, st.env)
		if err != nil {
			return nil, execErr(b.operation, path, ErrDefaultValue, err)
		}
		return st.convert(c, path, raw, func(v any, f *meta.Field) (any, error) {
			rt, err := conv.ToRuntime(v, f)
			if err != nil {
				return nil, err
			}
			return conv.ToStorage(rt, f)
		})
	}

	if c.Param >= len(st.params) {
		return nil, execErr(b.operation, path, ErrMissingParam,
			fmt.Errorf("index %d, %d supplied", c.Param, len(st.params)))
	}
	raw := st.params[c.Param]
	if c.accessor != nil {
		var err error
		raw, err = property(raw, c.accessor)
		if err != nil {
			return nil, execErr(b.operation, path, ErrPropertyAccess, fmt.Errorf("%s: %w", c.Property, err))
		}
	}
	return st.convert(c, path, raw, conv.ToStorage)
}

// convert applies fn to v, element-wise for list operators.
func (st *binding) convert(c *Condition, path string, v any, fn func(any, *meta.Field) (any, error)) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	for rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr; rv = rv.Elem() {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
	}

	if !c.Operator.Multi() {
		out, err := fn(v, c.Field)
		if err != nil {
			return nil, execErr(st.b.operation, path, ErrConversion, err)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		rv = reflect.ValueOf([]any{v})
	}
	out := make([]any, rv.Len())
	for i := range out {
		elem, err := fn(rv.Index(i).Interface(), c.Field)
		if err != nil {
			return nil, execErr(st.b.operation, path, ErrConversion, fmt.Errorf("element %d: %w", i, err))
		}
		out[i] = elem
	}
	return out, nil
}

var errNotComposite = errors.New("value has no properties")

// property reads a dotted property path from maps and structs. A nil value
// along the way yields nil.
func property(v any, path []string) (any, error) {
	for _, name := range path {
		if isNil(v) {
			return nil, nil
		}

		switch m := v.(type) {
		case map[string]any:
			val, ok := m[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", meta.ErrUnknownProperty, name)
			}
			v = val
			continue
		case meta.Record:
			val, ok := m[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", meta.ErrUnknownProperty, name)
			}
			v = val
			continue
		}

		rv := reflect.ValueOf(v)
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: %T", errNotComposite, v)
		}
		sb, err := meta.BindStruct(rv.Type())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		val, ok := sb.Get(ptr.Interface(), name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", meta.ErrUnknownProperty, rv.Type().Name(), name)
		}
		v = val
	}
	return v, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
