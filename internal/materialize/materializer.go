// Package materialize turns flat result rows back into typed objects:
// scalars, registered entities and projections, with deferred proxies for
// relations and bags for dynamic attributes.
package materialize

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/convert"
	"github.com/coregx/relmap/internal/meta"
)

// Materialization errors.
var (
	// ErrMissingProxyID is returned when a result that must be backed by a
	// proxy carries no id.
	ErrMissingProxyID = errors.New("result has no id to back its proxy")
	// ErrUnboundProperty is returned when a result property does not exist on
	// the destination type.
	ErrUnboundProperty = errors.New("result property not bound on destination")
)

// EntityResolver identifies bindings of registered entity types.
type EntityResolver interface {
	EntityFor(b meta.Binding) (*meta.Entity, bool)
}

// Option is a functional option for configuring a Materializer.
type Option func(*Materializer)

// WithRepository sets the repository used by proxies.
func WithRepository(r Repository) Option {
	return func(m *Materializer) {
		m.repo = r
	}
}

// WithConverter sets the type conversion service.
func WithConverter(c convert.Service) Option {
	return func(m *Materializer) {
		if c != nil {
			m.converter = c
		}
	}
}

// WithEntities lets the materializer recognize entity destinations.
func WithEntities(r EntityResolver) Option {
	return func(m *Materializer) {
		m.entities = r
	}
}

// slot is one result field with its conversion descriptor, prepared once.
type slot struct {
	rf    *compiler.ResultField
	field *meta.Field
	// toHolder routes extension values into the entity's attribute map.
	toHolder bool
}

// Materializer converts rows of one compiled operation into values of one
// destination binding. It is safe for concurrent use.
type Materializer struct {
	builder   *compiler.Builder
	target    meta.Binding
	shape     compiler.Shape
	entity    *meta.Entity
	holder    string
	slots     []slot
	hidden    *slot
	repo      Repository
	converter convert.Service
	entities  EntityResolver
}

// New prepares a materializer for rows produced by b. The shape and every
// property accessor are resolved here, not per row.
func New(b *compiler.Builder, target meta.Binding, opts ...Option) (*Materializer, error) {
	if target == nil {
		target = meta.RecordBinding{}
	}
	m := &Materializer{
		builder:   b,
		target:    target,
		entity:    b.Entity(),
		converter: convert.Default{},
	}
	for _, opt := range opts {
		opt(m)
	}

	entityTarget := false
	if m.entities != nil {
		if e, ok := m.entities.EntityFor(target); ok && e.Name == b.Entity().Name {
			entityTarget = true
		}
	}
	m.shape = b.Shape(entityTarget)

	if ext := m.entity.Extension; ext != nil && ext.Holder != "" && m.shape == compiler.ShapeEntity && target.Has(ext.Holder) {
		m.holder = ext.Holder
	}

	for _, rf := range b.Results() {
		s := slot{rf: rf, field: typed(rf)}
		switch rf.Kind {
		case compiler.HiddenID:
			hidden := s
			m.hidden = &hidden
			continue
		case compiler.Scalar, compiler.Relation:
			if m.shape != compiler.ShapeScalar && !target.Has(rf.Property) {
				return nil, fmt.Errorf("%w: %s.%s (%s)", ErrUnboundProperty, b.Operation(), rf.Property, rf.Path)
			}
		case compiler.Extension:
			s.toHolder = m.holder != "" && rf.Table.Owner() == m.entity && !rf.IsDirect()
		}
		m.slots = append(m.slots, s)
	}
	return m, nil
}

// typed returns the conversion descriptor of rf: its field with the declared
// result type.
func typed(rf *compiler.ResultField) *meta.Field {
	f := *rf.Field
	if rf.Type != "" {
		f.Type = rf.Type
	}
	return &f
}

// Shape returns the materialization strategy.
func (m *Materializer) Shape() compiler.Shape {
	return m.shape
}

// Materialize converts one row.
func (m *Materializer) Materialize(row compiler.Row) (any, error) {
	if m.shape == compiler.ShapeScalar {
		direct := m.builder.DirectValue()
		return m.value(row, direct, typed(direct))
	}

	obj := m.target.New()
	var id any
	var dynamic, attrs map[string]any

	if m.hidden != nil {
		v, err := m.value(row, m.hidden.rf, m.hidden.field)
		if err != nil {
			return nil, err
		}
		id = v
	}

	for _, s := range m.slots {
		v, err := m.value(row, s.rf, s.field)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}

		switch s.rf.Kind {
		case compiler.Scalar:
			err = m.target.Set(obj, s.rf.Property, v)
		case compiler.Relation:
			err = m.target.Set(obj, s.rf.Property, NewRef(s.rf.Target(), v, m.repo))
		case compiler.Extension:
			if s.toHolder {
				attrs = put(attrs, s.rf.Property, v)
			} else {
				dynamic = put(dynamic, s.rf.Path, v)
			}
		case compiler.AdHoc:
			dynamic = put(dynamic, s.rf.Property, v)
		}
		if err != nil {
			return nil, fmt.Errorf("materialize %s.%s: %w", m.builder.Operation(), s.rf.Property, err)
		}
	}

	if attrs != nil {
		if err := m.target.Set(obj, m.holder, attrs); err != nil {
			return nil, fmt.Errorf("materialize %s.%s: %w", m.builder.Operation(), m.holder, err)
		}
	}

	switch m.shape {
	case compiler.ShapeEntity:
		if id == nil {
			id, _ = m.target.Get(obj, m.entity.ID.Name)
			if isZero(id) {
				id = nil
			}
		}
		return m.object(obj, id, dynamic), nil
	case compiler.ShapeProjectionWithExtensions:
		if id == nil {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissingProxyID, m.builder.Operation(), m.hidden.rf.Code)
		}
		return m.object(obj, id, dynamic), nil
	case compiler.ShapeProjection:
		if dynamic != nil {
			return m.object(obj, nil, dynamic), nil
		}
		return obj, nil
	}
	return nil, fmt.Errorf("materialize %s: unsupported shape %s", m.builder.Operation(), m.shape)
}

// MaterializeAll converts every row.
func (m *Materializer) MaterializeAll(rows []compiler.Row) ([]any, error) {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := m.Materialize(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Materializer) object(obj, id any, dynamic map[string]any) *Object {
	return &Object{
		Value:   obj,
		Entity:  m.entity,
		ID:      id,
		Dynamic: dynamic,
		repo:    m.repo,
	}
}

func (m *Materializer) value(row compiler.Row, rf *compiler.ResultField, f *meta.Field) (any, error) {
	raw, ok := row[rf.Code]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := m.converter.ToRuntime(raw, f)
	if err != nil {
		return nil, fmt.Errorf("materialize %s.%s: %w", m.builder.Operation(), rf.Code, err)
	}
	return v, nil
}

func put(m map[string]any, key string, v any) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[key] = v
	return m
}

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}
