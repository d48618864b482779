// Package compiler turns an operation declared against the entity graph into
// a reusable compiled form: the joins its paths require, its conditions, its
// projected results and its ordering. A compiled Builder is bound once per
// invocation into a Sink.
package compiler

import (
	"fmt"
	"strings"

	"github.com/coregx/relmap/internal/convert"
	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/tracer"
)

// Builder is the compiled form of one operation on one entity.
//
// Registration (AddCondition, AddResultField, AddOrderBy) is single-threaded.
// Afterwards the builder is read-only and Bind may run concurrently.
// Per-call variants are derived with Clone.
type Builder struct {
	operation string
	entity    *meta.Entity
	provider  meta.Provider

	aliases *AliasAllocator
	// root is the table the statement selects from; start is where path
	// resolution begins. They differ only for subqueries rooted at a join table.
	root  *TableInfo
	start *TableInfo
	// prefix is the outer path of a subquery builder.
	prefix string

	paths      map[string]*TableInfo
	subqueries map[string]*Subquery

	conditions []*Condition
	results    []*ResultField
	orderBy    []*OrderBy
	direct     *ResultField
	hiddenID   *ResultField

	logger    logger.Logger
	tracer    tracer.Tracer
	converter convert.Service
	evaluator Evaluator
}

// New creates a builder for operation on entity.
func New(operation string, entity *meta.Entity, provider meta.Provider, opts ...Option) *Builder {
	b := &Builder{
		operation:  operation,
		entity:     entity,
		provider:   provider,
		paths:      make(map[string]*TableInfo),
		subqueries: make(map[string]*Subquery),
		logger:     &logger.NoopLogger{},
		tracer:     &tracer.NoopTracer{},
		converter:  convert.Default{},
		evaluator:  defaultEvaluator,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.aliases == nil {
		b.aliases = NewAliasAllocator()
	}

	b.root = &TableInfo{Alias: b.aliases.Next(entity.Table), Table: entity.Table, Entity: entity}
	b.start = b.root
	return b
}

// nested creates the builder of a subquery. It shares the allocator and the
// collaborators of b.
func (b *Builder) nested(entity *meta.Entity, root, start *TableInfo, prefix string) *Builder {
	return &Builder{
		operation:  b.operation,
		entity:     entity,
		provider:   b.provider,
		aliases:    b.aliases,
		root:       root,
		start:      start,
		prefix:     prefix,
		paths:      make(map[string]*TableInfo),
		subqueries: make(map[string]*Subquery),
		logger:     b.logger,
		tracer:     b.tracer,
		converter:  b.converter,
		evaluator:  b.evaluator,
	}
}

// Operation returns the operation name.
func (b *Builder) Operation() string { return b.operation }

// Entity returns the entity the builder selects.
func (b *Builder) Entity() *meta.Entity { return b.entity }

// Root returns the root table.
func (b *Builder) Root() *TableInfo { return b.root }

// Conditions returns the top-level conditions in registration order.
func (b *Builder) Conditions() []*Condition {
	return append([]*Condition(nil), b.conditions...)
}

// Results returns the result fields, including the hidden id.
func (b *Builder) Results() []*ResultField {
	return append([]*ResultField(nil), b.results...)
}

// OrderBy returns the order-by entries.
func (b *Builder) OrderBy() []*OrderBy {
	return append([]*OrderBy(nil), b.orderBy...)
}

// DirectValue returns the direct-value result, if declared.
func (b *Builder) DirectValue() *ResultField { return b.direct }

// HiddenID returns the id result added for proxying, if any.
func (b *Builder) HiddenID() *ResultField { return b.hiddenID }

// Table returns the table already allocated for a relation path such as
// "customer" or "customer.address".
func (b *Builder) Table(path string) (*TableInfo, bool) {
	t, ok := b.paths[path]
	return t, ok
}

// Subquery returns the top-level subquery allocated for a many-valued
// relation path.
func (b *Builder) Subquery(path string) (*Subquery, bool) {
	sq, ok := b.subqueries[path]
	return sq, ok
}

// Shape returns the materialization strategy for a destination that is
// (entityTarget) or is not a registered entity type.
func (b *Builder) Shape(entityTarget bool) Shape {
	switch {
	case b.direct != nil:
		return ShapeScalar
	case entityTarget:
		return ShapeEntity
	case b.hiddenID != nil:
		return ShapeProjectionWithExtensions
	default:
		return ShapeProjection
	}
}

// AddCondition registers a condition. Paths crossing a many-valued relation
// compile into a correlated subquery shared by every condition crossing the
// same relation at the same level.
func (b *Builder) AddCondition(spec ConditionSpec) (*Condition, error) {
	c, fresh, err := b.compileCondition(spec, b.subqueries)
	if err != nil {
		return nil, err
	}
	if fresh {
		b.conditions = append(b.conditions, c)
	}
	return c, nil
}

// compileCondition compiles spec within a subquery scope. fresh is false when
// the spec was absorbed by a subquery condition already present in scope.
func (b *Builder) compileCondition(spec ConditionSpec, scope map[string]*Subquery) (c *Condition, fresh bool, err error) {
	if spec.Group != nil {
		return b.compileGroup(spec)
	}

	full := b.qualify(spec.Path)
	if !spec.Operator.Valid() {
		return nil, false, configErr(b.operation, full, ErrInvalidCondition, "operator %d", int(spec.Operator))
	}

	known := make(map[string]bool, len(scope))
	for k := range scope {
		known[k] = true
	}

	res, err := b.resolve(spec.Path, scope)
	if err != nil {
		return nil, false, err
	}

	if res.sub != nil {
		inner := spec
		inner.Path = res.rest
		if _, err := res.sub.builder.AddCondition(inner); err != nil {
			return nil, false, err
		}
		// Conditions crossing a relation already in scope join its subquery.
		prefix := strings.TrimSuffix(strings.TrimSuffix(spec.Path, res.rest), ".")
		if known[prefix] {
			return b.subqueryCondition(res.sub), false, nil
		}
		return &Condition{
			Path:       spec.Path,
			Operator:   In,
			Param:      -1,
			Combinator: spec.Combinator,
			Subquery:   res.sub,
		}, true, nil
	}

	if res.field.IsRelation() {
		return nil, false, configErr(b.operation, full, ErrRelationTerminal, "%s", res.field.Name)
	}

	c = &Condition{
		Path:       spec.Path,
		Operator:   spec.Operator,
		Param:      spec.Param,
		Property:   spec.Property,
		Combinator: spec.Combinator,
		Nullable:   spec.Nullable,
		IgnoreCase: spec.IgnoreCase,
		Table:      res.table,
		Field:      res.field,
	}
	if spec.Property != "" {
		c.accessor = strings.Split(spec.Property, ".")
	}

	if !spec.Operator.Valueless() && spec.Param < 0 {
		if spec.Default == "" {
			return nil, false, configErr(b.operation, full, ErrInvalidCondition, "negative parameter index without default")
		}
		c.Default, err = expr.Compile(spec.Default)
		if err != nil {
			return nil, false, configErr(b.operation, full, ErrInvalidCondition, "%v", err)
		}
	}
	return c, true, nil
}

// compileGroup compiles a group. Subqueries inside a group are scoped to it.
func (b *Builder) compileGroup(spec ConditionSpec) (*Condition, bool, error) {
	g := &Condition{Combinator: spec.Combinator, Param: -1, Group: []*Condition{}}
	scope := make(map[string]*Subquery)

	for _, child := range spec.Group {
		c, fresh, err := b.compileCondition(child, scope)
		if err != nil {
			return nil, false, err
		}
		if fresh {
			g.Group = append(g.Group, c)
		}
	}
	return g, true, nil
}

// subqueryCondition finds the condition already wrapping sq.
func (b *Builder) subqueryCondition(sq *Subquery) *Condition {
	var find func([]*Condition) *Condition
	find = func(list []*Condition) *Condition {
		for _, c := range list {
			if c.Subquery == sq {
				return c
			}
			if found := find(c.Group); found != nil {
				return found
			}
		}
		return nil
	}
	return find(b.conditions)
}

// AddResultField projects path into property. An empty property declares
// the direct value of a scalar operation. Properties prefixed with
// AdHocSigil project into the dynamic bag; ExtensionSigil is only valid on
// extension paths. Relation terminals project their foreign key when this
// entity holds it and are skipped (nil, nil) otherwise. A non-None order
// also registers the field for ordering.
func (b *Builder) AddResultField(path, property string, typ meta.FieldType, order Direction) (*ResultField, error) {
	full := b.qualify(path)
	if property == "" && b.direct != nil {
		return nil, configErr(b.operation, full, ErrDuplicateDirectValue, "%s", b.direct.Path)
	}

	res, err := b.resolve(path, nil)
	if err != nil {
		return nil, err
	}

	sigil, name := splitSigil(property)
	rf := &ResultField{
		Property: name,
		Path:     path,
		Table:    res.table,
		Field:    res.field,
		Type:     typ,
		Order:    order,
	}

	switch {
	case res.extension:
		if sigil == AdHocSigil {
			rf.Kind = AdHoc
		} else {
			rf.Kind = Extension
			if rf.Property == "" && property != "" {
				rf.Property = res.field.Name
			}
		}
	case sigil == ExtensionSigil:
		return nil, configErr(b.operation, full, ErrExtensionPlacement, "sigil %q on a non-extension path", ExtensionSigil)
	case sigil == AdHocSigil:
		rf.Kind = AdHoc
	case res.field.IsRelation():
		if !res.field.HoldsForeignKey() {
			b.logger.Debug("relation result skipped",
				"operation", b.operation,
				"path", full,
				"reason", "foreign key not held by "+res.table.Entity.Name,
			)
			return nil, nil
		}
		rf.Kind = Relation
	default:
		rf.Kind = Scalar
	}

	if rf.Type == "" {
		rf.Type = res.field.Type
	}
	if rf.Kind == Relation && (rf.Type == "" || rf.Type == meta.TypeAny) {
		if target, err := b.provider.Entity(res.field.Relation.Target); err == nil {
			rf.Type = target.ID.Type
		}
	}
	rf.Code = resultCode(rf.Table, rf.Field)

	if property == "" {
		b.direct = rf
	} else if rf.Kind == Relation || rf.Kind == Extension {
		b.ensureHiddenID()
	}
	b.results = append(b.results, rf)

	if order != None {
		b.orderBy = append(b.orderBy, &OrderBy{Property: rf.Property, Direction: order, Field: rf})
	}
	return rf, nil
}

func (b *Builder) ensureHiddenID() {
	if b.hiddenID != nil {
		return
	}
	id := b.entity.ID
	b.hiddenID = &ResultField{
		Property: id.Name,
		Kind:     HiddenID,
		Path:     id.Name,
		Table:    b.start,
		Field:    id,
		Type:     id.Type,
		Code:     resultCode(b.start, id),
	}
	b.results = append(b.results, b.hiddenID)
}

// AddOrderBy orders by a property already declared as a result field.
// A None direction orders ascending.
func (b *Builder) AddOrderBy(property string, dir Direction) error {
	_, name := splitSigil(property)
	for _, rf := range b.results {
		if rf.Kind == HiddenID || rf.Property != name {
			continue
		}
		if dir == None {
			dir = Asc
		}
		b.orderBy = append(b.orderBy, &OrderBy{Property: name, Direction: dir, Field: rf})
		return nil
	}
	return configErr(b.operation, property, ErrUnknownOrderProperty, "%q", property)
}

// ClearOrderBy removes every order-by entry. It is meant for clones that
// substitute their own ordering.
func (b *Builder) ClearOrderBy() {
	b.orderBy = nil
}

func (b *Builder) String() string {
	return fmt.Sprintf("%s(%s as %s)", b.operation, b.entity.Name, b.root.Alias)
}
