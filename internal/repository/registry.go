// Package repository resolves entities and relations on top of the
// statement runner. It backs the deferred proxies created by the
// materializer and runs named operations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/coregx/relmap/internal/cache"
	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/convert"
	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/materialize"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/operation"
	"github.com/coregx/relmap/internal/statement"
)

// Repository errors.
var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("entity not found")
	// ErrNoInverse is returned for collections whose target has no field
	// leading back to the owner.
	ErrNoInverse = errors.New("relation has no inverse path")
	// ErrNoOperations is returned by Query when no operation set is configured.
	ErrNoOperations = errors.New("no operations configured")
)

// Catalog provides entity metadata and the bindings entities materialize into.
// *meta.Registry implements it.
type Catalog interface {
	meta.Provider
	materialize.EntityResolver
	Binding(entity string) meta.Binding
}

// Registry is a materialize.Repository and materialize.RelationLoader
// backed by a statement runner. Lookup operations are compiled once per
// entity and relation and cached. It is safe for concurrent use.
type Registry struct {
	catalog   Catalog
	runner    *statement.Runner
	ops       *operation.Set
	converter convert.Service
	logger    logger.Logger
	builder   []compiler.Option
	capacity  int
	lookups   *cache.LRU[string, *lookup]
}

var (
	_ materialize.Repository     = (*Registry)(nil)
	_ materialize.RelationLoader = (*Registry)(nil)
)

// lookup is a compiled operation with the materializer for its destination.
type lookup struct {
	builder *compiler.Builder
	mat     *materialize.Materializer
	many    bool
	limit   int
}

// Option is a functional option for configuring a Registry.
type Option func(*Registry)

// WithOperations enables Query over a set of named operations.
func WithOperations(s *operation.Set) Option {
	return func(r *Registry) {
		r.ops = s
	}
}

// WithConverter sets the conversion service of lookups and materializers.
func WithConverter(c convert.Service) Option {
	return func(r *Registry) {
		if c != nil {
			r.converter = c
		}
	}
}

// WithLogger sets the logger of the registry and its lookup builders.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBuilderOptions passes options to every lookup builder.
func WithBuilderOptions(opts ...compiler.Option) Option {
	return func(r *Registry) {
		r.builder = append(r.builder, opts...)
	}
}

// WithCacheCapacity bounds the number of cached lookups.
func WithCacheCapacity(n int) Option {
	return func(r *Registry) {
		r.capacity = n
	}
}

// New creates a registry resolving entities of catalog through runner.
func New(catalog Catalog, runner *statement.Runner, opts ...Option) *Registry {
	r := &Registry{
		catalog:   catalog,
		runner:    runner,
		converter: convert.Default{},
		logger:    &logger.NoopLogger{},
		capacity:  cache.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lookups = cache.New[string, *lookup](r.capacity)
	return r
}

// ResolveByID loads one entity by id, materialized with the entity's
// registered binding.
func (r *Registry) ResolveByID(ctx context.Context, entity string, id any) (any, error) {
	l, err := r.lookups.GetOrLoad("id:"+entity, func() (*lookup, error) {
		return r.compileByID(entity)
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.runner.RunPage(ctx, l.builder, []any{id}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s(%v)", ErrNotFound, entity, id)
	}
	return l.mat.Materialize(rows[0])
}

// LoadRelation loads relation of entity id. Single-valued relations resolve
// to the related entity, or nil when absent; collections resolve to a []any
// ordered by id.
func (r *Registry) LoadRelation(ctx context.Context, entity string, id any, relation string) (any, error) {
	l, err := r.lookups.GetOrLoad("rel:"+entity+"."+relation, func() (*lookup, error) {
		return r.compileRelation(entity, relation)
	})
	if err != nil {
		return nil, err
	}

	if l.many {
		rows, err := r.runner.Run(ctx, l.builder, []any{id}, nil)
		if err != nil {
			return nil, err
		}
		return l.mat.MaterializeAll(rows)
	}

	rows, err := r.runner.RunPage(ctx, l.builder, []any{id}, nil, 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	target, err := l.mat.Materialize(rows[0])
	if err != nil || target == nil {
		return nil, err
	}
	f, _ := l.builder.Entity().Field(relation)
	return r.ResolveByID(ctx, f.Relation.Target, target)
}

// Query runs a named operation and materializes its rows into target, or
// into records when target is nil.
func (r *Registry) Query(ctx context.Context, name string, target meta.Binding, params []any, env expr.Env) ([]any, error) {
	if r.ops == nil {
		return nil, ErrNoOperations
	}
	op, err := r.ops.Get(name)
	if err != nil {
		return nil, err
	}
	if target == nil {
		target = meta.RecordBinding{}
	}

	key := "op:" + name + ":" + typeKey(target)
	l, err := r.lookups.GetOrLoad(key, func() (*lookup, error) {
		mat, err := r.materializer(op.Builder, target)
		if err != nil {
			return nil, err
		}
		return &lookup{builder: op.Builder, mat: mat, many: true, limit: op.Limit}, nil
	})
	if err != nil {
		return nil, err
	}

	rows, err := r.runner.RunPage(ctx, l.builder, params, env, l.limit, 0)
	if err != nil {
		return nil, err
	}
	return l.mat.MaterializeAll(rows)
}

func typeKey(b meta.Binding) string {
	if t := b.Type(); t != nil {
		return t.String()
	}
	return reflect.TypeOf(b).String()
}

func (r *Registry) materializer(b *compiler.Builder, target meta.Binding) (*materialize.Materializer, error) {
	return materialize.New(b, target,
		materialize.WithRepository(r),
		materialize.WithConverter(r.converter),
		materialize.WithEntities(r.catalog),
	)
}

func (r *Registry) newBuilder(name string, e *meta.Entity) *compiler.Builder {
	opts := append([]compiler.Option{
		compiler.WithLogger(r.logger),
		compiler.WithConverter(r.converter),
	}, r.builder...)
	return compiler.New(name, e, r.catalog, opts...)
}

// compileByID projects every field of entity its binding can hold that
// needs no subquery: scalars and relations whose key the entity stores.
func (r *Registry) compileByID(entity string) (*lookup, error) {
	e, err := r.catalog.Entity(entity)
	if err != nil {
		return nil, err
	}
	target := r.catalog.Binding(entity)
	b := r.newBuilder("resolve"+entity+"ByID", e)
	if err := project(b, e, target); err != nil {
		return nil, err
	}
	if _, err := b.AddCondition(compiler.ConditionSpec{Path: e.ID.Name, Operator: compiler.Eq, Param: 0}); err != nil {
		return nil, err
	}

	mat, err := r.materializer(b, target)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("lookup compiled", "operation", b.Operation(), "entity", entity)
	return &lookup{builder: b, mat: mat}, nil
}

func project(b *compiler.Builder, e *meta.Entity, target meta.Binding) error {
	for _, f := range e.Fields() {
		if f.IsRelation() && !f.HoldsForeignKey() {
			continue
		}
		if !target.Has(f.Name) {
			continue
		}
		if _, err := b.AddResultField(f.Name, f.Name, "", compiler.None); err != nil {
			return err
		}
	}
	return nil
}

// compileRelation compiles the lookup of one relation. A single-valued
// relation selects the related id as a direct value; a collection selects
// the related entities through the inverse field of the target.
func (r *Registry) compileRelation(entity, relation string) (*lookup, error) {
	owner, err := r.catalog.Entity(entity)
	if err != nil {
		return nil, err
	}
	f, ok := owner.Field(relation)
	if !ok || !f.IsRelation() {
		return nil, fmt.Errorf("%w: %s.%s", compiler.ErrNotRelation, entity, relation)
	}
	target, err := r.catalog.Entity(f.Relation.Target)
	if err != nil {
		return nil, err
	}

	if !f.Relation.Cardinality.IsMany() {
		b := r.newBuilder("load"+entity+"."+relation, owner)
		if _, err := b.AddResultField(relation+"."+target.ID.Name, "", "", compiler.None); err != nil {
			return nil, err
		}
		if _, err := b.AddCondition(compiler.ConditionSpec{Path: owner.ID.Name, Operator: compiler.Eq, Param: 0}); err != nil {
			return nil, err
		}
		mat, err := r.materializer(b, nil)
		if err != nil {
			return nil, err
		}
		return &lookup{builder: b, mat: mat}, nil
	}

	inverse, ok := inverseField(owner, f, target)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoInverse, entity, relation)
	}
	binding := r.catalog.Binding(target.Name)
	b := r.newBuilder("load"+entity+"."+relation, target)
	if err := project(b, target, binding); err != nil {
		return nil, err
	}
	if _, err := b.AddCondition(compiler.ConditionSpec{
		Path:     inverse + "." + owner.ID.Name,
		Operator: compiler.Eq,
		Param:    0,
	}); err != nil {
		return nil, err
	}
	if binding.Has(target.ID.Name) {
		if err := b.AddOrderBy(target.ID.Name, compiler.Asc); err != nil {
			return nil, err
		}
	}
	mat, err := r.materializer(b, binding)
	if err != nil {
		return nil, err
	}
	return &lookup{builder: b, mat: mat, many: true}, nil
}

// inverseField finds the field of target leading back to owner through f:
// the field f is mapped by, or a field of target mapped by f.
func inverseField(owner *meta.Entity, f *meta.Field, target *meta.Entity) (string, bool) {
	if f.Relation.MappedBy != "" {
		return f.Relation.MappedBy, true
	}
	for _, tf := range target.Fields() {
		if tf.IsRelation() && tf.Relation.Target == owner.Name && tf.Relation.MappedBy == f.Name {
			return tf.Name, true
		}
	}
	return "", false
}
