// Package relmap compiles declarative query operations over a mapped entity
// model into SQL, runs them through database/sql and materializes the rows
// into entities, projections or scalars with deferred relation loading.
//
// Supported dialects are PostgreSQL, MySQL and SQLite.
package relmap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coregx/relmap/internal/analyzer"
	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/convert"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/materialize"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/operation"
	"github.com/coregx/relmap/internal/repository"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/statement"
	"github.com/coregx/relmap/internal/tracer"
)

type (
	// Entity is the immutable description of one persisted type.
	Entity = meta.Entity
	// Field is one persisted field of an entity.
	Field = meta.Field
	// Registry holds entity descriptions and their destination bindings.
	Registry = meta.Registry
	// Binding creates and fills destination values.
	Binding = meta.Binding
	// Record is the map destination used when no binding is registered.
	Record = meta.Record

	// Builder is a compiled operation.
	Builder = compiler.Builder
	// ConditionSpec declares one condition of a Builder.
	ConditionSpec = compiler.ConditionSpec
	// Descriptor is the declarative form of an operation.
	Descriptor = operation.Descriptor
	// ResultSpec declares one result of a Descriptor.
	ResultSpec = operation.ResultSpec
	// ConditionDescriptor declares one condition of a Descriptor.
	ConditionDescriptor = operation.ConditionSpec
	// OrderSpec declares one ordering of a Descriptor.
	OrderSpec = operation.OrderSpec
	// OperationSet holds compiled operations by name.
	OperationSet = operation.Set

	// Object wraps a materialized value with the identity needed to load
	// relations later.
	Object = materialize.Object
	// Ref is a deferred single-valued relation.
	Ref = materialize.Ref

	// Env is the environment of default-value expressions.
	Env = expr.Env
	// Logger is the structured logger used across relmap.
	Logger = logger.Logger
	// Sanitizer masks sensitive parameters in logs.
	Sanitizer = logger.Sanitizer
	// Plan is the database query plan of a bound operation.
	Plan = analyzer.Plan
	// Tracer creates spans for binding and execution.
	Tracer = tracer.Tracer
	// Validator checks rendered statements against injection patterns.
	Validator = security.Validator
)

// Re-exported constructors.
var (
	NewRegistry     = meta.NewRegistry
	LoadModel       = meta.LoadFile
	LoadModelYAML   = meta.LoadYAML
	BindStruct      = meta.BindStruct
	MustBindStruct  = meta.MustBindStruct
	NewBuilder      = compiler.New
	NewOperationSet = operation.NewSet
	NewSanitizer    = logger.NewSanitizer
	NewValidator    = security.NewValidator
	NewOtelTracer   = tracer.NewOtelTracer
)

// As unwraps a materialized value and asserts it to T.
func As[T any](v any) (T, bool) {
	return materialize.As[T](v)
}

// DB runs compiled operations against one database. It is safe for
// concurrent use.
type DB struct {
	sqlDB   *sql.DB
	owned   bool
	dialect dialects.Dialect
	models  *meta.Registry
	ops     *operation.Set
	runner  *statement.Runner
	repo    *repository.Registry

	runnerOpts []statement.RunnerOption
	repoOpts   []repository.Option
	logger     logger.Logger
	converter  convert.Service
	tracer     tracer.Tracer
	evaluator  compiler.Evaluator
}

// Option is a functional option for configuring DB.
type Option func(*DB)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(db *DB) {
		db.sqlDB.SetMaxIdleConns(n)
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(capacity int) Option {
	return func(db *DB) {
		db.runnerOpts = append(db.runnerOpts, statement.WithStmtCacheCapacity(capacity))
	}
}

// WithLogger sets the logger of statements, lookups and compiled operations.
func WithLogger(l Logger) Option {
	return func(db *DB) {
		if l == nil {
			return
		}
		db.logger = l
		db.runnerOpts = append(db.runnerOpts, statement.WithLogger(l))
		db.repoOpts = append(db.repoOpts, repository.WithLogger(l))
	}
}

// WithSanitizer sets the masking of logged parameters.
func WithSanitizer(s *Sanitizer) Option {
	return func(db *DB) {
		db.runnerOpts = append(db.runnerOpts, statement.WithSanitizer(s))
	}
}

// WithTracer enables tracing of statement execution.
func WithTracer(t Tracer) Option {
	return func(db *DB) {
		db.tracer = t
		db.runnerOpts = append(db.runnerOpts, statement.WithTracer(t))
		db.repoOpts = append(db.repoOpts, repository.WithBuilderOptions(compiler.WithTracer(t)))
	}
}

// WithValidator rejects statements matching injection patterns before they
// are prepared.
func WithValidator(v *Validator) Option {
	return func(db *DB) {
		db.runnerOpts = append(db.runnerOpts, statement.WithValidator(v))
	}
}

// WithConverter sets the conversion between runtime and storage values.
func WithConverter(c convert.Service) Option {
	return func(db *DB) {
		if c != nil {
			db.converter = c
			db.repoOpts = append(db.repoOpts, repository.WithConverter(c))
		}
	}
}

// WithDefaultTimeout interrupts default-value expressions of operations
// running longer than d.
func WithDefaultTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.evaluator = expr.NewEvaluator(expr.WithTimeout(d))
	}
}

// WithOperations makes the operations of s callable through Query.
func WithOperations(s *OperationSet) Option {
	return func(db *DB) {
		db.ops = s
	}
}

// Open opens a database for the entity model. The dialect is looked up by
// the driver name (postgres, mysql, sqlite, sqlite3).
func Open(driverName, dsn string, models *Registry, opts ...Option) (*DB, error) {
	d, err := dialects.Lookup(driverName)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db := newDB(sqlDB, d, models, opts)
	db.owned = true
	return db, nil
}

// WrapDB wraps an existing connection pool. Close leaves sqlDB open.
func WrapDB(sqlDB *sql.DB, dialect string, models *Registry, opts ...Option) (*DB, error) {
	d, err := dialects.Lookup(dialect)
	if err != nil {
		return nil, err
	}
	return newDB(sqlDB, d, models, opts), nil
}

func newDB(sqlDB *sql.DB, d dialects.Dialect, models *meta.Registry, opts []Option) *DB {
	db := &DB{
		sqlDB:     sqlDB,
		dialect:   d,
		models:    models,
		logger:    &logger.NoopLogger{},
		converter: convert.Default{},
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.ops == nil {
		db.ops = operation.NewSet(models, db.builderOptions()...)
	}

	db.runner = statement.NewRunner(sqlDB, d, db.runnerOpts...)
	db.repo = repository.New(models, db.runner, append(db.repoOpts, repository.WithOperations(db.ops))...)
	return db
}

func (db *DB) builderOptions() []compiler.Option {
	return []compiler.Option{
		compiler.WithLogger(db.logger),
		compiler.WithConverter(db.converter),
		compiler.WithTracer(db.tracer),
		compiler.WithEvaluator(db.evaluator),
	}
}

// Close releases cached statements and, for pools opened by Open, the pool.
func (db *DB) Close() error {
	if err := db.runner.Close(); err != nil {
		return err
	}
	if db.owned {
		return db.sqlDB.Close()
	}
	return nil
}

// SQLDB returns the underlying connection pool.
func (db *DB) SQLDB() *sql.DB {
	return db.sqlDB
}

// Models returns the entity model.
func (db *DB) Models() *Registry {
	return db.models
}

// Operations returns the operations callable through Query.
func (db *DB) Operations() *OperationSet {
	return db.ops
}

// Register compiles d and makes it callable through Query.
func (db *DB) Register(d *Descriptor) error {
	_, err := db.ops.Add(d)
	return err
}

// Query runs a named operation and materializes its results into target,
// or into Records when target is nil.
func (db *DB) Query(ctx context.Context, name string, target Binding, params []any, env Env) ([]any, error) {
	return db.repo.Query(ctx, name, target, params, env)
}

// QueryOne runs a named operation and returns its first result, or nil.
func (db *DB) QueryOne(ctx context.Context, name string, target Binding, params []any, env Env) (any, error) {
	out, err := db.Query(ctx, name, target, params, env)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// Find loads one entity by id with its registered binding.
func (db *DB) Find(ctx context.Context, entity string, id any) (any, error) {
	return db.repo.ResolveByID(ctx, entity, id)
}

// Plan binds an operation and asks the database for its query plan. With
// analyze the statement is executed to collect actual metrics.
func (db *DB) Plan(ctx context.Context, name string, params []any, env Env, analyze bool) (*Plan, error) {
	query, args, err := db.Explain(ctx, name, params, env)
	if err != nil {
		return nil, err
	}
	a, err := analyzer.For(db.sqlDB, db.dialect.Name())
	if err != nil {
		return nil, err
	}
	if analyze {
		return a.ExplainAnalyze(ctx, query, args)
	}
	return a.Explain(ctx, query, args)
}

// Explain binds an operation and returns the statement it would execute.
func (db *DB) Explain(ctx context.Context, name string, params []any, env Env) (string, []any, error) {
	op, err := db.ops.Get(name)
	if err != nil {
		return "", nil, err
	}
	sel := db.runner.NewSelect()
	if err := op.Builder.Bind(ctx, sel, params, env); err != nil {
		return "", nil, fmt.Errorf("explain %s: %w", name, err)
	}
	sel.SetLimit(op.Limit, 0)
	query, args := sel.Build()
	return query, args, nil
}
