package statement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/relmap/internal/cache"
	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/tracer"
)

// ErrQuery wraps failures to prepare, execute or scan a statement.
var ErrQuery = errors.New("query failed")

// Runner executes statements on a database, caching prepared statements.
// It is safe for concurrent use.
type Runner struct {
	db        *sql.DB
	dialect   dialects.Dialect
	stmts     *cache.LRU[string, *sql.Stmt]
	capacity  int
	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	validator *security.Validator
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger logs executed statements with sanitized arguments.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSanitizer replaces the default sanitizer.
func WithSanitizer(s *logger.Sanitizer) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.sanitizer = s
		}
	}
}

// WithTracer starts a span per executed statement.
func WithTracer(t tracer.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithValidator checks every statement before it is prepared.
func WithValidator(v *security.Validator) RunnerOption {
	return func(r *Runner) {
		r.validator = v
	}
}

// WithStmtCacheCapacity sets the prepared statement cache capacity.
func WithStmtCacheCapacity(n int) RunnerOption {
	return func(r *Runner) {
		r.capacity = n
	}
}

// NewRunner creates a runner for db rendering statements in dialect d.
func NewRunner(db *sql.DB, d dialects.Dialect, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:        db,
		dialect:   d,
		capacity:  cache.DefaultCapacity,
		logger:    &logger.NoopLogger{},
		sanitizer: logger.NewSanitizer(nil),
		tracer:    &tracer.NoopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.stmts = cache.New(r.capacity, cache.WithEvict(func(_ string, s *sql.Stmt) {
		_ = s.Close()
	}))
	return r
}

// Dialect returns the dialect statements are rendered in.
func (r *Runner) Dialect() dialects.Dialect {
	return r.dialect
}

// NewSelect returns an empty statement in the runner's dialect.
func (r *Runner) NewSelect() *Select {
	return NewSelect(r.dialect)
}

// Run binds b with params and env, executes the statement and returns its
// rows keyed by result code.
func (r *Runner) Run(ctx context.Context, b *compiler.Builder, params []any, env expr.Env) ([]compiler.Row, error) {
	return r.RunPage(ctx, b, params, env, 0, 0)
}

// RunPage is Run with a row limit and offset; a zero limit reads every row.
func (r *Runner) RunPage(ctx context.Context, b *compiler.Builder, params []any, env expr.Env, limit, offset int) ([]compiler.Row, error) {
	sel := r.NewSelect()
	if err := b.Bind(ctx, sel, params, env); err != nil {
		return nil, err
	}
	sel.SetLimit(limit, offset)
	st := sel.Render()
	st.Operation = b.Operation()
	return r.Query(ctx, st)
}

// Query executes a rendered statement.
func (r *Runner) Query(ctx context.Context, st Statement) ([]compiler.Row, error) {
	ctx, span := r.tracer.StartSpan(ctx, "relmap.query")
	defer span.End()

	start := time.Now()
	rows, err := r.query(ctx, st)
	elapsed := time.Since(start)

	params := r.sanitizer.FormatParams(r.sanitizer.MaskColumns(st.SQL, st.Columns, st.Args))
	if err != nil {
		r.logger.Error("query execution failed",
			"operation", st.Operation,
			"sql", st.SQL,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"database", r.dialect.Name(),
			"error", err,
		)
	} else {
		r.logger.Info("query executed",
			"operation", st.Operation,
			"sql", st.SQL,
			"params", params,
			"duration_ms", elapsed.Milliseconds(),
			"rows", len(rows),
			"database", r.dialect.Name(),
		)
	}

	tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
		SQL:       st.SQL,
		Duration:  elapsed,
		Rows:      len(rows),
		Error:     err,
		Database:  r.dialect.Name(),
		Operation: st.Operation,
		Table:     st.Table,
	})
	return rows, err
}

func (r *Runner) query(ctx context.Context, st Statement) ([]compiler.Row, error) {
	stmt, err := r.prepare(ctx, st.SQL)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", ErrQuery, err)
	}
	rows, err := stmt.QueryContext(ctx, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scan(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrQuery, err)
	}
	return out, nil
}

func (r *Runner) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmts.Get(query); ok {
		return stmt, nil
	}
	if r.validator != nil {
		if err := r.validator.ValidateQuery(query); err != nil {
			return nil, err
		}
	}
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	r.stmts.Set(query, stmt)
	return stmt, nil
}

// scan reads every row into a map keyed by column name.
func scan(rows *sql.Rows) ([]compiler.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []compiler.Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(compiler.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
			values[i] = nil
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Stats returns prepared statement cache statistics.
func (r *Runner) Stats() cache.Stats {
	return r.stmts.Stats()
}

// Close closes every cached prepared statement. The database is left open.
func (r *Runner) Close() error {
	r.stmts.Clear()
	return nil
}
