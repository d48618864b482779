// Package analyzer reads the database plan of a rendered statement through
// EXPLAIN. PostgreSQL and MySQL plans are decoded from their JSON form,
// SQLite plans from EXPLAIN QUERY PLAN rows.
package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrAnalyzeUnsupported is returned by ExplainAnalyze on databases without
// EXPLAIN ANALYZE.
var ErrAnalyzeUnsupported = errors.New("EXPLAIN ANALYZE not supported")

// Plan is a database-neutral summary of a query plan.
type Plan struct {
	Database string
	// Cost is the estimated total cost in database-specific units; zero when
	// the database reports none.
	Cost          float64
	EstimatedRows int64
	// ActualRows and ActualTime are only set by ExplainAnalyze.
	ActualRows int64
	ActualTime time.Duration
	// Indexes lists the indexes used, in plan order, without duplicates.
	Indexes []string
	// FullScans lists the tables read without an index.
	FullScans []string
	// Raw is the unparsed EXPLAIN output.
	Raw string
}

// UsesIndex reports whether any table is read through an index.
func (p *Plan) UsesIndex() bool {
	return len(p.Indexes) > 0
}

// FullScan reports whether any table is read without an index.
func (p *Plan) FullScan() bool {
	return len(p.FullScans) > 0
}

func (p *Plan) addIndex(name string) {
	if name != "" && !slices.Contains(p.Indexes, name) {
		p.Indexes = append(p.Indexes, name)
	}
}

func (p *Plan) addScan(table string) {
	if table != "" && !slices.Contains(p.FullScans, table) {
		p.FullScans = append(p.FullScans, table)
	}
}

// String renders the plan summary followed by the raw output.
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "database: %s\n", p.Database)
	if p.Cost > 0 || p.EstimatedRows > 0 {
		fmt.Fprintf(&sb, "cost: %.2f rows: %d\n", p.Cost, p.EstimatedRows)
	}
	if p.ActualTime > 0 {
		fmt.Fprintf(&sb, "actual: %d rows in %s\n", p.ActualRows, p.ActualTime)
	}
	if p.UsesIndex() {
		fmt.Fprintf(&sb, "indexes: %s\n", strings.Join(p.Indexes, ", "))
	}
	if p.FullScan() {
		fmt.Fprintf(&sb, "full scans: %s\n", strings.Join(p.FullScans, ", "))
	}
	sb.WriteString(p.Raw)
	return sb.String()
}

// Analyzer explains statements of one database.
type Analyzer interface {
	// Explain returns the estimated plan without executing the statement.
	Explain(ctx context.Context, query string, args []any) (*Plan, error)
	// ExplainAnalyze executes the statement and returns the plan with actual
	// metrics.
	ExplainAnalyze(ctx context.Context, query string, args []any) (*Plan, error)
}

// For returns the analyzer of a dialect name as registered in dialects.
func For(db *sql.DB, dialect string) (Analyzer, error) {
	switch dialect {
	case "postgres", "postgresql":
		return NewPostgresAnalyzer(db), nil
	case "mysql":
		return NewMySQLAnalyzer(db), nil
	case "sqlite", "sqlite3":
		return NewSQLiteAnalyzer(db), nil
	}
	return nil, fmt.Errorf("no analyzer for dialect %q", dialect)
}

// explainJSON runs a single-value JSON EXPLAIN and decodes it with parse.
func explainJSON(ctx context.Context, db *sql.DB, query string, args []any, parse func(string) (*Plan, error)) (*Plan, error) {
	var raw string
	if err := db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN: %w", err)
	}
	plan, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXPLAIN output: %w", err)
	}
	plan.Raw = raw
	return plan, nil
}
