package analyzer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteAnalyzer explains statements on SQLite.
type SQLiteAnalyzer struct {
	db *sql.DB
}

// NewSQLiteAnalyzer creates a SQLite analyzer.
func NewSQLiteAnalyzer(db *sql.DB) *SQLiteAnalyzer {
	return &SQLiteAnalyzer{db: db}
}

// Explain implements Analyzer. SQLite reports neither costs nor row
// estimates.
func (sa *SQLiteAnalyzer) Explain(ctx context.Context, query string, args []any) (*Plan, error) {
	rows, err := sa.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN QUERY PLAN: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []string
	for rows.Next() {
		var id, parent, unused int
		var detail string
		if err := rows.Scan(&id, &parent, &unused, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan EXPLAIN output: %w", err)
		}
		lines = append(lines, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading EXPLAIN output: %w", err)
	}

	plan := parseSQLite(lines)
	plan.Raw = strings.Join(lines, "\n")
	return plan, nil
}

// ExplainAnalyze implements Analyzer.
func (sa *SQLiteAnalyzer) ExplainAnalyze(context.Context, string, []any) (*Plan, error) {
	return nil, fmt.Errorf("%w: sqlite", ErrAnalyzeUnsupported)
}

// parseSQLite reads plan details such as
//
//	SCAN orders
//	SEARCH customers USING INTEGER PRIMARY KEY (rowid=?)
//	SEARCH items USING INDEX items_order (order_id=?)
//	SEARCH c USING COVERING INDEX customer_groups_pk (customer_id=?)
func parseSQLite(lines []string) *Plan {
	plan := &Plan{Database: "sqlite"}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "SCAN":
			if name, ok := sqliteIndex(fields[2:]); ok {
				plan.addIndex(name)
			} else {
				plan.addScan(fields[1])
			}
		case "SEARCH":
			if name, ok := sqliteIndex(fields[2:]); ok {
				plan.addIndex(name)
			}
		}
	}
	return plan
}

// sqliteIndex finds the index named by a USING clause.
func sqliteIndex(fields []string) (string, bool) {
	for i := 0; i < len(fields); i++ {
		if !strings.EqualFold(fields[i], "USING") || i+1 >= len(fields) {
			continue
		}
		rest := fields[i+1:]
		switch strings.ToUpper(rest[0]) {
		case "INTEGER":
			return "PRIMARY KEY", true
		case "AUTOMATIC":
			return "AUTOMATIC INDEX", true
		case "COVERING":
			rest = rest[1:]
		}
		if len(rest) >= 2 && strings.EqualFold(rest[0], "INDEX") {
			return rest[1], true
		}
		if len(rest) >= 3 && strings.EqualFold(rest[0], "PRIMARY") {
			return "PRIMARY KEY", true
		}
	}
	return "", false
}
