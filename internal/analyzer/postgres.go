package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// PostgresAnalyzer explains statements on PostgreSQL.
type PostgresAnalyzer struct {
	db *sql.DB
}

// NewPostgresAnalyzer creates a PostgreSQL analyzer.
func NewPostgresAnalyzer(db *sql.DB) *PostgresAnalyzer {
	return &PostgresAnalyzer{db: db}
}

// Explain implements Analyzer.
func (pa *PostgresAnalyzer) Explain(ctx context.Context, query string, args []any) (*Plan, error) {
	return explainJSON(ctx, pa.db, "EXPLAIN (FORMAT JSON) "+query, args, func(raw string) (*Plan, error) {
		return parsePostgres(raw, false)
	})
}

// ExplainAnalyze implements Analyzer.
func (pa *PostgresAnalyzer) ExplainAnalyze(ctx context.Context, query string, args []any) (*Plan, error) {
	return explainJSON(ctx, pa.db, "EXPLAIN (ANALYZE, FORMAT JSON) "+query, args, func(raw string) (*Plan, error) {
		return parsePostgres(raw, true)
	})
}

type postgresRoot struct {
	Plan          postgresNode `json:"Plan"`
	ExecutionTime float64      `json:"Execution Time"` // ms, ANALYZE only
}

type postgresNode struct {
	NodeType     string         `json:"Node Type"`
	RelationName string         `json:"Relation Name"`
	IndexName    string         `json:"Index Name"`
	TotalCost    float64        `json:"Total Cost"`
	PlanRows     int64          `json:"Plan Rows"`
	ActualRows   int64          `json:"Actual Rows"`
	ActualLoops  int64          `json:"Actual Loops"`
	Plans        []postgresNode `json:"Plans"`
}

func parsePostgres(raw string, analyzed bool) (*Plan, error) {
	// The output is an array with one element per statement.
	var roots []postgresRoot
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errors.New("empty EXPLAIN output")
	}

	root := roots[0]
	plan := &Plan{
		Database:      "postgres",
		Cost:          root.Plan.TotalCost,
		EstimatedRows: root.Plan.PlanRows,
	}
	if analyzed {
		plan.ActualRows = root.Plan.ActualRows * max(root.Plan.ActualLoops, 1)
		plan.ActualTime = time.Duration(root.ExecutionTime * float64(time.Millisecond))
	}
	walkPostgres(&root.Plan, plan)
	return plan, nil
}

func walkPostgres(node *postgresNode, plan *Plan) {
	switch {
	case strings.Contains(node.NodeType, "Index"):
		plan.addIndex(node.IndexName)
	case node.NodeType == "Seq Scan":
		plan.addScan(node.RelationName)
	}
	for i := range node.Plans {
		walkPostgres(&node.Plans[i], plan)
	}
}

