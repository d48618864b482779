package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
)

// MySQLAnalyzer explains statements on MySQL.
type MySQLAnalyzer struct {
	db *sql.DB
}

// NewMySQLAnalyzer creates a MySQL analyzer.
func NewMySQLAnalyzer(db *sql.DB) *MySQLAnalyzer {
	return &MySQLAnalyzer{db: db}
}

// Explain implements Analyzer.
func (ma *MySQLAnalyzer) Explain(ctx context.Context, query string, args []any) (*Plan, error) {
	return explainJSON(ctx, ma.db, "EXPLAIN FORMAT=JSON "+query, args, parseMySQL)
}

// ExplainAnalyze implements Analyzer. MySQL prints EXPLAIN ANALYZE only as a
// tree, so the plan carries the raw output and the estimates of Explain.
func (ma *MySQLAnalyzer) ExplainAnalyze(ctx context.Context, query string, args []any) (*Plan, error) {
	plan, err := ma.Explain(ctx, query, args)
	if err != nil {
		return nil, err
	}
	var tree string
	if err := ma.db.QueryRowContext(ctx, "EXPLAIN ANALYZE "+query, args...).Scan(&tree); err != nil {
		return nil, err
	}
	plan.Raw = tree
	return plan, nil
}

type mysqlRoot struct {
	QueryBlock mysqlBlock `json:"query_block"`
}

// mysqlBlock is a query block or any operation nested in it; table access
// may sit under nested_loop, ordering_operation or grouping_operation.
type mysqlBlock struct {
	CostInfo   mysqlCost    `json:"cost_info"`
	Table      *mysqlTable  `json:"table"`
	NestedLoop []mysqlBlock `json:"nested_loop"`
	Ordering   *mysqlBlock  `json:"ordering_operation"`
	Grouping   *mysqlBlock  `json:"grouping_operation"`
}

type mysqlCost struct {
	QueryCost string `json:"query_cost"`
}

type mysqlTable struct {
	TableName  string `json:"table_name"`
	AccessType string `json:"access_type"`
	Key        string `json:"key"`
	Rows       int64  `json:"rows_examined_per_scan"`
	// Subqueries attached to the table, such as IN (SELECT ...) conditions.
	Subqueries []mysqlRoot `json:"attached_subqueries"`
}

func parseMySQL(raw string) (*Plan, error) {
	var root mysqlRoot
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, err
	}
	plan := &Plan{Database: "mysql"}
	if cost, err := strconv.ParseFloat(root.QueryBlock.CostInfo.QueryCost, 64); err == nil {
		plan.Cost = cost
	}
	walkMySQL(&root.QueryBlock, plan)
	return plan, nil
}

func walkMySQL(b *mysqlBlock, plan *Plan) {
	if t := b.Table; t != nil {
		plan.addIndex(t.Key)
		if t.AccessType == "ALL" {
			plan.addScan(t.TableName)
		}
		plan.EstimatedRows += t.Rows
		for i := range t.Subqueries {
			walkMySQL(&t.Subqueries[i].QueryBlock, plan)
		}
	}
	for i := range b.NestedLoop {
		walkMySQL(&b.NestedLoop[i], plan)
	}
	for _, nested := range []*mysqlBlock{b.Ordering, b.Grouping} {
		if nested != nil {
			walkMySQL(nested, plan)
		}
	}
}
