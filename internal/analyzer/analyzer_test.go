package analyzer

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coregx/relmap/internal/testmodel"
)

func TestFor(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"} {
		a, err := For(nil, name)
		require.NoError(t, err, name)
		assert.NotNil(t, a)
	}
	_, err := For(nil, "oracle")
	assert.Error(t, err)
}

func TestParsePostgres(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Hash Join", "Total Cost": 42.5, "Plan Rows": 7,
		"Actual Rows": 3, "Actual Loops": 1,
		"Plans": [
			{"Node Type": "Seq Scan", "Relation Name": "orders"},
			{"Node Type": "Hash", "Plans": [
				{"Node Type": "Index Scan", "Relation Name": "customers", "Index Name": "customers_pkey"}
			]}
		]}, "Execution Time": 1.5}]`

	plan, err := parsePostgres(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "postgres", plan.Database)
	assert.Equal(t, 42.5, plan.Cost)
	assert.Equal(t, int64(7), plan.EstimatedRows)
	assert.Equal(t, []string{"orders"}, plan.FullScans)
	assert.Equal(t, []string{"customers_pkey"}, plan.Indexes)
	assert.Zero(t, plan.ActualTime)

	plan, err = parsePostgres(raw, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), plan.ActualRows)
	assert.Equal(t, 1500*time.Microsecond, plan.ActualTime)

	_, err = parsePostgres(`[]`, false)
	assert.Error(t, err)
	_, err = parsePostgres(`{`, false)
	assert.Error(t, err)
}

func TestParseMySQL(t *testing.T) {
	raw := `{"query_block": {"cost_info": {"query_cost": "12.40"},
		"ordering_operation": {"nested_loop": [
			{"table": {"table_name": "ord0", "access_type": "ALL", "rows_examined_per_scan": 3}},
			{"table": {"table_name": "cus1", "access_type": "eq_ref", "key": "PRIMARY", "rows_examined_per_scan": 1,
				"attached_subqueries": [{"query_block": {"table": {"table_name": "cus2", "access_type": "ref", "key": "idx_group"}}}]}}
		]}}}`

	plan, err := parseMySQL(raw)
	require.NoError(t, err)
	assert.Equal(t, "mysql", plan.Database)
	assert.Equal(t, 12.4, plan.Cost)
	assert.Equal(t, int64(4), plan.EstimatedRows)
	assert.Equal(t, []string{"ord0"}, plan.FullScans)
	assert.Equal(t, []string{"PRIMARY", "idx_group"}, plan.Indexes)
	assert.True(t, plan.UsesIndex())
	assert.True(t, plan.FullScan())
}

func TestParseSQLite(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		indexes []string
		scans   []string
	}{
		{"full scan", []string{"SCAN orders"}, nil, []string{"orders"}},
		{"rowid", []string{"SEARCH orders USING INTEGER PRIMARY KEY (rowid=?)"}, []string{"PRIMARY KEY"}, nil},
		{"index", []string{"SEARCH items USING INDEX idx_order (order_id=?)"}, []string{"idx_order"}, nil},
		{"covering scan", []string{"SCAN items USING COVERING INDEX idx_order"}, []string{"idx_order"}, nil},
		{"automatic", []string{"SEARCH c USING AUTOMATIC COVERING INDEX (id=?)"}, []string{"AUTOMATIC INDEX"}, nil},
		{
			"join and subquery",
			[]string{"SCAN cus0", "LIST SUBQUERY 1", "SCAN cus1", "SEARCH cus0 USING INTEGER PRIMARY KEY (rowid=?)"},
			[]string{"PRIMARY KEY"},
			[]string{"cus0", "cus1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := parseSQLite(tt.lines)
			assert.Equal(t, tt.indexes, plan.Indexes)
			assert.Equal(t, tt.scans, plan.FullScans)
		})
	}
}

func TestSQLiteAnalyzer_Explain(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, testmodel.Load(ctx, db))
	_, err = db.ExecContext(ctx, "CREATE INDEX idx_items_order ON items (order_id)")
	require.NoError(t, err)

	a := NewSQLiteAnalyzer(db)

	plan, err := a.Explain(ctx, "SELECT title FROM orders WHERE id = ?", []any{10})
	require.NoError(t, err)
	assert.Equal(t, []string{"PRIMARY KEY"}, plan.Indexes)
	assert.False(t, plan.FullScan())

	plan, err = a.Explain(ctx, "SELECT title FROM orders WHERE title = ?", []any{"order1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, plan.FullScans)
	assert.Contains(t, plan.String(), "full scans: orders")

	plan, err = a.Explain(ctx, "SELECT sku FROM items WHERE order_id = ?", []any{10})
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_items_order"}, plan.Indexes)

	_, err = a.Explain(ctx, "SELECT nope FROM missing", nil)
	assert.Error(t, err)

	_, err = a.ExplainAnalyze(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrAnalyzeUnsupported)
}
