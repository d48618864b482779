package dialects

import "strings"

// SQLiteDialect implements SQLite-specific SQL dialect.
type SQLiteDialect struct{}

func init() {
	RegisterDialect("sqlite", &SQLiteDialect{})
	RegisterDialect("sqlite3", &SQLiteDialect{})
}

// Name returns "sqlite".
func (d *SQLiteDialect) Name() string { return "sqlite" }

// QuoteIdentifier quotes a SQLite identifier using double quotes.
func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns SQLite placeholder format (always "?").
func (d *SQLiteDialect) Placeholder(_ int) string {
	return "?"
}

// Like has no case-insensitive operator for non-ASCII text; callers lower
// both sides.
func (d *SQLiteDialect) Like(not, _ bool) (string, bool) {
	return like(not), false
}

// LikeEscape declares backslash as the escape character, SQLite has none
// by default.
func (d *SQLiteDialect) LikeEscape() string { return ` ESCAPE '\'` }
