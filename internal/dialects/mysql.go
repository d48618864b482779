package dialects

import "strings"

// MySQLDialect implements MySQL-specific SQL dialect.
type MySQLDialect struct{}

func init() {
	RegisterDialect("mysql", &MySQLDialect{})
}

// Name returns "mysql".
func (d *MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier quotes a MySQL identifier using backticks.
func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Placeholder returns MySQL placeholder format (always "?").
func (d *MySQLDialect) Placeholder(_ int) string {
	return "?"
}

// Like has no case-insensitive operator; callers lower both sides.
func (d *MySQLDialect) Like(not, _ bool) (string, bool) {
	return like(not), false
}

// LikeEscape returns "": backslash is the default escape character.
func (d *MySQLDialect) LikeEscape() string { return "" }
