package dialects

import (
	"fmt"
	"strings"
)

// PostgresDialect implements PostgreSQL-specific SQL dialect.
type PostgresDialect struct{}

func init() {
	RegisterDialect("postgres", &PostgresDialect{})
	RegisterDialect("postgresql", &PostgresDialect{})
}

// Name returns "postgres".
func (d *PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier quotes a PostgreSQL identifier using double quotes.
func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Placeholder returns PostgreSQL placeholder format ($1, $2, etc.).
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Like uses ILIKE for case-insensitive matching.
func (d *PostgresDialect) Like(not, ignoreCase bool) (string, bool) {
	if !ignoreCase {
		return like(not), false
	}
	if not {
		return "NOT ILIKE", true
	}
	return "ILIKE", true
}

// LikeEscape returns "": backslash is the default escape character.
func (d *PostgresDialect) LikeEscape() string { return "" }
