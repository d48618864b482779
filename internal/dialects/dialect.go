// Package dialects provides database-specific SQL dialect implementations for
// PostgreSQL, MySQL, and SQLite: identifier quoting, placeholders and pattern
// matching syntax.
package dialects

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupportedDialect is returned by Lookup for unregistered names.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

// Dialect defines database-specific behaviors.
type Dialect interface {
	// Name returns the canonical dialect name.
	Name() string
	// QuoteIdentifier quotes a table, alias or column name.
	QuoteIdentifier(string) string
	// Placeholder returns the placeholder for the 1-based parameter index.
	Placeholder(int) string
	// Like returns the pattern operator, "LIKE" or "NOT LIKE" or a
	// case-insensitive variant when the dialect has one. The bool result
	// reports whether the operator already ignores case.
	Like(not, ignoreCase bool) (string, bool)
	// LikeEscape returns the ESCAPE clause appended to patterns escaped
	// with a backslash, or "" when backslash is the default.
	LikeEscape() string
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect registers a database dialect by driver name.
func RegisterDialect(name string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[name] = d
}

// Lookup returns the dialect registered under a driver name.
func Lookup(name string) (Dialect, error) {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
}

// GetDialect retrieves a registered dialect by driver name, panics if not found.
func GetDialect(name string) Dialect {
	d, err := Lookup(name)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Names returns the registered driver names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func like(not bool) string {
	if not {
		return "NOT LIKE"
	}
	return "LIKE"
}
