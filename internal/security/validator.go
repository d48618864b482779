// Package security validates identifiers taken from entity metadata and the
// statements rendered from them before they reach a database.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeIdentifier is returned for table, column or alias names that cannot
// be embedded into a statement.
var ErrUnsafeIdentifier = errors.New("unsafe identifier")

// ErrUnsafeStatement is returned when a rendered statement matches a dangerous pattern.
var ErrUnsafeStatement = errors.New("dangerous SQL pattern detected")

// identifierPattern accepts plain and schema-qualified identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateIdentifier rejects names that would need escaping beyond dialect quoting.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return nil
}

// Validator checks rendered statements against injection patterns.
type Validator struct {
	patterns []*regexp.Regexp
	strict   bool
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithStrict enables strict validation mode.
func WithStrict(strict bool) ValidatorOption {
	return func(v *Validator) {
		v.strict = strict
	}
}

// NewValidator creates a validator with the default dangerous patterns.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		patterns: compilePatterns(dangerousPatterns),
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.strict {
		v.patterns = append(v.patterns, compilePatterns(strictPatterns)...)
	}

	return v
}

// dangerousPatterns never appear in statements rendered from metadata, so a
// match means an identifier or literal leaked into the SQL text.
var dangerousPatterns = []string{
	`--[\s]`,
	`/\*.*\*/`,
	`#[\s]`,

	`;\s*DROP\s+`,
	`;\s*DELETE\s+`,
	`;\s*TRUNCATE\s+`,
	`;\s*ALTER\s+`,
	`;\s*CREATE\s+`,

	`UNION\s+ALL\s+SELECT`,
	`UNION\s+SELECT`,

	`XP_CMDSHELL`,
	`\bEXEC\s*\(`,
	`\bEXECUTE\s*\(`,
	`SP_EXECUTESQL`,

	`INFORMATION_SCHEMA`,
	`PG_SLEEP\s*\(`,
	`BENCHMARK\s*\(`,
	`WAITFOR\s+DELAY`,

	`\s+OR\s+1\s*=\s*1\b`,
	`\s+OR\s+'1'\s*=\s*'1'`,
}

// strictPatterns reject any literal string in the statement body.
var strictPatterns = []string{
	`'[^']*'`,
	`\bUNION\b`,
	`\bEXEC\b`,
}

// ValidateQuery checks a rendered statement.
func (v *Validator) ValidateQuery(query string) error {
	normalized := strings.ToUpper(query)

	for _, pattern := range v.patterns {
		if pattern.MatchString(normalized) {
			return fmt.Errorf("%w: %s", ErrUnsafeStatement, pattern.String())
		}
	}

	return nil
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}
