package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// Mask replaces sensitive values in logs.
const Mask = "***REDACTED***"

const maxValueLen = 100

// DefaultSensitiveFields are the column names masked when none are given.
var DefaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

// Sanitizer masks sensitive query parameters before they reach a log.
type Sanitizer struct {
	fields  map[string]bool
	pattern *regexp.Regexp
}

// NewSanitizer creates a sanitizer for the given column names, or for
// DefaultSensitiveFields when none are given.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = DefaultSensitiveFields
	}
	fields := make(map[string]bool, len(sensitiveFields))
	quoted := make([]string, 0, len(sensitiveFields))
	for _, f := range sensitiveFields {
		f = strings.ToLower(f)
		fields[f] = true
		quoted = append(quoted, regexp.QuoteMeta(f))
	}
	return &Sanitizer{
		fields:  fields,
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Sensitive reports whether column names a sensitive field.
func (s *Sanitizer) Sensitive(column string) bool {
	return s.fields[strings.ToLower(column)]
}

// MaskParams masks every parameter when sql mentions a sensitive field.
// The input slice is never modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.pattern.MatchString(sql) {
		return params
	}
	masked := make([]any, len(params))
	for i := range masked {
		masked[i] = Mask
	}
	return masked
}

// MaskColumns masks the parameters whose bound column is sensitive.
// columns[i] names the column params[i] is compared against; parameters
// without a known column fall back to MaskParams semantics on sql.
func (s *Sanitizer) MaskColumns(sql string, columns []string, params []any) []any {
	if len(columns) != len(params) {
		return s.MaskParams(sql, params)
	}
	var masked []any
	for i, col := range columns {
		if !s.Sensitive(col) {
			continue
		}
		if masked == nil {
			masked = append([]any(nil), params...)
		}
		masked[i] = Mask
	}
	if masked == nil {
		return params
	}
	return masked
}

// FormatParams renders parameters for logging, truncating long values.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxValueLen {
		return str[:maxValueLen] + "..."
	}
	return str
}
