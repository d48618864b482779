package compiler

import (
	"errors"
	"fmt"
)

// Configuration errors. They are raised while an operation is registered and
// make the operation unusable.
var (
	// ErrUnknownField is returned when a path segment names no field of its entity.
	ErrUnknownField = errors.New("unknown field")
	// ErrRelationTerminal is returned when a condition path ends on a relation field.
	ErrRelationTerminal = errors.New("path ends on a relation field")
	// ErrNotRelation is returned when a non-terminal path segment names a scalar field.
	ErrNotRelation = errors.New("path traverses a non-relation field")
	// ErrExtensionPlacement is returned when the extension segment is not the
	// second-to-last segment of a path, or the extension sigil is used on a
	// path that does not traverse the extension table.
	ErrExtensionPlacement = errors.New("extension segment must precede the attribute name")
	// ErrManyValuedProjection is returned when a result or order-by path crosses
	// a one-to-many or many-to-many relation.
	ErrManyValuedProjection = errors.New("result path crosses a many-valued relation")
	// ErrInvalidRelation is returned for relation shapes that cannot be joined.
	ErrInvalidRelation = errors.New("invalid relation")
	// ErrDuplicateDirectValue is returned when a second direct-value result is declared.
	ErrDuplicateDirectValue = errors.New("operation already declares a direct-value result")
	// ErrUnknownOrderProperty is returned when order-by names no result property.
	ErrUnknownOrderProperty = errors.New("order-by property is not a result field")
	// ErrInvalidCondition is returned for malformed condition declarations.
	ErrInvalidCondition = errors.New("invalid condition")
)

// Execution errors. They are raised while binding an invocation.
var (
	// ErrMissingParam is returned when a condition refers past the supplied parameters.
	ErrMissingParam = errors.New("missing parameter")
	// ErrPropertyAccess is returned when an embedded property cannot be read
	// from a composite parameter.
	ErrPropertyAccess = errors.New("property access failed")
	// ErrConversion is returned when a bound value cannot be converted to the field type.
	ErrConversion = errors.New("value conversion failed")
	// ErrDefaultValue is returned when a default expression fails to evaluate.
	ErrDefaultValue = errors.New("default value evaluation failed")
)

// ConfigError reports a registration failure of one operation.
type ConfigError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("operation %s: path %q: %v", e.Operation, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExecError reports a binding failure of one condition.
type ExecError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("operation %s: condition %q: %v", e.Operation, e.Path, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func configErr(op, path string, sentinel error, format string, args ...any) error {
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	}
	return &ConfigError{Operation: op, Path: path, Err: err}
}

func execErr(op, path string, sentinel error, cause error) error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &ExecError{Operation: op, Path: path, Err: err}
}
