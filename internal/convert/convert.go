// Package convert translates values between their in-memory representation
// and the representation handed to (and read back from) the storage driver.
package convert

import (
	"errors"
	"fmt"

	"github.com/coregx/relmap/internal/meta"
)

// ErrConversion is returned when a value cannot be represented as the
// declared type of a field.
var ErrConversion = errors.New("conversion failed")

// Service converts values for one field in both directions.
// Nil always converts to nil.
type Service interface {
	// ToStorage converts an in-memory value into the value bound as a statement argument.
	ToStorage(v any, f *meta.Field) (any, error)
	// ToRuntime converts a value read from storage into its in-memory form.
	ToRuntime(v any, f *meta.Field) (any, error)
}

// Default is the built-in Service covering every meta.FieldType.
//
//	type     runtime          storage
//	string   string           string
//	int      int              int64
//	int64    int64            int64
//	float    float64          float64
//	bool     bool             bool
//	time     time.Time        time.Time
//	uuid     uuid.UUID        string
//	json     map/slice/value  string
//	any      unchanged        unchanged ([]byte becomes string)
type Default struct{}

var _ Service = Default{}

// ToStorage implements Service.
func (Default) ToStorage(v any, f *meta.Field) (any, error) {
	if v == nil {
		return nil, nil
	}

	out, err := toStorage(v, fieldType(f))
	if err != nil {
		return nil, wrap(f, v, err)
	}
	return out, nil
}

// ToRuntime implements Service.
func (Default) ToRuntime(v any, f *meta.Field) (any, error) {
	if v == nil {
		return nil, nil
	}

	out, err := toRuntime(v, fieldType(f))
	if err != nil {
		return nil, wrap(f, v, err)
	}
	return out, nil
}

func toStorage(v any, t meta.FieldType) (any, error) {
	switch t {
	case meta.TypeString:
		return String(v)
	case meta.TypeInt, meta.TypeInt64:
		return Int64(v)
	case meta.TypeFloat:
		return Float64(v)
	case meta.TypeBool:
		return Bool(v)
	case meta.TypeTime:
		return Time(v)
	case meta.TypeUUID:
		id, err := UUID(v)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case meta.TypeJSON:
		return encodeJSON(v)
	default:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	}
}

func toRuntime(v any, t meta.FieldType) (any, error) {
	switch t {
	case meta.TypeString:
		return String(v)
	case meta.TypeInt:
		n, err := Int64(v)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case meta.TypeInt64:
		return Int64(v)
	case meta.TypeFloat:
		return Float64(v)
	case meta.TypeBool:
		return Bool(v)
	case meta.TypeTime:
		return Time(v)
	case meta.TypeUUID:
		return UUID(v)
	case meta.TypeJSON:
		return decodeJSON(v)
	default:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	}
}

func fieldType(f *meta.Field) meta.FieldType {
	if f == nil || f.Type == "" {
		return meta.TypeAny
	}
	return f.Type
}

func wrap(f *meta.Field, v any, err error) error {
	name := "<value>"
	if f != nil {
		name = f.Name
	}
	return fmt.Errorf("%w: %s: %T as %s: %w", ErrConversion, name, v, fieldType(f), err)
}
