package meta

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ErrUnknownProperty is returned when a binding has no property of the given name.
var ErrUnknownProperty = errors.New("unknown property")

// Binding is the registration-time accessor table of a destination type.
// Property lookups are resolved once when the binding is built; per-row
// work only calls the cached accessors.
type Binding interface {
	// New allocates an empty destination value.
	New() any
	// Set assigns value to property on obj, converting numeric kinds where needed.
	Set(obj any, property string, value any) error
	// Get reads property from obj.
	Get(obj any, property string) (any, bool)
	// Has reports whether the destination declares property.
	Has(property string) bool
	// Type is the type of values returned by New.
	Type() reflect.Type
}

// Record is a map-backed destination used when no Go type is registered.
type Record map[string]any

// RecordBinding binds results into Record values.
type RecordBinding struct{}

var recordType = reflect.TypeOf(Record{})

// New implements Binding.
func (RecordBinding) New() any { return Record{} }

// Set implements Binding.
func (RecordBinding) Set(obj any, property string, value any) error {
	rec, ok := obj.(Record)
	if !ok {
		return fmt.Errorf("record binding: expected Record, got %T", obj)
	}
	rec[property] = value
	return nil
}

// Get implements Binding.
func (RecordBinding) Get(obj any, property string) (any, bool) {
	rec, ok := obj.(Record)
	if !ok {
		return nil, false
	}
	v, ok := rec[property]
	return v, ok
}

// Has implements Binding. Records accept any property.
func (RecordBinding) Has(string) bool { return true }

// Type implements Binding.
func (RecordBinding) Type() reflect.Type { return recordType }

// accessor reads and writes one struct field by its cached index path.
type accessor struct {
	index []int
	typ   reflect.Type
}

func (a *accessor) field(root reflect.Value, alloc bool) (reflect.Value, bool) {
	v := root
	for i, idx := range a.index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v, true
}

// StructBinding binds results into pointers to a struct type.
// Property names come from the db tag, or the Go field name with a lowercase
// first letter ("ID" becomes "id").
type StructBinding struct {
	typ       reflect.Type
	accessors map[string]*accessor
}

type bindingCache struct {
	mu    sync.RWMutex
	cache map[reflect.Type]*StructBinding
}

var globalBindings = &bindingCache{cache: make(map[reflect.Type]*StructBinding)}

// BindStruct returns the cached binding for the struct type of v.
// v may be a struct value, a pointer to a struct, or a reflect.Type.
func BindStruct(v any) (*StructBinding, error) {
	typ, ok := v.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(v)
	}
	if typ == nil {
		return nil, errors.New("bind struct: nil type")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("bind struct: expected struct, got %s", typ.Kind())
	}

	globalBindings.mu.RLock()
	b, ok := globalBindings.cache[typ]
	globalBindings.mu.RUnlock()
	if ok {
		return b, nil
	}

	globalBindings.mu.Lock()
	defer globalBindings.mu.Unlock()

	if b, ok := globalBindings.cache[typ]; ok {
		return b, nil
	}

	b = &StructBinding{typ: typ, accessors: make(map[string]*accessor)}
	b.collect(typ, nil)
	globalBindings.cache[typ] = b
	return b, nil
}

// MustBindStruct is BindStruct that panics on error.
func MustBindStruct(v any) *StructBinding {
	b, err := BindStruct(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *StructBinding) collect(typ reflect.Type, index []int) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldIndex := append(append([]int{}, index...), i)

		tag, hasTag := field.Tag.Lookup("db")
		if tag == "-" {
			continue
		}

		if field.Anonymous && !hasTag {
			inner := field.Type
			if inner.Kind() == reflect.Ptr {
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				b.collect(inner, fieldIndex)
				continue
			}
		}

		name := propertyName(field.Name)
		if hasTag {
			name = strings.TrimSpace(strings.Split(tag, ",")[0])
		}
		// Outer fields shadow promoted ones.
		if _, exists := b.accessors[name]; exists && len(index) > 0 {
			continue
		}
		b.accessors[name] = &accessor{index: fieldIndex, typ: field.Type}
	}
}

func propertyName(goName string) string {
	if strings.ToUpper(goName) == goName {
		return strings.ToLower(goName)
	}
	r, size := utf8.DecodeRuneInString(goName)
	return string(unicode.ToLower(r)) + goName[size:]
}

// New implements Binding.
func (b *StructBinding) New() any {
	return reflect.New(b.typ).Interface()
}

// Type implements Binding.
func (b *StructBinding) Type() reflect.Type {
	return reflect.PointerTo(b.typ)
}

// Has implements Binding.
func (b *StructBinding) Has(property string) bool {
	_, ok := b.accessors[property]
	return ok
}

// Properties returns the bound property names.
func (b *StructBinding) Properties() []string {
	return sortedKeys(b.accessors)
}

func (b *StructBinding) root(obj any) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Type() != b.typ {
		return reflect.Value{}, fmt.Errorf("struct binding: expected *%s, got %T", b.typ, obj)
	}
	return v.Elem(), nil
}

// Set implements Binding.
func (b *StructBinding) Set(obj any, property string, value any) error {
	acc, ok := b.accessors[property]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownProperty, b.typ.Name(), property)
	}
	root, err := b.root(obj)
	if err != nil {
		return err
	}
	field, _ := acc.field(root, true)
	return assign(field, value)
}

// Get implements Binding.
func (b *StructBinding) Get(obj any, property string) (any, bool) {
	acc, ok := b.accessors[property]
	if !ok {
		return nil, false
	}
	root, err := b.root(obj)
	if err != nil {
		return nil, false
	}
	field, ok := acc.field(root, false)
	if !ok {
		return nil, false
	}
	return field.Interface(), true
}

// assign stores value into dst, allocating pointers and converting between
// convertible kinds.
func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
		return nil
	case dst.Kind() == reflect.Ptr && src.Type().AssignableTo(dst.Type().Elem()):
		ptr := reflect.New(dst.Type().Elem())
		ptr.Elem().Set(src)
		dst.Set(ptr)
		return nil
	case dst.Kind() == reflect.Ptr && convertible(src.Type(), dst.Type().Elem()):
		ptr := reflect.New(dst.Type().Elem())
		ptr.Elem().Set(src.Convert(dst.Type().Elem()))
		dst.Set(ptr)
		return nil
	case convertible(src.Type(), dst.Type()):
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

// convertible allows numeric conversions and string-to-string named types,
// never number-to-string (which reflect would turn into a rune).
func convertible(src, dst reflect.Type) bool {
	if !scalarKind(src.Kind()) || !scalarKind(dst.Kind()) || !src.ConvertibleTo(dst) {
		return false
	}
	return (src.Kind() == reflect.String) == (dst.Kind() == reflect.String)
}

func scalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	}
	return false
}
