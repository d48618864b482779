// Package operation compiles declarative operation descriptors into
// condition query builders.
//
// A descriptor names an entity, the fields an invocation returns, the
// conditions it filters by and its ordering:
//
//	operations:
//	  - name: ordersOfCustomer
//	    entity: Order
//	    results:
//	      - {path: title}
//	      - {path: customer.name, property: customerName}
//	    conditions:
//	      - {path: customer.name, operator: eq}
//	      - {path: total, operator: gt, default: "minTotal"}
//	    order_by:
//	      - {property: title, direction: desc}
//
// Conditions without an explicit param and without a default take the next
// runtime argument in declaration order.
package operation

import (
	"errors"
	"fmt"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/meta"
)

// ErrDescriptor is returned for malformed descriptors.
var ErrDescriptor = errors.New("invalid operation descriptor")

// Descriptor is the declarative form of an operation.
type Descriptor struct {
	Name       string          `yaml:"name"`
	Entity     string          `yaml:"entity"`
	Results    []ResultSpec    `yaml:"results"`
	Conditions []ConditionSpec `yaml:"conditions"`
	OrderBy    []OrderSpec     `yaml:"order_by"`
	// Limit caps the rows of one invocation; zero is unlimited.
	Limit int `yaml:"limit"`
}

// ResultSpec declares one projected field. Property defaults to the path;
// a direct result returns the bare value instead of an object.
type ResultSpec struct {
	Path     string `yaml:"path"`
	Property string `yaml:"property"`
	Type     string `yaml:"type"`
	Order    string `yaml:"order"`
	Direct   bool   `yaml:"direct"`
}

// ConditionSpec declares one condition or, with Group set, a parenthesized
// group of conditions.
type ConditionSpec struct {
	Path       string          `yaml:"path"`
	Operator   string          `yaml:"operator"`
	Param      *int            `yaml:"param"`
	Default    string          `yaml:"default"`
	Property   string          `yaml:"property"`
	Combinator string          `yaml:"combinator"`
	Nullable   bool            `yaml:"nullable"`
	IgnoreCase bool            `yaml:"ignore_case"`
	Group      []ConditionSpec `yaml:"group"`
}

// OrderSpec orders by a declared result property.
type OrderSpec struct {
	Property  string `yaml:"property"`
	Direction string `yaml:"direction"`
}

// Compile builds the operation described by d. Every configuration error is
// raised here, so an operation that fails to compile is never callable.
func Compile(d *Descriptor, provider meta.Provider, opts ...compiler.Option) (*compiler.Builder, error) {
	b, _, err := compile(d, provider, opts...)
	return b, err
}

func compile(d *Descriptor, provider meta.Provider, opts ...compiler.Option) (*compiler.Builder, int, error) {
	if d.Name == "" {
		return nil, 0, fmt.Errorf("%w: missing name", ErrDescriptor)
	}
	entity, err := provider.Entity(d.Entity)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: operation %s: %w", ErrDescriptor, d.Name, err)
	}
	b := compiler.New(d.Name, entity, provider, opts...)

	for _, r := range d.Results {
		if err := addResult(b, r); err != nil {
			return nil, 0, err
		}
	}

	next := 0
	for _, c := range d.Conditions {
		spec, err := conditionSpec(d.Name, c, &next)
		if err != nil {
			return nil, 0, err
		}
		if _, err := b.AddCondition(spec); err != nil {
			return nil, 0, err
		}
	}

	for _, o := range d.OrderBy {
		dir, err := compiler.ParseDirection(o.Direction)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: operation %s: order by %s: %w", ErrDescriptor, d.Name, o.Property, err)
		}
		if err := b.AddOrderBy(o.Property, dir); err != nil {
			return nil, 0, err
		}
	}
	return b, next, nil
}

func addResult(b *compiler.Builder, r ResultSpec) error {
	dir, err := compiler.ParseDirection(r.Order)
	if err != nil {
		return fmt.Errorf("%w: operation %s: result %s: %w", ErrDescriptor, b.Operation(), r.Path, err)
	}
	property := r.Property
	switch {
	case r.Direct && property != "":
		return fmt.Errorf("%w: operation %s: result %s: direct result with property %q",
			ErrDescriptor, b.Operation(), r.Path, property)
	case !r.Direct && property == "":
		property = r.Path
	}
	_, err = b.AddResultField(r.Path, property, meta.FieldType(r.Type), dir)
	return err
}

// conditionSpec converts c, numbering implicit parameters from *next.
// *next ends one past the highest parameter index used.
func conditionSpec(op string, c ConditionSpec, next *int) (compiler.ConditionSpec, error) {
	comb, err := compiler.ParseCombinator(c.Combinator)
	if err != nil {
		return compiler.ConditionSpec{}, fmt.Errorf("%w: operation %s: %s: %w", ErrDescriptor, op, c.Path, err)
	}

	if c.Group != nil {
		if len(c.Group) == 0 {
			return compiler.ConditionSpec{}, fmt.Errorf("%w: operation %s: empty group", ErrDescriptor, op)
		}
		spec := compiler.ConditionSpec{Combinator: comb, Group: make([]compiler.ConditionSpec, 0, len(c.Group))}
		for _, child := range c.Group {
			cs, err := conditionSpec(op, child, next)
			if err != nil {
				return compiler.ConditionSpec{}, err
			}
			spec.Group = append(spec.Group, cs)
		}
		return spec, nil
	}

	name := c.Operator
	if name == "" {
		name = "eq"
	}
	operator, err := compiler.ParseOperator(name)
	if err != nil {
		return compiler.ConditionSpec{}, fmt.Errorf("%w: operation %s: %s: %w", ErrDescriptor, op, c.Path, err)
	}

	spec := compiler.ConditionSpec{
		Path:       c.Path,
		Operator:   operator,
		Param:      -1,
		Default:    c.Default,
		Property:   c.Property,
		Combinator: comb,
		Nullable:   c.Nullable,
		IgnoreCase: c.IgnoreCase,
	}
	switch {
	case c.Param != nil:
		if *c.Param < 0 {
			return compiler.ConditionSpec{}, fmt.Errorf("%w: operation %s: %s: negative param %d",
				ErrDescriptor, op, c.Path, *c.Param)
		}
		spec.Param = *c.Param
		*next = max(*next, spec.Param+1)
	case c.Default == "" && !operator.Valueless():
		spec.Param = *next
		*next++
	}
	return spec, nil
}
