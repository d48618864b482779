package meta

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coregx/relmap/internal/security"
)

// Predefined metadata errors.
var (
	// ErrUnknownEntity is returned when an entity name is not registered.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidEntity is returned when an entity description is incomplete or inconsistent.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Provider supplies entity descriptions to the compiler.
type Provider interface {
	Entity(name string) (*Entity, error)
}

// Registry is the default in-memory Provider.
// Registration is expected at startup; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	bindings map[string]Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		bindings: make(map[string]Binding),
	}
}

// Register adds an entity after checking it in isolation.
// Cross-entity references are checked by Validate.
func (r *Registry) Register(e *Entity) error {
	if err := checkEntity(e); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidEntity, e.Name)
	}
	r.entities[e.Name] = e
	return nil
}

// MustRegister is Register that panics on error. Intended for static models.
func (r *Registry) MustRegister(entities ...*Entity) *Registry {
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Bind associates a destination binding with an entity, used when entities
// are materialized outside an operation (deferred relation resolution).
func (r *Registry) Bind(entity string, b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[entity]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	r.bindings[entity] = b
	return nil
}

// Binding returns the binding registered for an entity, or a RecordBinding.
func (r *Registry) Binding(entity string) Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.bindings[entity]; ok {
		return b
	}
	return RecordBinding{}
}

// EntityFor returns the entity whose registered binding produces values of
// the same type as b, if any.
func (r *Registry) EntityFor(b Binding) (*Entity, bool) {
	if b == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, candidate := range r.bindings {
		if candidate.Type() == b.Type() {
			return r.entities[name], true
		}
	}
	return nil, false
}

// Entity implements Provider.
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// Names returns the registered entity names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks relation targets and mapped-by references across entities.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range sortedKeys(r.entities) {
		e := r.entities[name]
		for _, f := range e.fields {
			if f.Relation == nil {
				continue
			}
			if err := r.checkRelation(e, f); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) checkRelation(e *Entity, f *Field) error {
	rel := f.Relation
	target, ok := r.entities[rel.Target]
	if !ok {
		return fmt.Errorf("%w: %s.%s targets unknown entity %s", ErrInvalidEntity, e.Name, f.Name, rel.Target)
	}

	if rel.Ownership != Mapped {
		return nil
	}

	owner, ok := target.Field(rel.MappedBy)
	if !ok || owner.Relation == nil {
		return fmt.Errorf("%w: %s.%s is mapped by unknown relation %s.%s",
			ErrInvalidEntity, e.Name, f.Name, target.Name, rel.MappedBy)
	}
	if owner.Relation.Target != e.Name {
		return fmt.Errorf("%w: %s.%s is mapped by %s.%s which targets %s",
			ErrInvalidEntity, e.Name, f.Name, target.Name, owner.Name, owner.Relation.Target)
	}
	return nil
}

func checkEntity(e *Entity) error {
	if e == nil || e.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidEntity)
	}
	if err := security.ValidateIdentifier(e.Table); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEntity, e.Name, err)
	}
	if e.ID == nil || e.ID.Relation != nil {
		return fmt.Errorf("%w: %s has no scalar id field", ErrInvalidEntity, e.Name)
	}

	seen := make(map[string]bool, len(e.fields))
	for _, f := range e.fields {
		if f.Name == "" || seen[f.Name] {
			return fmt.Errorf("%w: %s has empty or duplicate field %q", ErrInvalidEntity, e.Name, f.Name)
		}
		seen[f.Name] = true

		if err := checkField(e, f); err != nil {
			return err
		}
	}

	if ext := e.Extension; ext != nil {
		if seen[ext.Field] {
			return fmt.Errorf("%w: %s extension segment %q shadows a field", ErrInvalidEntity, e.Name, ext.Field)
		}
		for _, ident := range []string{ext.Table, ext.IDColumn} {
			if err := security.ValidateIdentifier(ident); err != nil {
				return fmt.Errorf("%w: %s extension: %w", ErrInvalidEntity, e.Name, err)
			}
		}
	}
	return nil
}

func checkField(e *Entity, f *Field) error {
	if f.Type != "" && !f.Type.Valid() {
		return fmt.Errorf("%w: %s.%s has unsupported type %q", ErrInvalidEntity, e.Name, f.Name, f.Type)
	}

	rel := f.Relation
	if rel != nil && rel.Ownership == Owned && rel.Cardinality == ManyToMany && rel.JoinTable == nil {
		return fmt.Errorf("%w: %s.%s is an owned many-to-many relation without join table", ErrInvalidEntity, e.Name, f.Name)
	}
	needsColumn := rel == nil || (rel.Ownership == Owned && rel.JoinTable == nil)
	if needsColumn {
		if err := security.ValidateIdentifier(f.Column); err != nil {
			return fmt.Errorf("%w: %s.%s: %w", ErrInvalidEntity, e.Name, f.Name, err)
		}
	}
	if rel == nil {
		return nil
	}

	if rel.Target == "" {
		return fmt.Errorf("%w: %s.%s has no relation target", ErrInvalidEntity, e.Name, f.Name)
	}
	if rel.Ownership == Mapped && rel.MappedBy == "" {
		return fmt.Errorf("%w: %s.%s is mapped but names no owning field", ErrInvalidEntity, e.Name, f.Name)
	}
	if jt := rel.JoinTable; jt != nil {
		for _, ident := range []string{jt.Name, jt.OwnerColumn, jt.TargetColumn} {
			if err := security.ValidateIdentifier(ident); err != nil {
				return fmt.Errorf("%w: %s.%s join table: %w", ErrInvalidEntity, e.Name, f.Name, err)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
