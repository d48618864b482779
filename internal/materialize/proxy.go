package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coregx/relmap/internal/meta"
)

// Proxy errors.
var (
	// ErrNoRepository is returned when a proxy is resolved without a repository.
	ErrNoRepository = errors.New("proxy has no repository")
	// ErrRelationLoad is returned when the repository cannot load relations.
	ErrRelationLoad = errors.New("repository cannot load relations")
)

// Repository resolves entities by id. It is called only by proxies, never
// while a row is materialized.
type Repository interface {
	ResolveByID(ctx context.Context, entity string, id any) (any, error)
}

// RelationLoader is implemented by repositories that can fetch a relation
// of an entity that was not projected by the operation.
type RelationLoader interface {
	LoadRelation(ctx context.Context, entity string, id any, relation string) (any, error)
}

// Ref is a deferred relation: it holds the foreign id and resolves the
// related entity on first successful Get.
type Ref struct {
	Entity string
	ID     any

	repo   Repository
	mu     sync.Mutex
	loaded bool
	value  any
}

// NewRef creates a deferred reference to entity id, resolved through repo.
func NewRef(entity string, id any, repo Repository) *Ref {
	return &Ref{Entity: entity, ID: id, repo: repo}
}

// Get resolves the referenced entity. Failed resolutions are retried on the
// next call.
func (r *Ref) Get(ctx context.Context) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.value, nil
	}
	if r.repo == nil {
		return nil, fmt.Errorf("%w: %s(%v)", ErrNoRepository, r.Entity, r.ID)
	}
	v, err := r.repo.ResolveByID(ctx, r.Entity, r.ID)
	if err != nil {
		return nil, err
	}
	r.value, r.loaded = v, true
	return v, nil
}

// Loaded reports whether Get already resolved the reference.
func (r *Ref) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

func (r *Ref) String() string {
	return fmt.Sprintf("%s(%v)", r.Entity, r.ID)
}

// Object wraps a materialized value with the identity needed to load what
// the operation did not project.
type Object struct {
	Value  any
	Entity *meta.Entity
	ID     any
	// Dynamic holds extension attributes of projections, keyed by their
	// full path, and ad-hoc values, keyed by property name.
	Dynamic map[string]any

	repo      Repository
	mu        sync.Mutex
	relations map[string]any
}

// Load fetches a relation of the underlying entity once and caches it.
func (o *Object) Load(ctx context.Context, relation string) (any, error) {
	if o.ID == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingProxyID, o.Entity, relation)
	}
	loader, ok := o.repo.(RelationLoader)
	if !ok {
		return nil, ErrRelationLoad
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := o.relations[relation]; ok {
		return v, nil
	}
	v, err := loader.LoadRelation(ctx, o.Entity.Name, o.ID, relation)
	if err != nil {
		return nil, err
	}
	if o.relations == nil {
		o.relations = make(map[string]any)
	}
	o.relations[relation] = v
	return v, nil
}

// Unwrap returns the value inside an Object, or v itself.
func Unwrap(v any) any {
	if o, ok := v.(*Object); ok {
		return o.Value
	}
	return v
}

// As unwraps v and asserts it to T.
func As[T any](v any) (T, bool) {
	t, ok := Unwrap(v).(T)
	return t, ok
}
