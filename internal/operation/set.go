package operation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/meta"
)

var (
	// ErrUnknownOperation is returned by Get for unregistered names.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrDuplicateOperation is returned when a name is registered twice.
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// Operation is a compiled descriptor.
type Operation struct {
	Name    string
	Builder *compiler.Builder
	// Params is the number of runtime arguments an invocation takes.
	Params int
	Limit  int
}

// Set holds compiled operations by name. It is safe for concurrent use.
type Set struct {
	provider meta.Provider
	opts     []compiler.Option

	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewSet creates an empty set compiling against provider with opts.
func NewSet(provider meta.Provider, opts ...compiler.Option) *Set {
	return &Set{
		provider: provider,
		opts:     opts,
		ops:      make(map[string]*Operation),
	}
}

// Add compiles and registers d.
func (s *Set) Add(d *Descriptor) (*Operation, error) {
	b, params, err := compile(d, s.provider, s.opts...)
	if err != nil {
		return nil, err
	}
	op := &Operation{Name: d.Name, Builder: b, Params: params, Limit: d.Limit}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[d.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, d.Name)
	}
	s.ops[d.Name] = op
	return op, nil
}

// Get returns the operation registered under name.
func (s *Set) Get(name string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op, nil
}

// Names returns the registered names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.ops))
	for n := range s.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type document struct {
	Operations []*Descriptor `yaml:"operations"`
}

// LoadYAML decodes descriptors from r and adds them to s. Nothing is added
// when any descriptor fails to compile.
func (s *Set) LoadYAML(r io.Reader) error {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode operations: %w", err)
	}

	staged := NewSet(s.provider, s.opts...)
	for _, d := range doc.Operations {
		if _, err := staged.Add(d); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range staged.ops {
		if _, ok := s.ops[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, name)
		}
	}
	for name, op := range staged.ops {
		s.ops[name] = op
	}
	return nil
}

// LoadFile reads descriptors from a YAML file into s.
func (s *Set) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open operations: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.LoadYAML(f)
}
