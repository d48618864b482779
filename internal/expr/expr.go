// Package expr compiles and evaluates default-value expressions of
// conditions bound without a runtime argument.
//
// A source containing "${" is a template and yields the interpolated string:
//
//	user-${tenant}
//
// Any other source is a JavaScript expression whose value is returned as-is:
//
//	now.year - 1
//
// Names in both forms resolve against the Env passed at evaluation time.
package expr

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Predefined evaluation errors.
var (
	// ErrCompile is returned by Compile for malformed sources.
	ErrCompile = errors.New("expression does not compile")
	// ErrEval is returned when a compiled expression fails at evaluation time.
	ErrEval = errors.New("expression evaluation failed")
)

// Env is the execution context an expression is evaluated against.
type Env map[string]any

// Program is a compiled expression. Programs are immutable and may be
// evaluated concurrently.
type Program struct {
	src      string
	template bool
	prog     *goja.Program
}

// Source returns the source the program was compiled from.
func (p *Program) Source() string { return p.src }

// IsTemplate reports whether the source was a string template.
func (p *Program) IsTemplate() bool { return p.template }

// Compile parses src once. The resulting program is a function of the
// environment object, so per-call state never leaks into the runtime.
func Compile(src string) (*Program, error) {
	body := src
	template := strings.Contains(src, "${")
	if template {
		body = "`" + strings.ReplaceAll(src, "`", "\\`") + "`"
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrCompile)
	}

	wrapped := "(function($env) { with ($env) { return (" + body + "\n); } })"
	prog, err := goja.Compile("default", wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCompile, src, err)
	}
	return &Program{src: src, template: template, prog: prog}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Evaluator runs programs on pooled runtimes. A runtime is never used by
// two evaluations at once.
type Evaluator struct {
	pool    sync.Pool
	timeout time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout interrupts evaluations running longer than d.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

type vm struct {
	rt  *goja.Runtime
	fns map[*goja.Program]goja.Callable
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	e.pool.New = func() any {
		return &vm{rt: goja.New(), fns: make(map[*goja.Program]goja.Callable)}
	}
	return e
}

// Eval evaluates p against env. JavaScript null and undefined yield nil.
func (e *Evaluator) Eval(p *Program, env Env) (result any, err error) {
	v := e.pool.Get().(*vm)
	defer func() {
		if r := recover(); r != nil {
			// A panicking runtime may be in an inconsistent state; drop it.
			err = fmt.Errorf("%w: %q: %v", ErrEval, p.src, r)
			return
		}
		v.rt.ClearInterrupt()
		e.pool.Put(v)
	}()

	fn, ok := v.fns[p.prog]
	if !ok {
		val, err := v.rt.RunProgram(p.prog)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrEval, p.src, err)
		}
		fn, ok = goja.AssertFunction(val)
		if !ok {
			return nil, fmt.Errorf("%w: %q: not a function", ErrEval, p.src)
		}
		v.fns[p.prog] = fn
	}

	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			v.rt.Interrupt("timeout")
		})
		defer timer.Stop()
	}

	if env == nil {
		env = Env{}
	}
	out, err := fn(goja.Undefined(), v.rt.ToValue(map[string]any(env)))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrEval, p.src, err)
	}
	if goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, nil
	}
	return out.Export(), nil
}
