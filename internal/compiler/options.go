package compiler

import (
	"github.com/coregx/relmap/internal/convert"
	"github.com/coregx/relmap/internal/expr"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/tracer"
)

// Evaluator evaluates default-value programs.
type Evaluator interface {
	Eval(p *expr.Program, env expr.Env) (any, error)
}

var defaultEvaluator = expr.NewEvaluator()

// Option is a functional option for configuring a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for resolution and binding diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTracer sets the tracer used for bind spans.
func WithTracer(t tracer.Tracer) Option {
	return func(b *Builder) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithConverter sets the type conversion service.
func WithConverter(c convert.Service) Option {
	return func(b *Builder) {
		if c != nil {
			b.converter = c
		}
	}
}

// WithEvaluator sets the default-value evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(b *Builder) {
		if e != nil {
			b.evaluator = e
		}
	}
}
