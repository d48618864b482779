// Package tracer provides distributed tracing abstractions for relmap.
// It supports OpenTelemetry and allows custom tracer implementations.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for binding and query execution.
type Tracer interface {
	// StartSpan starts a new tracing span with the given name
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span that captures the execution of an operation.
type Span interface {
	// SetAttributes sets key-value attributes on the span
	SetAttributes(attrs ...attribute.KeyValue)
	// RecordError records an error that occurred during the span
	RecordError(err error)
	// SetStatus sets the status code and description of the span
	SetStatus(code codes.Code, description string)
	// End marks the span as complete
	End()
}

// NoopTracer is the default tracer; it records nothing.
type NoopTracer struct{}

// StartSpan returns the context unchanged with a no-op span.
func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan is a span that does nothing.
type NoopSpan struct{}

// SetAttributes does nothing.
func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}

// RecordError does nothing.
func (n *NoopSpan) RecordError(_ error) {}

// SetStatus does nothing.
func (n *NoopSpan) SetStatus(_ codes.Code, _ string) {}

// End does nothing.
func (n *NoopSpan) End() {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a new OpenTelemetry tracer adapter.
// The provided tracer must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// StartSpan starts a new OpenTelemetry span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &OtelSpan{span: span}
}

// OtelSpan wraps an OpenTelemetry span.
type OtelSpan struct {
	span trace.Span
}

// SetAttributes sets OpenTelemetry attributes on the span.
func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// RecordError records an error on the OpenTelemetry span.
func (s *OtelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// SetStatus sets the status of the OpenTelemetry span.
func (s *OtelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End completes the OpenTelemetry span.
func (s *OtelSpan) End() {
	s.span.End()
}

// QueryMetadata describes one executed statement.
type QueryMetadata struct {
	// SQL is the rendered statement.
	SQL string
	// Duration is how long the statement took, rows included.
	Duration time.Duration
	// Rows is the number of rows read.
	Rows int
	// Error is any error that occurred during execution.
	Error error
	// Database is the dialect name (postgres, mysql, sqlite).
	Database string
	// Operation is the named repository operation, if any.
	Operation string
	// Table is the root table of the statement.
	Table string
}

// AddQueryAttributes adds database semantic convention attributes to a span.
// See: https://opentelemetry.io/docs/specs/semconv/database/
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", meta.Database),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", "SELECT"),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
		attribute.Int("db.rows", meta.Rows),
	}
	if meta.Table != "" {
		attrs = append(attrs, attribute.String("db.table", meta.Table))
	}
	if meta.Operation != "" {
		attrs = append(attrs, attribute.String("relmap.operation", meta.Operation))
	}
	span.SetAttributes(attrs...)
	Finish(span, meta.Error)
}

// BindMetadata describes one binding of a compiled operation.
type BindMetadata struct {
	Operation string
	Entity    string
	// Emitted and Dropped count leaf conditions.
	Emitted int
	Dropped int
	// Joins is the number of joins emitted.
	Joins int
	Error error
}

// AddBindAttributes records a binding on span.
func AddBindAttributes(span Span, meta *BindMetadata) {
	span.SetAttributes(
		attribute.String("relmap.operation", meta.Operation),
		attribute.String("relmap.entity", meta.Entity),
		attribute.Int("relmap.conditions.emitted", meta.Emitted),
		attribute.Int("relmap.conditions.dropped", meta.Dropped),
		attribute.Int("relmap.joins", meta.Joins),
	)
	Finish(span, meta.Error)
}

// Finish sets the span status from err.
func Finish(span Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
