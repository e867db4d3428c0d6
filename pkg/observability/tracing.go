package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer trace.Tracer = noop.NewTracerProvider().Tracer("comet")

// GetTracer returns the global tracer. Before Init runs it is a no-op.
func GetTracer() trace.Tracer {
	return tracer
}

// Span wraps an OpenTelemetry span. Attributes batch until End so hot parse
// paths pay one SetAttributes call instead of many.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan opens a span named comet.<operation>.
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, "comet."+operation)
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute queues an attribute for the span.
func (s *Span) SetAttribute(key string, value any) {
	s.attributes = append(s.attributes, toAttr(key, value))
}

func toAttr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	}
	return attribute.String(key, fmt.Sprintf("%v", value))
}

// SetStatus sets the span status.
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End flushes queued attributes and closes the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// ParseTracer traces the phases of one parse: load, detect, parse, merge.
type ParseTracer struct {
	source  string
	metrics *ParseMetrics
}

// NewParseTracer creates a tracer for one named input.
func NewParseTracer(source string, metrics *ParseMetrics) *ParseTracer {
	return &ParseTracer{source: source, metrics: metrics}
}

// TracePhase runs fn inside a span for one parse phase and records its
// duration metric.
func (pt *ParseTracer) TracePhase(ctx context.Context, phase string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, phase)
	defer span.End()
	span.SetAttribute("source", pt.source)

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	if pt.metrics != nil {
		pt.metrics.RecordPhase(phase, d, err)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// Inject writes the current trace context into a string map carrier.
func Inject(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract reads a trace context from a string map carrier.
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
