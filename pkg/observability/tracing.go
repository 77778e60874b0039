// Package observability provides OpenTelemetry tracing for crmsize
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/udssoftware/crmsize"

// Tracer returns the tracer of the current global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// ComponentTracer names spans after the component that opens them
type ComponentTracer struct {
	component string
}

// NewComponentTracer creates a tracer for one component, e.g. "estimator"
func NewComponentTracer(component string) *ComponentTracer {
	return &ComponentTracer{component: component}
}

// StartSpan starts a span named <component>.<operation>
func (ct *ComponentTracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("component", ct.component))
	return Tracer().Start(ctx, fmt.Sprintf("%s.%s", ct.component, operation), trace.WithAttributes(attrs...))
}

// Trace runs fn inside a span and records its error
func (ct *ComponentTracer) Trace(ctx context.Context, operation string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := ct.StartSpan(ctx, operation, attrs...)
	defer span.End()

	err := fn(ctx)
	EndStatus(span, err)
	return err
}

// EndStatus marks the span failed or ok depending on err
func EndStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// InjectHeaders propagates the span context of ctx into outgoing request headers
func InjectHeaders(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
