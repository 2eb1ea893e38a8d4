package wharf

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wharfhq/wharf/internal/conn"
)

// tracer is a single package-level otel.Tracer fixed to the module
// name; there is no middleware config layer to make it configurable
// per deployment.
var tracer = otel.Tracer("wharf")

var propagator = propagation.TraceContext{}

// headerCarrier adapts a Connection's headers to
// propagation.TextMapCarrier so trace context can be extracted from
// the request headers (Get/Keys) and injected into the reply headers
// (Set).
type headerCarrier struct {
	c *conn.Connection
}

func (hc headerCarrier) Get(key string) string {
	return hc.c.Request.Headers.Get(key)
}

func (hc headerCarrier) Set(key, value string) {
	hc.c.Reply.Headers.Set(key, value)
}

func (hc headerCarrier) Keys() []string {
	all := hc.c.Request.Headers.All()
	keys := make([]string, len(all))
	for i, h := range all {
		keys[i] = h.Name
	}
	return keys
}

// startRequestSpan extracts any inbound trace context and starts a
// server span named after the request's method and URI.
func startRequestSpan(c *conn.Connection) (context.Context, trace.Span) {
	parent := propagator.Extract(context.Background(), headerCarrier{c})
	ctx, span := tracer.Start(parent, c.Request.Method+" "+c.Request.URI,
		trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.target", c.Request.URI),
		attribute.String("http.host", c.Request.Host),
	)
	return ctx, span
}

// endRequestSpan records the final status and closes the span.
func endRequestSpan(span trace.Span, c *conn.Connection, err error) {
	defer span.End()
	span.SetAttributes(attribute.Int("http.status_code", int(c.Reply.Status)))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case int(c.Reply.Status) >= 500:
		span.SetStatus(codes.Error, c.Reply.StatusText)
	default:
		span.SetStatus(codes.Ok, "")
	}
}
