// Package kit holds the transport-agnostic plumbing shared by sentinelle's
// HTTP and MCP surfaces: the Endpoint abstraction and request-scoped context
// accessors.
package kit

import "context"

// Endpoint is a transport-agnostic operation: decode happens at the edge,
// business logic runs here, encoding happens on the way out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first middleware is the
// outermost wrapper.
func Chain(e Endpoint, mws ...Middleware) Endpoint {
	for i := len(mws) - 1; i >= 0; i-- {
		e = mws[i](e)
	}
	return e
}

type contextKey string

const (
	// TransportKey records which transport a request arrived on ("http", "mcp").
	TransportKey contextKey = "kit_transport"
	// RequestIDKey carries the per-request correlation ID.
	RequestIDKey contextKey = "kit_request_id"
)

// WithTransport marks the transport a request arrived on.
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

// GetTransport returns the request transport, defaulting to "http".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

// WithRequestID attaches a correlation ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID returns the correlation ID, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
