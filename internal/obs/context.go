package obs

import (
	"context"
	"sync"
)

// routePatternKey is the context key storing matched route pattern.
type routePatternKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

type logFieldsKey struct{}

type logFields struct {
	mu     sync.Mutex
	fields map[string]string
}

// WithLogFields installs a mutable field set that inner handlers can annotate
// with SetLogField. RequestLogger installs one per request.
func WithLogFields(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, logFieldsKey{}, &logFields{fields: map[string]string{}})
}

// SetLogField adds key to the request log line. It is a no-op without WithLogFields.
func SetLogField(ctx context.Context, key, value string) {
	if ctx == nil {
		return
	}
	lf, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	lf.mu.Lock()
	lf.fields[key] = value
	lf.mu.Unlock()
}

func logFieldsFrom(ctx context.Context) map[string]string {
	lf, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return nil
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()
	out := make(map[string]string, len(lf.fields))
	for k, v := range lf.fields {
		out[k] = v
	}
	return out
}
