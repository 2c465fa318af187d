package tenant

import (
	"context"
	"strings"
)

type contextKey struct{}

// WithTenant stores the organization id resolved for a request.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, tenantID)
}

// FromContext returns the organization id stored by WithTenant.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, _ := ctx.Value(contextKey{}).(string)
	tenantID = strings.TrimSpace(tenantID)
	return tenantID, tenantID != ""
}

// With is shorthand for WithTenant.
func With(ctx context.Context, id string) context.Context { return WithTenant(ctx, id) }

// From is shorthand for FromContext.
func From(ctx context.Context) (string, bool) { return FromContext(ctx) }
