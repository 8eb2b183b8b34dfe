package tenancy

import "context"

// ctxKey is an unexported type used as the context key for TenantContext.
type ctxKey struct{}

// TenantContext carries the resolved tenant through the request context.
type TenantContext struct {
	Tenant TenantID
}

// WithTenant returns a new context with the given TenantContext attached.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext retrieves the TenantContext from the context.
// Returns the zero value and false if no tenant is set.
func FromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(TenantContext)
	return tc, ok
}

// TenantFromContext is a convenience function that returns the tenant from
// the context, or "" if no tenant context is set.
func TenantFromContext(ctx context.Context) TenantID {
	tc, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return tc.Tenant
}
