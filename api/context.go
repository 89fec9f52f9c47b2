package api

import "context"

type contextKey int

const contextKeyTenant contextKey = iota

// Tenant is the authenticated caller identity.
type Tenant struct {
	ID    string
	Login string
}

// SetTenantContext returns a new context with the tenant attached.
func SetTenantContext(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, contextKeyTenant, t)
}

// TenantFromContext extracts the authenticated tenant from context, or nil.
func TenantFromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(contextKeyTenant).(*Tenant)
	return t
}
