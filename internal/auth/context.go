package auth

import "context"

// DefaultTenant keys the credential of a single-user deployment.
const DefaultTenant = "default"

type contextKey string

const contextKeyTenant contextKey = "tenant"

// WithTenant selects the credential used by calls made with ctx.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, contextKeyTenant, tenant)
}

// TenantFromContext returns the tenant in ctx, or DefaultTenant.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(contextKeyTenant).(string); ok && t != "" {
		return t
	}
	return DefaultTenant
}
