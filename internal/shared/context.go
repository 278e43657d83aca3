package shared

import "context"

// TenantHeader is the request header carrying the tenant scope claim.
const TenantHeader = "x-jwt-claim-tenant-id"

type contextKey string

const (
	tenantKey    contextKey = "tenant"
	requestIDKey contextKey = "request_id"
)

// ContextWithTenant stores the tenant id in the context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant id, empty when absent.
func TenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// ContextWithRequestID stores the request correlation id in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request correlation id, empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
