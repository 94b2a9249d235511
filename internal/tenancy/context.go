package tenancy

import "context"

type ctxKey string

const (
	tenantKey ctxKey = "concierge.tenant_id"
	clinicKey ctxKey = "concierge.clinic_id"
)

// WithIdentity stores the resolved tenant and clinic ids in context.
func WithIdentity(ctx context.Context, tenantID, clinicID string) context.Context {
	ctx = context.WithValue(ctx, tenantKey, tenantID)
	return context.WithValue(ctx, clinicKey, clinicID)
}

// TenantFromContext extracts the tenant id if present.
func TenantFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}

// ClinicFromContext extracts the clinic id if present.
func ClinicFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(clinicKey)
	if val == nil {
		return "", false
	}
	clinicID, ok := val.(string)
	return clinicID, ok && clinicID != ""
}
