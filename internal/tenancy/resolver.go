package tenancy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/careloop/clinic-concierge/pkg/logging"
)

// ErrMappingInactive is returned when a webhook id exists but has been disabled.
var ErrMappingInactive = errors.New("tenancy: webhook mapping is inactive")

// ErrInvalidIdentity is returned when legacy parameters fail validation.
var ErrInvalidIdentity = errors.New("tenancy: invalid tenant or clinic identifier")

// identifiers are slugs: lowercase alphanumerics, hyphen, underscore.
var identPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Identity is the resolved routing target for an inbound message.
type Identity struct {
	TenantID string
	ClinicID string
}

// AuditSink records resolution outcomes for traceability.
type AuditSink interface {
	RecordResolution(ctx context.Context, webhookID string, identity Identity, outcome string, at time.Time)
}

// mappingGetter is the narrow surface the resolver needs from MappingStore.
type mappingGetter interface {
	Get(ctx context.Context, webhookID string) (*WebhookMapping, error)
}

// Resolver maps inbound webhook identifiers to tenant/clinic identities.
type Resolver struct {
	store  mappingGetter
	audit  AuditSink
	logger *logging.Logger
}

func NewResolver(store mappingGetter, audit AuditSink, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("tenancy: mapping store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, audit: audit, logger: logger}
}

// Resolve looks up the identity registered for webhookID. Inactive mappings
// resolve like missing ones at the HTTP layer but carry a distinct error so
// operators can tell the cases apart in logs.
func (r *Resolver) Resolve(ctx context.Context, webhookID string) (Identity, error) {
	if !identPattern.MatchString(webhookID) {
		return Identity{}, fmt.Errorf("%w: webhook id %q", ErrInvalidIdentity, webhookID)
	}
	m, err := r.store.Get(ctx, webhookID)
	if err != nil {
		r.record(ctx, webhookID, Identity{}, "not_found")
		return Identity{}, err
	}
	if !m.Active {
		r.record(ctx, webhookID, Identity{}, "inactive")
		return Identity{}, ErrMappingInactive
	}
	id := Identity{TenantID: m.TenantID, ClinicID: m.ClinicID}
	r.record(ctx, webhookID, id, "resolved")
	return id, nil
}

// ResolveLegacy validates explicit tenant/clinic parameters from the legacy
// query-string form. No mapping lookup is involved.
func (r *Resolver) ResolveLegacy(ctx context.Context, tenantID, clinicID string) (Identity, error) {
	if !identPattern.MatchString(tenantID) || !identPattern.MatchString(clinicID) {
		return Identity{}, ErrInvalidIdentity
	}
	id := Identity{TenantID: tenantID, ClinicID: clinicID}
	r.record(ctx, "", id, "legacy")
	return id, nil
}

func (r *Resolver) record(ctx context.Context, webhookID string, id Identity, outcome string) {
	if r.audit == nil {
		return
	}
	r.audit.RecordResolution(ctx, webhookID, id, outcome, time.Now().UTC())
}
