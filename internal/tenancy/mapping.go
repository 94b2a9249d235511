package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrMappingNotFound is returned when a webhook id has no registered mapping.
var ErrMappingNotFound = errors.New("tenancy: webhook mapping not found")

// WebhookMapping binds an opaque inbound webhook id to a tenant and clinic.
type WebhookMapping struct {
	WebhookID string    `json:"webhookId"`
	TenantID  string    `json:"tenantId"`
	ClinicID  string    `json:"clinicId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MappingStore persists webhook mappings in Postgres.
type MappingStore struct {
	db *sql.DB
}

func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

// Get returns the mapping for a webhook id, or ErrMappingNotFound.
func (s *MappingStore) Get(ctx context.Context, webhookID string) (*WebhookMapping, error) {
	var m WebhookMapping
	err := s.db.QueryRowContext(ctx, `
		SELECT webhook_id, tenant_id, clinic_id, active, created_at, updated_at
		FROM webhook_mappings WHERE webhook_id = $1`, webhookID).Scan(
		&m.WebhookID, &m.TenantID, &m.ClinicID, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: query mapping: %w", err)
	}
	return &m, nil
}

// Upsert creates or updates a mapping.
func (s *MappingStore) Upsert(ctx context.Context, m *WebhookMapping) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_mappings (webhook_id, tenant_id, clinic_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (webhook_id) DO UPDATE SET
		    tenant_id=EXCLUDED.tenant_id, clinic_id=EXCLUDED.clinic_id,
		    active=EXCLUDED.active, updated_at=$5`,
		m.WebhookID, m.TenantID, m.ClinicID, m.Active, now)
	if err != nil {
		return fmt.Errorf("tenancy: upsert mapping: %w", err)
	}
	return nil
}

// Deactivate marks a mapping inactive without deleting it.
func (s *MappingStore) Deactivate(ctx context.Context, webhookID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_mappings SET active = FALSE, updated_at = $2 WHERE webhook_id = $1`,
		webhookID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("tenancy: deactivate mapping: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMappingNotFound
	}
	return nil
}
