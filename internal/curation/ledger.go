package curation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LedgerEntry is one approval recorded in Postgres. The ledger is the
// queryable index over the corpus bucket.
type LedgerEntry struct {
	SessionID  string
	TenantID   string
	ClinicID   string
	Tier       string
	ReviewedBy string
	S3Key      string
	ApprovedAt time.Time
}

// Ledger records approvals in the approved_sessions table.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	if db == nil {
		panic("curation: db cannot be nil")
	}
	return &Ledger{db: db}
}

// Record inserts an approval. Re-approving the same session overwrites the
// previous row.
func (l *Ledger) Record(ctx context.Context, entry LedgerEntry) error {
	if entry.ApprovedAt.IsZero() {
		entry.ApprovedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO approved_sessions (session_id, tenant_id, clinic_id, tier, reviewed_by, s3_key, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			reviewed_by = EXCLUDED.reviewed_by,
			s3_key = EXCLUDED.s3_key,
			approved_at = EXCLUDED.approved_at`
	_, err := l.db.ExecContext(ctx, query,
		entry.SessionID, entry.TenantID, entry.ClinicID,
		entry.Tier, entry.ReviewedBy, entry.S3Key, entry.ApprovedAt)
	if err != nil {
		return fmt.Errorf("curation: failed to record approval: %w", err)
	}
	return nil
}

// ListByClinic returns approvals for one clinic, most recent first.
func (l *Ledger) ListByClinic(ctx context.Context, tenantID, clinicID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT session_id, tenant_id, clinic_id, tier, reviewed_by, s3_key, approved_at
		FROM approved_sessions
		WHERE tenant_id = $1 AND clinic_id = $2
		ORDER BY approved_at DESC
		LIMIT $3`
	rows, err := l.db.QueryContext(ctx, query, tenantID, clinicID, limit)
	if err != nil {
		return nil, fmt.Errorf("curation: failed to list approvals: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.SessionID, &e.TenantID, &e.ClinicID, &e.Tier, &e.ReviewedBy, &e.S3Key, &e.ApprovedAt); err != nil {
			return nil, fmt.Errorf("curation: failed to scan approval: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("curation: approval rows: %w", err)
	}
	return entries, nil
}
