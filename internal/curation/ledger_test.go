package curation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	approvedAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO approved_sessions").
		WithArgs("sess-1", "tenant-1", "clinic-9", "gold", "reviewer@clinic", "corpus/v1/sessions/sess-1.json", approvedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ledger := NewLedger(db)
	err = ledger.Record(context.Background(), LedgerEntry{
		SessionID:  "sess-1",
		TenantID:   "tenant-1",
		ClinicID:   "clinic-9",
		Tier:       "gold",
		ReviewedBy: "reviewer@clinic",
		S3Key:      "corpus/v1/sessions/sess-1.json",
		ApprovedAt: approvedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerListByClinic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	approvedAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"session_id", "tenant_id", "clinic_id", "tier", "reviewed_by", "s3_key", "approved_at"}).
		AddRow("sess-1", "tenant-1", "clinic-9", "gold", "reviewer@clinic", "corpus/v1/sessions/sess-1.json", approvedAt)

	mock.ExpectQuery("SELECT session_id, tenant_id, clinic_id").
		WithArgs("tenant-1", "clinic-9", 50).
		WillReturnRows(rows)

	ledger := NewLedger(db)
	entries, err := ledger.ListByClinic(context.Background(), "tenant-1", "clinic-9", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sess-1", entries[0].SessionID)
	assert.Equal(t, "gold", entries[0].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}
