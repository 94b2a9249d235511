package curation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/clinic-concierge/internal/conversation"
)

type fakeSessions struct {
	sessions map[string]*conversation.Session
	updates  []string
	deleted  []string
	listErr  error
}

func newFakeSessions(sessions ...*conversation.Session) *fakeSessions {
	f := &fakeSessions{sessions: make(map[string]*conversation.Session)}
	for _, s := range sessions {
		f.sessions[s.SessionID] = s
	}
	return f
}

func (f *fakeSessions) Get(_ context.Context, id string) (*conversation.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, conversation.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) ListByStatus(_ context.Context, status conversation.Status, _ int32) ([]conversation.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []conversation.Session
	for _, s := range f.sessions {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) UpdateStatus(_ context.Context, id string, status conversation.Status, tier, reviewedBy string) error {
	s, ok := f.sessions[id]
	if !ok {
		return conversation.ErrSessionNotFound
	}
	s.Status = status
	if tier != "" {
		s.Tier = tier
	}
	s.ReviewedBy = reviewedBy
	f.updates = append(f.updates, id)
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	delete(f.sessions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeExporter struct {
	exported []string
	err      error
}

func (f *fakeExporter) Export(_ context.Context, s *conversation.Session) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exported = append(f.exported, s.SessionID)
	return "corpus/v1/sessions/" + s.SessionID + ".json", nil
}

type fakeLedger struct {
	entries []LedgerEntry
}

func (f *fakeLedger) Record(_ context.Context, e LedgerEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func pendingSession(id string) *conversation.Session {
	s := conversation.NewSession("tenant-1", "clinic-9")
	s.SessionID = id
	s.Status = conversation.StatusPendingReview
	return s
}

func newTestService(sessions *fakeSessions, exporter *fakeExporter, ledger *fakeLedger) *Service {
	return NewService(ServiceOptions{
		Sessions:  sessions,
		Exporter:  exporter,
		Ledger:    ledger,
		IdleAfter: 30 * time.Minute,
	})
}

func TestApproveExportsAndRecords(t *testing.T) {
	sessions := newFakeSessions(pendingSession("sess-1"))
	exporter := &fakeExporter{}
	ledger := &fakeLedger{}
	svc := newTestService(sessions, exporter, ledger)

	require.NoError(t, svc.Approve(context.Background(), "sess-1", conversation.TierGold, "reviewer@clinic"))

	assert.Equal(t, []string{"sess-1"}, exporter.exported)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, conversation.TierGold, ledger.entries[0].Tier)
	assert.Contains(t, ledger.entries[0].S3Key, "sess-1")
	assert.Equal(t, conversation.StatusApproved, sessions.sessions["sess-1"].Status)
	assert.Equal(t, conversation.TierGold, sessions.sessions["sess-1"].Tier)
}

func TestApproveRejectsBadTier(t *testing.T) {
	svc := newTestService(newFakeSessions(pendingSession("sess-1")), &fakeExporter{}, &fakeLedger{})

	err := svc.Approve(context.Background(), "sess-1", "platinum", "reviewer@clinic")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestApproveRequiresPendingStatus(t *testing.T) {
	active := conversation.NewSession("tenant-1", "clinic-9")
	active.SessionID = "sess-1"
	svc := newTestService(newFakeSessions(active), &fakeExporter{}, &fakeLedger{})

	err := svc.Approve(context.Background(), "sess-1", conversation.TierSilver, "reviewer@clinic")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestApproveAbortsWhenExportFails(t *testing.T) {
	sessions := newFakeSessions(pendingSession("sess-1"))
	ledger := &fakeLedger{}
	svc := newTestService(sessions, &fakeExporter{err: assert.AnError}, ledger)

	err := svc.Approve(context.Background(), "sess-1", conversation.TierGold, "reviewer@clinic")
	require.Error(t, err)
	assert.Empty(t, ledger.entries)
	assert.Equal(t, conversation.StatusPendingReview, sessions.sessions["sess-1"].Status)
}

func TestRejectPurgesSession(t *testing.T) {
	sessions := newFakeSessions(pendingSession("sess-1"))
	svc := newTestService(sessions, &fakeExporter{}, &fakeLedger{})

	require.NoError(t, svc.Reject(context.Background(), "sess-1", "reviewer@clinic"))
	assert.Equal(t, []string{"sess-1"}, sessions.deleted)

	_, err := svc.GetDetail(context.Background(), "sess-1")
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestRejectRequiresPendingStatus(t *testing.T) {
	approved := pendingSession("sess-1")
	approved.Status = conversation.StatusApproved
	sessions := newFakeSessions(approved)
	svc := newTestService(sessions, &fakeExporter{}, &fakeLedger{})

	err := svc.Reject(context.Background(), "sess-1", "reviewer@clinic")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Empty(t, sessions.deleted)
}

func TestSweepIdleMovesStaleSessionsOnly(t *testing.T) {
	stale := conversation.NewSession("tenant-1", "clinic-9")
	stale.SessionID = "stale"
	stale.LastMessageAt = time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339Nano)

	fresh := conversation.NewSession("tenant-1", "clinic-9")
	fresh.SessionID = "fresh"

	sessions := newFakeSessions(stale, fresh)
	svc := newTestService(sessions, &fakeExporter{}, &fakeLedger{})

	moved, err := svc.SweepIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, conversation.StatusPendingReview, sessions.sessions["stale"].Status)
	assert.Equal(t, conversation.StatusActive, sessions.sessions["fresh"].Status)
}

func TestListPendingFiltersByStatus(t *testing.T) {
	sessions := newFakeSessions(pendingSession("sess-1"), conversation.NewSession("tenant-1", "clinic-9"))
	svc := newTestService(sessions, &fakeExporter{}, &fakeLedger{})

	pending, err := svc.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sess-1", pending[0].SessionID)
}
