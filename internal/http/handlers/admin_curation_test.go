package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/internal/curation"
)

type fakeCuration struct {
	pending   []conversation.Session
	approvals []string
	tiers     []string
	rejects   []string
	approveFn func(sessionID, tier string) error
}

func (f *fakeCuration) ListPending(context.Context, int32) ([]conversation.Session, error) {
	return f.pending, nil
}

func (f *fakeCuration) GetDetail(_ context.Context, id string) (*conversation.Session, error) {
	for i := range f.pending {
		if f.pending[i].SessionID == id {
			return &f.pending[i], nil
		}
	}
	return nil, conversation.ErrSessionNotFound
}

func (f *fakeCuration) Approve(_ context.Context, sessionID, tier, _ string) error {
	if f.approveFn != nil {
		if err := f.approveFn(sessionID, tier); err != nil {
			return err
		}
	}
	f.approvals = append(f.approvals, sessionID)
	f.tiers = append(f.tiers, tier)
	return nil
}

func (f *fakeCuration) Reject(_ context.Context, sessionID, _ string) error {
	f.rejects = append(f.rejects, sessionID)
	return nil
}

func (f *fakeCuration) SweepIdle(context.Context) (int, error) { return 2, nil }

func newCurationServer(svc *fakeCuration) http.Handler {
	h := NewAdminCurationHandler(svc, nil)
	r := chi.NewRouter()
	r.Get("/admin/conversations/pending", h.ListPending)
	r.Get("/admin/conversations/{sessionID}", h.GetDetail)
	r.Post("/admin/conversations/{sessionID}/approve", h.Approve)
	r.Post("/admin/conversations/{sessionID}/reject", h.Reject)
	r.Post("/admin/conversations/sweep", h.Sweep)
	return r
}

func reviewSession(id string) conversation.Session {
	s := conversation.NewSession("tenant-1", "clinic-9")
	s.SessionID = id
	s.Status = conversation.StatusPendingReview
	return *s
}

func TestListPendingReturnsSummaries(t *testing.T) {
	server := newCurationServer(&fakeCuration{pending: []conversation.Session{reviewSession("sess-1")}})

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/pending", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeEnvelope(t, rec)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestGetDetailNotFound(t *testing.T) {
	server := newCurationServer(&fakeCuration{})

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/ghost", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveRecordsTier(t *testing.T) {
	svc := &fakeCuration{pending: []conversation.Session{reviewSession("sess-1")}}
	server := newCurationServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/approve", strings.NewReader(`{"tier":"gold"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-1"}, svc.approvals)
}

func TestApproveMapsQualityRatingToTier(t *testing.T) {
	for rating, tier := range map[string]string{
		"excellent": conversation.TierGold,
		"good":      conversation.TierSilver,
	} {
		svc := &fakeCuration{pending: []conversation.Session{reviewSession("sess-1")}}
		server := newCurationServer(svc)

		req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/approve",
			strings.NewReader(`{"qualityRating":"`+rating+`"}`))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{tier}, svc.tiers)

		out := decodeEnvelope(t, rec)
		data := out["data"].(map[string]interface{})
		assert.Equal(t, tier, data["tier"])
	}
}

func TestApproveUnknownQualityRatingIs400(t *testing.T) {
	svc := &fakeCuration{approveFn: func(_, tier string) error {
		return curation.ErrInvalidTier
	}}
	server := newCurationServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/approve",
		strings.NewReader(`{"qualityRating":"meh"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.approvals)
}

func TestApproveInvalidTierIs400(t *testing.T) {
	svc := &fakeCuration{approveFn: func(_, tier string) error {
		return curation.ErrInvalidTier
	}}
	server := newCurationServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/approve", strings.NewReader(`{"tier":"platinum"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.approvals)
}

func TestApproveNotPendingIs409(t *testing.T) {
	svc := &fakeCuration{approveFn: func(_, _ string) error {
		return curation.ErrNotPending
	}}
	server := newCurationServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/approve", strings.NewReader(`{"tier":"gold"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectDeletes(t *testing.T) {
	svc := &fakeCuration{}
	server := newCurationServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sess-1/reject", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-1"}, svc.rejects)
}

func TestSweepReportsCount(t *testing.T) {
	server := newCurationServer(&fakeCuration{})

	req := httptest.NewRequest(http.MethodPost, "/admin/conversations/sweep", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeEnvelope(t, rec)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["moved"])
}
