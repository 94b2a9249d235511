package curation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/internal/observability/metrics"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

var (
	// ErrInvalidTier indicates an approval tier outside gold/silver/bronze.
	ErrInvalidTier = errors.New("curation: invalid tier")
	// ErrNotPending indicates the session is not awaiting review.
	ErrNotPending = errors.New("curation: session is not pending review")
)

type sessionAdmin interface {
	Get(ctx context.Context, sessionID string) (*conversation.Session, error)
	ListByStatus(ctx context.Context, status conversation.Status, limit int32) ([]conversation.Session, error)
	UpdateStatus(ctx context.Context, sessionID string, status conversation.Status, tier, reviewedBy string) error
	Delete(ctx context.Context, sessionID string) error
}

type corpusExporter interface {
	Export(ctx context.Context, session *conversation.Session) (string, error)
}

type approvalLedger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}

// Service drives the review lifecycle. Approval order matters: the corpus
// export must be durable before the ledger row and status flip, so a crash
// never leaves an approved session without its exported document.
type Service struct {
	sessions  sessionAdmin
	exporter  corpusExporter
	ledger    approvalLedger
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	idleAfter time.Duration
	now       func() time.Time
}

// ServiceOptions configures a Service. Sessions is required; a nil exporter
// or ledger disables that half of approval.
type ServiceOptions struct {
	Sessions  sessionAdmin
	Exporter  corpusExporter
	Ledger    approvalLedger
	Metrics   *metrics.ConversationMetrics
	Logger    *logging.Logger
	IdleAfter time.Duration
}

func NewService(opts ServiceOptions) *Service {
	if opts.Sessions == nil {
		panic("curation: session store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = 30 * time.Minute
	}
	return &Service{
		sessions:  opts.Sessions,
		exporter:  opts.Exporter,
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		idleAfter: opts.IdleAfter,
		now:       time.Now,
	}
}

// SweepIdle moves active sessions with no recent messages to pending_review.
// Returns how many sessions transitioned. Per-session failures are logged and
// skipped so one bad row never stalls the sweep.
func (s *Service) SweepIdle(ctx context.Context) (int, error) {
	active, err := s.sessions.ListByStatus(ctx, conversation.StatusActive, 0)
	if err != nil {
		return 0, fmt.Errorf("curation: failed to list active sessions: %w", err)
	}

	cutoff := s.now().Add(-s.idleAfter)
	moved := 0
	for i := range active {
		session := &active[i]
		if !session.IdleSince(cutoff) {
			continue
		}
		if err := s.sessions.UpdateStatus(ctx, session.SessionID, conversation.StatusPendingReview, "", "system"); err != nil {
			s.logger.WarnContext(ctx, "failed to move idle session to review",
				"session_id", session.SessionID, "error", err)
			continue
		}
		moved++
	}
	if moved > 0 {
		s.observe("sweep")
		s.logger.InfoContext(ctx, "idle sweep complete", "moved", moved, "scanned", len(active))
	}
	return moved, nil
}

// ListPending returns sessions awaiting review, most recent first.
func (s *Service) ListPending(ctx context.Context, limit int32) ([]conversation.Session, error) {
	return s.sessions.ListByStatus(ctx, conversation.StatusPendingReview, limit)
}

// GetDetail returns the full session for the review UI.
func (s *Service) GetDetail(ctx context.Context, sessionID string) (*conversation.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Approve exports the session to the corpus, records the ledger row, and
// marks it approved with the given tier.
func (s *Service) Approve(ctx context.Context, sessionID, tier, reviewedBy string) error {
	switch tier {
	case conversation.TierGold, conversation.TierSilver, conversation.TierBronze:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != conversation.StatusPendingReview {
		return fmt.Errorf("%w: status is %q", ErrNotPending, session.Status)
	}
	session.Tier = tier

	var s3Key string
	if s.exporter != nil {
		s3Key, err = s.exporter.Export(ctx, session)
		if err != nil {
			return fmt.Errorf("curation: corpus export failed: %w", err)
		}
	}
	if s.ledger != nil {
		entry := LedgerEntry{
			SessionID:  session.SessionID,
			TenantID:   session.TenantID,
			ClinicID:   session.ClinicID,
			Tier:       tier,
			ReviewedBy: reviewedBy,
			S3Key:      s3Key,
			ApprovedAt: s.now().UTC(),
		}
		if err := s.ledger.Record(ctx, entry); err != nil {
			return err
		}
	}

	if err := s.sessions.UpdateStatus(ctx, sessionID, conversation.StatusApproved, tier, reviewedBy); err != nil {
		return err
	}
	s.observe("approve")
	s.logger.InfoContext(ctx, "session approved",
		"session_id", sessionID, "tier", tier, "reviewed_by", reviewedBy)
	return nil
}

// Reject permanently deletes the session. Rejected conversations are purged,
// not retained.
func (s *Service) Reject(ctx context.Context, sessionID, reviewedBy string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != conversation.StatusPendingReview {
		return fmt.Errorf("%w: status is %q", ErrNotPending, session.Status)
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.observe("reject")
	s.logger.InfoContext(ctx, "session rejected and purged",
		"session_id", sessionID, "reviewed_by", reviewedBy)
	return nil
}

// RunSweeper loops SweepIdle on the interval until the context ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepIdle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "idle sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) observe(action string) {
	if s.metrics != nil {
		s.metrics.ObserveCuration(action)
	}
}
