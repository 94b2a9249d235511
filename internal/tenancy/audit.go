package tenancy

import (
	"context"
	"time"

	"github.com/careloop/clinic-concierge/pkg/logging"
)

// LogAuditSink emits resolution events as structured log lines.
type LogAuditSink struct {
	logger *logging.Logger
}

func NewLogAuditSink(logger *logging.Logger) *LogAuditSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogAuditSink{logger: logger}
}

func (s *LogAuditSink) RecordResolution(ctx context.Context, webhookID string, identity Identity, outcome string, at time.Time) {
	s.logger.InfoContext(ctx, "webhook resolution",
		"webhook_id", webhookID,
		"tenant_id", identity.TenantID,
		"clinic_id", identity.ClinicID,
		"outcome", outcome,
		"at", at.Format(time.RFC3339),
	)
}
