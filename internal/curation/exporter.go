// Package curation implements the human-review pipeline that turns finished
// conversations into a training corpus: idle sessions move to pending_review,
// reviewers approve with a quality tier (exported to S3 and recorded in the
// approved ledger) or reject (hard delete).
package curation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// corpusExample is the flattened training shape: one approved session as a
// message list plus labels.
type corpusExample struct {
	SessionID  string          `json:"sessionId"`
	TenantID   string          `json:"tenantId"`
	ClinicID   string          `json:"clinicId"`
	Tier       string          `json:"tier"`
	Intent     string          `json:"intent,omitempty"`
	Booked     bool            `json:"booked"`
	Declined   bool            `json:"declined"`
	Messages   []corpusMessage `json:"messages"`
	ApprovedAt string          `json:"approvedAt"`
}

type corpusMessage struct {
	Role          string                            `json:"role"`
	Content       string                            `json:"content"`
	FunctionCalls []conversation.FunctionCallRecord `json:"functionCalls,omitempty"`
}

// Exporter writes approved sessions to the training-corpus bucket: a full
// session document per approval, plus an append to the monthly per-tier JSONL
// file consumed by training jobs. If bucket is empty all exports are no-ops.
type Exporter struct {
	bucket string
	client s3API
	logger *logging.Logger
	now    func() time.Time
}

func NewExporter(client s3API, bucket string, logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Exporter{bucket: bucket, client: client, logger: logger, now: time.Now}
}

func (e *Exporter) Enabled() bool {
	return e != nil && e.bucket != "" && e.client != nil
}

// Export writes the session document and appends the flattened example to the
// tier's monthly JSONL file. Returns the session document's key.
func (e *Exporter) Export(ctx context.Context, session *conversation.Session) (string, error) {
	if !e.Enabled() {
		return "", nil
	}

	now := e.now().UTC()
	key := fmt.Sprintf("corpus/v1/sessions/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), session.SessionID)

	doc, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("curation: marshal session: %w", err)
	}
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("curation: s3 put %s: %w", key, err)
	}

	if err := e.appendExample(ctx, session, now); err != nil {
		// The session document is already durable; the JSONL roll-up can be
		// rebuilt from the documents, so log and continue.
		e.logger.WarnContext(ctx, "failed to append corpus example",
			"session_id", session.SessionID, "error", err)
	}

	e.logger.InfoContext(ctx, "exported session to training corpus",
		"session_id", session.SessionID, "s3_key", key, "tier", session.Tier)
	return key, nil
}

// appendExample read-modify-writes the monthly JSONL file, since S3 has no
// native append.
func (e *Exporter) appendExample(ctx context.Context, session *conversation.Session, now time.Time) error {
	example := corpusExample{
		SessionID:  session.SessionID,
		TenantID:   session.TenantID,
		ClinicID:   session.ClinicID,
		Tier:       session.Tier,
		Intent:     session.LastIntent,
		Booked:     session.BookedAppointmentID != "",
		Declined:   session.Declined,
		ApprovedAt: now.Format(time.RFC3339),
	}
	for _, turn := range session.Turns {
		example.Messages = append(example.Messages, corpusMessage{
			Role:          turn.Role,
			Content:       turn.Content,
			FunctionCalls: turn.FunctionCalls,
		})
	}

	line, err := json.Marshal(example)
	if err != nil {
		return fmt.Errorf("curation: marshal example: %w", err)
	}

	key := fmt.Sprintf("corpus/v1/training/%s-%d-%02d.jsonl", session.Tier, now.Year(), now.Month())

	var existing []byte
	getResp, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	} else if !isNotFound(err) {
		e.logger.DebugContext(ctx, "reading training file failed, starting fresh", "key", key, "error", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("curation: s3 put %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}
