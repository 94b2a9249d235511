package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careloop/clinic-concierge/pkg/logging"
)

var storeTracer = otel.Tracer("concierge.internal.conversation.store")

// ErrSessionNotFound indicates the requested session ID does not exist.
var ErrSessionNotFound = errors.New("conversation: session not found")

const statusIndex = "status-index"

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SessionStore persists sessions to DynamoDB. Writes are last-write-wins per
// session, which is safe because the engine serializes processing per session.
type SessionStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

func NewSessionStore(client dynamoAPI, tableName string, logger *logging.Logger) *SessionStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionStore{client: client, tableName: tableName, logger: logger}
}

// Create inserts a new session, failing if the ID already exists.
func (s *SessionStore) Create(ctx context.Context, session *Session) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sessionId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to create session: %w", err)
	}
	return nil
}

// Save upserts a session.
func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	ctx, span := storeTracer.Start(ctx, "conversation.store.save")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.session_id", session.SessionID))

	session.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to save session: %w", err)
	}
	return nil
}

// Get fetches a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	ctx, span := storeTracer.Start(ctx, "conversation.store.get")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.session_id", sessionID))

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrSessionNotFound
	}

	var session Session
	if err := attributevalue.UnmarshalMap(out.Item, &session); err != nil {
		return nil, fmt.Errorf("conversation: failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a session permanently.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to delete session: %w", err)
	}
	return nil
}

// ListByStatus queries the status GSI, most recent first.
func (s *SessionStore) ListByStatus(ctx context.Context, status Status, limit int32) ([]Session, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(statusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to query sessions by status: %w", err)
	}

	sessions := make([]Session, 0, len(out.Items))
	for _, item := range out.Items {
		var session Session
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, fmt.Errorf("conversation: failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// UpdateStatus transitions a session's curation status.
func (s *SessionStore) UpdateStatus(ctx context.Context, sessionID string, status Status, tier, reviewedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	update := "SET #status = :status, updatedAt = :now, reviewedBy = :reviewer, reviewedAt = :now"
	values := map[string]types.AttributeValue{
		":status":   &types.AttributeValueMemberS{Value: string(status)},
		":now":      &types.AttributeValueMemberS{Value: now},
		":reviewer": &types.AttributeValueMemberS{Value: reviewedBy},
	}
	if tier != "" {
		update += ", tier = :tier"
		values[":tier"] = &types.AttributeValueMemberS{Value: tier}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression: aws.String(update),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(sessionId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("conversation: failed to update session status: %w", err)
	}
	return nil
}
