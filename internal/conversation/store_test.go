package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	putInput    *dynamodb.PutItemInput
	putErr      error
	getOutput   *dynamodb.GetItemOutput
	getErr      error
	updateInput *dynamodb.UpdateItemInput
	updateErr   error
	deleteInput *dynamodb.DeleteItemInput
	queryInput  *dynamodb.QueryInput
	queryOutput *dynamodb.QueryOutput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOutput, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInput = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deleteInput = in
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInput = in
	if f.queryOutput == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryOutput, nil
}

func TestSessionStoreCreateIsConditional(t *testing.T) {
	client := &fakeDynamo{}
	store := NewSessionStore(client, "sessions", nil)

	session := NewSession("tenant-1", "clinic-9")
	require.NoError(t, store.Create(context.Background(), session))

	require.NotNil(t, client.putInput)
	assert.Equal(t, "sessions", *client.putInput.TableName)
	assert.Equal(t, "attribute_not_exists(sessionId)", *client.putInput.ConditionExpression)
}

func TestSessionStoreGetNotFound(t *testing.T) {
	store := NewSessionStore(&fakeDynamo{}, "sessions", nil)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreGetRoundTrip(t *testing.T) {
	client := &fakeDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"sessionId": &types.AttributeValueMemberS{Value: "sess-1"},
				"tenantId":  &types.AttributeValueMemberS{Value: "tenant-1"},
				"clinicId":  &types.AttributeValueMemberS{Value: "clinic-9"},
				"status":    &types.AttributeValueMemberS{Value: "active"},
			},
		},
	}
	store := NewSessionStore(client, "sessions", nil)

	session, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.SessionID)
	assert.Equal(t, StatusActive, session.Status)
}

func TestSessionStoreListByStatusUsesIndex(t *testing.T) {
	client := &fakeDynamo{
		queryOutput: &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{
				{
					"sessionId": &types.AttributeValueMemberS{Value: "sess-1"},
					"status":    &types.AttributeValueMemberS{Value: "pending_review"},
				},
			},
		},
	}
	store := NewSessionStore(client, "sessions", nil)

	sessions, err := store.ListByStatus(context.Background(), StatusPendingReview, 25)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, StatusPendingReview, sessions[0].Status)

	require.NotNil(t, client.queryInput)
	assert.Equal(t, statusIndex, *client.queryInput.IndexName)
	assert.Equal(t, int32(25), *client.queryInput.Limit)
	assert.False(t, *client.queryInput.ScanIndexForward)
}

func TestSessionStoreUpdateStatusSetsTier(t *testing.T) {
	client := &fakeDynamo{}
	store := NewSessionStore(client, "sessions", nil)

	require.NoError(t, store.UpdateStatus(context.Background(), "sess-1", StatusApproved, TierGold, "reviewer@clinic"))

	require.NotNil(t, client.updateInput)
	assert.Contains(t, *client.updateInput.UpdateExpression, "tier = :tier")
	tier := client.updateInput.ExpressionAttributeValues[":tier"].(*types.AttributeValueMemberS)
	assert.Equal(t, TierGold, tier.Value)
}

func TestSessionStoreUpdateStatusMissingSession(t *testing.T) {
	client := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	store := NewSessionStore(client, "sessions", nil)

	err := store.UpdateStatus(context.Background(), "ghost", StatusRejected, "", "reviewer@clinic")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreDelete(t *testing.T) {
	client := &fakeDynamo{}
	store := NewSessionStore(client, "sessions", nil)

	require.NoError(t, store.Delete(context.Background(), "sess-1"))
	require.NotNil(t, client.deleteInput)
	key := client.deleteInput.Key["sessionId"].(*types.AttributeValueMemberS)
	assert.Equal(t, "sess-1", key.Value)
}

func TestSessionStoreWrapsClientErrors(t *testing.T) {
	client := &fakeDynamo{getErr: errors.New("throttled")}
	store := NewSessionStore(client, "sessions", nil)

	_, err := store.Get(context.Background(), "sess-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
