package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-2fa-confirm/internal/domain"
)

// PendingRepo stores one pending confirmation per account.
// PK: account_id. DynamoDB TTL on purge_at removes stale items.
type PendingRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewPendingRepo(client API, tableName string) *PendingRepo {
	return &PendingRepo{client: client, tableName: tableName, now: time.Now}
}

type pendingItem struct {
	domain.PendingConfirmation
	PurgeAt int64 `dynamodbav:"purge_at"`
}

func (r *PendingRepo) Put(ctx context.Context, p *domain.PendingConfirmation) error {
	item, err := attributevalue.MarshalMap(pendingItem{PendingConfirmation: *p, PurgeAt: p.PurgeAt().Unix()})
	if err != nil {
		return fmt.Errorf("marshal pending confirmation: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *PendingRepo) Get(ctx context.Context, accountID string) (*domain.PendingConfirmation, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldAccountID, accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("pending confirmation not found: %w", domain.ErrNotFound)
	}
	var it pendingItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	// TTL deletion lags by up to a couple of days.
	if it.PurgeAt != 0 && r.now().Unix() >= it.PurgeAt {
		return nil, fmt.Errorf("pending confirmation not found: %w", domain.ErrNotFound)
	}
	return &it.PendingConfirmation, nil
}

func (r *PendingRepo) Delete(ctx context.Context, accountID, codeID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldAccountID, accountID),
		ConditionExpression: aws.String("#code_id = :code_id"),
		ExpressionAttributeNames: map[string]string{
			"#code_id": fieldCodeID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code_id": &types.AttributeValueMemberS{Value: codeID},
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("delete pending confirmation: %w", err)
	}
	return nil
}
