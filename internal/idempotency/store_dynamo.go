package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"verity/internal/platform/awsutil"
	"verity/pkg/platform/sentinel"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore reserves keys with a conditional PutItem. The table's TTL
// attribute is "ttl" (epoch seconds); DynamoDB deletes lazily, so reads also
// compare ExpiresAt.
type DynamoStore struct {
	db    DynamoAPI
	table string
}

// NewDynamoStore constructs a DynamoDB-backed reservation store.
func NewDynamoStore(db DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{db: db, table: table}
}

type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	ClientID  string `dynamodbav:"client_id"`
	Key       string `dynamodbav:"idempotency_key"`
	CaseID    string `dynamodbav:"case_id"`
	CreatedAt string `dynamodbav:"created_at"`
	ExpiresAt string `dynamodbav:"expires_at"`
	TTL       int64  `dynamodbav:"ttl"`
}

func dynamoPK(clientID, key string) string {
	return fmt.Sprintf("CLIENT#%s#KEY#%s", clientID, key)
}

func pkKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: pk}}
}

func (s *DynamoStore) Get(ctx context.Context, clientID, key string) (*Record, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pkKey(dynamoPK(clientID, key)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, awsutil.MapDynamoError(err)
	}
	if len(out.Item) == 0 {
		return nil, sentinel.ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode idempotency item: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	expires, err := time.Parse(time.RFC3339Nano, item.ExpiresAt)
	if err != nil {
		expires = time.Unix(item.TTL, 0)
	}
	return &Record{
		ClientID:  item.ClientID,
		Key:       item.Key,
		CaseID:    item.CaseID,
		CreatedAt: created,
		ExpiresAt: expires,
	}, nil
}

// PutIfAbsent writes the item unless a live one exists. An item whose TTL has
// passed but which DynamoDB has not yet swept is overwritten.
func (s *DynamoStore) PutIfAbsent(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:        dynamoPK(rec.ClientID, rec.Key),
		ClientID:  rec.ClientID,
		Key:       rec.Key,
		CaseID:    rec.CaseID,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		TTL:       rec.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode idempotency item: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.CreatedAt.Unix())},
		},
	})
	if err != nil {
		mapped := awsutil.MapDynamoError(err)
		if errors.Is(mapped, sentinel.ErrInvalidState) {
			return sentinel.ErrConflict
		}
		return mapped
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, clientID, key string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       pkKey(dynamoPK(clientID, key)),
	})
	return awsutil.MapDynamoError(err)
}
