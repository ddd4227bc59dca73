package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"verity/internal/cases/models"
	"verity/internal/platform/awsutil"
	"verity/pkg/platform/sentinel"
)

// DynamoAPI is the subset of the DynamoDB client the case store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps one item per case keyed by PK "CASE#<id>". The status
// index (partition status, sort expires_at epoch seconds) serves the expiry
// sweep.
type DynamoStore struct {
	db          DynamoAPI
	table       string
	statusIndex string
}

// NewDynamoStore constructs a DynamoDB-backed case store.
func NewDynamoStore(db DynamoAPI, table, statusIndex string) *DynamoStore {
	return &DynamoStore{db: db, table: table, statusIndex: statusIndex}
}

type caseItem struct {
	PK                string                   `dynamodbav:"PK"`
	ID                string                   `dynamodbav:"case_id"`
	ClientID          string                   `dynamodbav:"client_id"`
	DocumentType      string                   `dynamodbav:"document_type"`
	Status            string                   `dynamodbav:"status"`
	Customer          models.Customer          `dynamodbav:"customer"`
	ExtractedData     map[string]string        `dynamodbav:"extracted_data,omitempty"`
	FieldConfidence   map[string]float64       `dynamodbav:"field_confidence,omitempty"`
	OverallConfidence float64                  `dynamodbav:"overall_confidence"`
	Biometrics        *models.BiometricSummary `dynamodbav:"biometrics,omitempty"`
	RejectionReason   string                   `dynamodbav:"rejection_reason,omitempty"`
	RejectionCode     string                   `dynamodbav:"rejection_code,omitempty"`
	RedirectURL       string                   `dynamodbav:"redirect_url,omitempty"`
	WebhookURL        string                   `dynamodbav:"webhook_url,omitempty"`
	Metadata          map[string]string        `dynamodbav:"metadata,omitempty"`
	CreatedAt         time.Time                `dynamodbav:"created_at"`
	UpdatedAt         time.Time                `dynamodbav:"updated_at"`
	SubmittedAt       *time.Time               `dynamodbav:"submitted_at,omitempty"`
	CompletedAt       *time.Time               `dynamodbav:"completed_at,omitempty"`
	ExpiresAt         int64                    `dynamodbav:"expires_at"`
}

func casePK(id string) string {
	return "CASE#" + id
}

func toItem(c *models.Case) caseItem {
	return caseItem{
		PK:                casePK(c.ID),
		ID:                c.ID,
		ClientID:          c.ClientID,
		DocumentType:      string(c.DocumentType),
		Status:            string(c.Status),
		Customer:          c.Customer,
		ExtractedData:     c.ExtractedData,
		FieldConfidence:   c.FieldConfidence,
		OverallConfidence: c.OverallConfidence,
		Biometrics:        c.Biometrics,
		RejectionReason:   c.RejectionReason,
		RejectionCode:     c.RejectionCode,
		RedirectURL:       c.RedirectURL,
		WebhookURL:        c.WebhookURL,
		Metadata:          c.Metadata,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		SubmittedAt:       c.SubmittedAt,
		CompletedAt:       c.CompletedAt,
		ExpiresAt:         c.ExpiresAt.Unix(),
	}
}

func (it caseItem) toCase() *models.Case {
	return &models.Case{
		ID:                it.ID,
		ClientID:          it.ClientID,
		DocumentType:      models.DocumentType(it.DocumentType),
		Status:            models.Status(it.Status),
		Customer:          it.Customer,
		ExtractedData:     it.ExtractedData,
		FieldConfidence:   it.FieldConfidence,
		OverallConfidence: it.OverallConfidence,
		Biometrics:        it.Biometrics,
		RejectionReason:   it.RejectionReason,
		RejectionCode:     it.RejectionCode,
		RedirectURL:       it.RedirectURL,
		WebhookURL:        it.WebhookURL,
		Metadata:          it.Metadata,
		CreatedAt:         it.CreatedAt,
		UpdatedAt:         it.UpdatedAt,
		SubmittedAt:       it.SubmittedAt,
		CompletedAt:       it.CompletedAt,
		ExpiresAt:         time.Unix(it.ExpiresAt, 0).UTC(),
	}
}

func (s *DynamoStore) put(ctx context.Context, c *models.Case, condition string, values map[string]types.AttributeValue) error {
	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return fmt.Errorf("encode case item: %w", err)
	}
	in := &dynamodb.PutItemInput{
		TableName:                           aws.String(s.table),
		Item:                                item,
		ConditionExpression:                 aws.String(condition),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if len(values) > 0 {
		in.ExpressionAttributeNames = map[string]string{"#status": "status"}
		in.ExpressionAttributeValues = values
	}
	_, err = s.db.PutItem(ctx, in)
	return err
}

func (s *DynamoStore) Create(ctx context.Context, c *models.Case) error {
	err := s.put(ctx, c, "attribute_not_exists(PK)", nil)
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	return awsutil.MapDynamoError(err)
}

func (s *DynamoStore) FindByID(ctx context.Context, id string) (*models.Case, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: casePK(id)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, awsutil.MapDynamoError(err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("case %s: %w", id, sentinel.ErrNotFound)
	}
	var item caseItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode case item: %w", err)
	}
	return item.toCase(), nil
}

// UpdateIfStatus replaces the item when its status still equals expected.
// The old image returned on a failed condition tells a missing case apart
// from a concurrent transition.
func (s *DynamoStore) UpdateIfStatus(ctx context.Context, c *models.Case, expected models.Status) error {
	err := s.put(ctx, c, "attribute_exists(PK) AND #status = :expected", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrNotFound)
		}
		current := ""
		if sv, ok := ccf.Item["status"].(*types.AttributeValueMemberS); ok {
			current = sv.Value
		}
		return fmt.Errorf("case %s is %s, expected %s: %w", c.ID, current, expected, sentinel.ErrInvalidState)
	}
	return awsutil.MapDynamoError(err)
}

// ListExpirable queries the status index once per open status.
func (s *DynamoStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Case, error) {
	var out []*models.Case
	for _, status := range openStatuses {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			IndexName:              aws.String(s.statusIndex),
			KeyConditionExpression: aws.String("#status = :status AND expires_at <= :now"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
				":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			},
		}
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit))
		}
		res, err := s.db.Query(ctx, in)
		if err != nil {
			return nil, awsutil.MapDynamoError(err)
		}
		for _, raw := range res.Items {
			var item caseItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("decode case item: %w", err)
			}
			out = append(out, item.toCase())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var openStatuses = []models.Status{
	models.StatusCreated,
	models.StatusDocumentsUploading,
	models.StatusSubmitted,
	models.StatusProcessing,
	models.StatusPendingReview,
	models.StatusInReview,
	models.StatusResubmissionRequired,
}
