package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const runTTL = 30 * 24 * time.Hour

// ErrRunNotFound indicates the requested run id does not exist.
var ErrRunNotFound = errors.New("jobs: run not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RunStore is the DynamoDB run ledger, keyed by runId with a TTL on
// expiresAt.
type RunStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ RunRecorder = (*RunStore)(nil)

// NewRunStore builds a ledger backed by the provided DynamoDB client.
func NewRunStore(client dynamoAPI, tableName string, logger *logging.Logger) *RunStore {
	if client == nil {
		panic("jobs: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobs: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RunStore{client: client, tableName: tableName, logger: logger}
}

// Record writes a finished run. Run ids are never overwritten.
func (s *RunStore) Record(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("jobs: run id required")
	}
	if run.ExpiresAt == 0 {
		run.ExpiresAt = run.StartedAt.Add(runTTL).Unix()
	}
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal run: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: failed to persist run: %w", err)
	}
	return nil
}

// Get fetches a run by id.
func (s *RunStore) Get(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, errors.New("jobs: run id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: failed to fetch run: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRunNotFound
	}
	var run Run
	if err := attributevalue.UnmarshalMap(out.Item, &run); err != nil {
		return nil, fmt.Errorf("jobs: failed to decode run: %w", err)
	}
	return &run, nil
}
