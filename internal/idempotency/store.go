package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/song-checkout/internal/aws"
)

// beginCondition admits a new key, a retry of a failed one, or a takeover of
// an in-progress claim whose lease lapsed (its owner died mid-run).
const beginCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR (#s = :inprogress AND lease_until < :now)"

// DefaultLease bounds how long an IN_PROGRESS claim blocks other deliveries.
const DefaultLease = 5 * time.Minute

// Guard runs a handler at most once per key.
type Guard interface {
	// Do runs fn unless key was already processed or is in progress. ran
	// reports whether fn was invoked.
	Do(ctx context.Context, key, orderID string, fn func(ctx context.Context) error) (ran bool, err error)
}

// Store encapsulates processed-event records in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a record blocks redeliveries
	lease     time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: TTL of each entry (e.g., 72*time.Hour, longer than Stripe's retry window)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		lease:     DefaultLease,
		nowFunc:   time.Now,
	}
}

var _ Guard = (*Store)(nil)

// Begin records key as IN_PROGRESS. Returns (true, nil) if this caller owns
// the key, (false, nil) if it is done or held under a live lease.
func (s *Store) Begin(ctx context.Context, key, orderID string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:        key,
		Status:     StatusInProgress,
		OrderID:    orderID,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.ttlWindow).Unix(),
		LeaseUntil: now.Add(s.lease).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(beginCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       recordKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE.
func (s *Store) MarkDone(ctx context.Context, key string) error {
	return s.setStatus(ctx, key, StatusDone, "")
}

// MarkFailed sets status to FAILED with a note, which lets a redelivery retry.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.setStatus(ctx, key, StatusFailed, note)
}

func (s *Store) setStatus(ctx context.Context, key, status, note string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              recordKey(key),
		UpdateExpression: awsString("SET #s = :st, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: status},
			":n":  &types.AttributeValueMemberS{Value: note},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (mark %s): %w", status, err)
	}
	return nil
}

// Do implements Guard. A failing fn marks the key FAILED so the next
// delivery runs it again; fn's error is returned.
func (s *Store) Do(ctx context.Context, key, orderID string, fn func(ctx context.Context) error) (bool, error) {
	owned, err := s.Begin(ctx, key, orderID)
	if err != nil {
		return false, err
	}
	if !owned {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		if markErr := s.MarkFailed(ctx, key, err.Error()); markErr != nil {
			return true, errors.Join(err, markErr)
		}
		return true, err
	}
	return true, s.MarkDone(ctx, key)
}

// Noop is a Guard that always runs fn, for deployments without an idempotency table.
type Noop struct{}

func (Noop) Do(ctx context.Context, key, orderID string, fn func(ctx context.Context) error) (bool, error) {
	return true, fn(ctx)
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Helper
func awsString(s string) *string { return &s }
