package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/song-checkout/internal/aws"
)

const (
	createCondition   = "attribute_not_exists(order_id)"
	markPaidUpdate    = "SET #s = :paid, stripe_session_id = :ref, amount_total = :amt, payment_status = :ps, paid_at = if_not_exists(paid_at, :now)"
	markPaidCondition = "attribute_exists(order_id) AND (#s = :pending OR (#s = :paid AND stripe_session_id = :ref))"
)

// DynamoStore keeps orders in a DynamoDB table keyed by order_id.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a new orders store backed by tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

var _ Store = (*DynamoStore)(nil)

// Create puts the order, guarded by attribute_not_exists(order_id).
func (s *DynamoStore) Create(ctx context.Context, o Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(createCondition),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrDuplicateID
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// MarkPaid conditionally sets the paid fields in a single UpdateItem. The
// condition admits pending orders and re-confirmation by the same session.
// The pre-update image tells which caller performed the transition.
func (s *DynamoStore) MarkPaid(ctx context.Context, id string, p Payment) (*Order, bool, error) {
	paidAt := s.nowFunc().UTC()
	now, err := attributevalue.Marshal(paidAt)
	if err != nil {
		return nil, false, fmt.Errorf("marshal paid_at: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(id),
		UpdateExpression:         awsString(markPaidUpdate),
		ConditionExpression:      awsString(markPaidCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":    &types.AttributeValueMemberS{Value: StatusPaid},
			":pending": &types.AttributeValueMemberS{Value: StatusPendingPayment},
			":ref":     &types.AttributeValueMemberS{Value: p.SessionRef},
			":amt":     &types.AttributeValueMemberN{Value: strconv.FormatInt(p.AmountTotal, 10)},
			":ps":      &types.AttributeValueMemberS{Value: p.PaymentStatus},
			":now":     now,
		},
		ReturnValues: types.ReturnValueAllOld,
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if !errors.As(err, &cf) {
			return nil, false, fmt.Errorf("update item: %w", err)
		}
		// the condition covers both a missing item and a foreign status
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		if current == nil {
			return nil, false, ErrNotFound
		}
		return nil, false, ErrStatusConflict
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, false, fmt.Errorf("unmarshal order: %w", err)
	}
	// replay the update on the old image; the condition already held
	first, err := o.applyPayment(p, paidAt)
	if err != nil {
		return nil, false, err
	}
	return &o, first, nil
}

// List scans the whole table and sorts newest first.
func (s *DynamoStore) List(ctx context.Context) ([]Order, error) {
	var (
		list  []Order
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		list = append(list, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	SortNewestFirst(list)
	return list, nil
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
