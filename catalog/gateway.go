package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// attrCollection is the partition key attribute. It is bookkeeping for the
// table layout, not part of the record, and is stripped on read.
const attrCollection = "collection"

// PK is a catalog table primary key.
type PK map[string]types.AttributeValue

// Client is the slice of the DynamoDB API the gateway uses. *dynamodb.Client
// satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Gateway provides document lifecycle operations against the catalog table,
// stamping bookkeeping metadata on every write.
type Gateway struct {
	client Client
	config Config
	now    func() time.Time
}

// NewGateway creates a new Gateway.
func NewGateway(client Client, config Config) *Gateway {
	config.validate()
	return &Gateway{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// key builds the table primary key for a record.
func (g *Gateway) key(collection, id string) PK {
	return PK{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		FieldID:        &types.AttributeValueMemberS{Value: id},
	}
}

// Get retrieves a record by id, returning a nil record when absent.
func (g *Gateway) Get(ctx context.Context, collection, id string) (Record, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	if id == "" {
		return nil, ErrMissingID
	}

	result, err := g.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(g.config.Table),
		Key:       g.key(collection, id),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	return g.decode(result.Item)
}

// ExistsByID reports whether a record exists and carries a non-empty id.
func (g *Gateway) ExistsByID(ctx context.Context, collection, id string) (bool, error) {
	rec, err := g.Get(ctx, collection, id)
	if err != nil {
		return false, err
	}
	return rec.ID() != "", nil
}

// Create stores a new record, generating a collection-scoped id when none is
// supplied, and returns the stored record as the backend holds it.
// Creation metadata: createdAt = updatedAt = now, isUpdated = false, and
// status defaults to active when the payload carries none.
func (g *Gateway) Create(ctx context.Context, collection string, data Record, id string) (Record, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := NewTimestamp(g.now())
	stamped := data.Clone()
	stamped[FieldID] = id
	stamped[FieldCreatedAt] = now
	stamped[FieldUpdatedAt] = now
	stamped[FieldIsUpdated] = false
	if stamped.Status() == "" {
		stamped[FieldStatus] = string(StatusActive)
	}

	item, err := attributevalue.MarshalMap(map[string]any(stamped))
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	item[attrCollection] = &types.AttributeValueMemberS{Value: collection}

	_, err = g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(g.config.Table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": FieldID},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	return g.Get(ctx, collection, id)
}

// Update applies a partial record over the stored one and returns the result
// as the backend holds it, or nil if the record vanished. The update stamps
// updatedAt = now and isUpdated = true; caller-supplied values for either
// win, but both are always present in the written payload.
func (g *Gateway) Update(ctx context.Context, collection, id string, partial Record) (Record, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	if id == "" {
		return nil, ErrMissingID
	}

	// Stamps go in first so the caller's own values overwrite them.
	merged := Record{
		FieldUpdatedAt: NewTimestamp(g.now()),
		FieldIsUpdated: true,
	}
	for k, v := range partial {
		merged[k] = v
	}

	var setClauses []string
	exprNames := map[string]string{"#id": FieldID}
	exprValues := map[string]types.AttributeValue{}

	i := 0
	for k, v := range merged {
		// The key attributes are immutable.
		if k == FieldID || k == attrCollection {
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	if len(setClauses) == 0 {
		return g.Get(ctx, collection, id)
	}

	updateExpr := "SET " + joinStrings(setClauses, ", ")

	_, err := g.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(g.config.Table),
		Key:                       g.key(collection, id),
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// The record vanished between the caller's read and this write.
			return nil, nil
		}
		return nil, err
	}

	return g.Get(ctx, collection, id)
}

// Delete removes a record. Deleting an absent record is not an error.
func (g *Gateway) Delete(ctx context.Context, collection, id string) error {
	if collection == "" {
		return ErrMissingCollection
	}
	if id == "" {
		return ErrMissingID
	}

	_, err := g.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(g.config.Table),
		Key:       g.key(collection, id),
	})
	return err
}

// decode converts a raw item into a Record, stripping the partition
// attribute and tagging timestamp values.
func (g *Gateway) decode(item map[string]types.AttributeValue) (Record, error) {
	raw := map[string]any{}
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	delete(raw, attrCollection)
	for k, v := range raw {
		raw[k] = rehydrate(v)
	}
	return Record(raw), nil
}

// joinStrings joins strings with a separator (avoiding strings package import).
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
