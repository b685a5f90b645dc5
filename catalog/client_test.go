package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/loreforge/codex/catalog"
)

// fakeClient is an in-memory stand-in for the DynamoDB client. It stores
// items keyed by collection and id, honors the conditional expressions the
// gateway uses, and records every request for inspection. Query behavior
// can be overridden per test via queryFn.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	queryFn func(input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)

	getErr    error
	putErr    error
	updateErr error
	deleteErr error
	queryErr  error

	gets    []*dynamodb.GetItemInput
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	deletes []*dynamodb.DeleteItemInput
	queries []*dynamodb.QueryInput
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(collection, id string) string {
	return collection + "|" + id
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// seed stores a record directly, bypassing the gateway.
func (f *fakeClient) seed(t *testing.T, collection string, rec map[string]any) {
	t.Helper()
	id, _ := rec["id"].(string)
	f.seedAt(t, collection, id, rec)
}

// seedAt stores a record under an explicit key, even when the record's own
// id field disagrees.
func (f *fakeClient) seedAt(t *testing.T, collection, id string, rec map[string]any) {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("seed marshal: %v", err)
	}
	item["collection"] = &types.AttributeValueMemberS{Value: collection}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(collection, id)] = item
}

func (f *fakeClient) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, input)
	if f.getErr != nil {
		return nil, f.getErr
	}
	key := itemKey(stringAttr(input.Key, "collection"), stringAttr(input.Key, "id"))
	item, ok := f.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, input)
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := itemKey(stringAttr(input.Item, "collection"), stringAttr(input.Item, "id"))
	if input.ConditionExpression != nil && strings.Contains(*input.ConditionExpression, "attribute_not_exists") {
		if _, exists := f.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("item exists")}
		}
	}
	f.items[key] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, input)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	key := itemKey(stringAttr(input.Key, "collection"), stringAttr(input.Key, "id"))
	item, exists := f.items[key]
	if input.ConditionExpression != nil && strings.Contains(*input.ConditionExpression, "attribute_exists") && !exists {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("item absent")}
	}
	if !exists {
		item = map[string]types.AttributeValue{}
		for k, v := range input.Key {
			item[k] = v
		}
	}
	// The gateway pairs #attrN with :valN; apply each SET pair.
	for ph, field := range input.ExpressionAttributeNames {
		if !strings.HasPrefix(ph, "#attr") {
			continue
		}
		valueKey := ":val" + strings.TrimPrefix(ph, "#attr")
		if av, ok := input.ExpressionAttributeValues[valueKey]; ok {
			item[field] = av
		}
	}
	f.items[key] = item
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, input)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.items, itemKey(stringAttr(input.Key, "collection"), stringAttr(input.Key, "id")))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	f.queries = append(f.queries, input)
	fn := f.queryFn
	err := f.queryErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(input)
	}

	// Default: return everything in the requested collection partition,
	// ignoring filter expressions.
	collection := ""
	if v, ok := input.ExpressionAttributeValues[":collection"].(*types.AttributeValueMemberS); ok {
		collection = v.Value
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for key, item := range f.items {
		if strings.HasPrefix(key, collection+"|") {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

var _ catalog.Client = (*fakeClient)(nil)

// errTimeout stands in for a transport failure.
var errTimeout = errors.New("request timed out")

// ids builds n sequential test ids.
func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("rec-%03d", i)
	}
	return out
}
