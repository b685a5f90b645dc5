package stream_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/loreforge/codex/catalog"
	"github.com/loreforge/codex/stream"
)

// fakeClient is an in-memory stand-in for the DynamoDB API the gateway
// uses. Items are keyed "collection|id"; Query scans the partition and
// honors single-field equality filters.
type fakeClient struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	updates []*dynamodb.UpdateItemInput
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeClient) seed(t *testing.T, collection string, rec catalog.Record) {
	t.Helper()
	item, err := attributevalue.MarshalMap(map[string]any(rec))
	if err != nil {
		t.Fatalf("marshal seed record: %v", err)
	}
	item["collection"] = &types.AttributeValueMemberS{Value: collection}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[collection+"|"+rec.ID()] = item
}

func (f *fakeClient) status(t *testing.T, collection, id string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[collection+"|"+id]
	if !ok {
		t.Fatalf("record %s/%s not found", collection, id)
	}
	s, ok := item[catalog.FieldStatus].(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("record %s/%s has no string status", collection, id)
	}
	return s.Value
}

func (f *fakeClient) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func itemKey(key map[string]types.AttributeValue) string {
	collection := key["collection"].(*types.AttributeValueMemberS).Value
	id := key[catalog.FieldID].(*types.AttributeValueMemberS).Value
	return collection + "|" + id
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, params)

	key := itemKey(params.Key)
	item, ok := f.items[key]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	// Apply the SET expression by pairing #attrN with :valN.
	for nameKey, attr := range params.ExpressionAttributeNames {
		if !strings.HasPrefix(nameKey, "#attr") {
			continue
		}
		valueKey := ":val" + strings.TrimPrefix(nameKey, "#attr")
		if av, ok := params.ExpressionAttributeValues[valueKey]; ok {
			item[attr] = av
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	collection := params.ExpressionAttributeValues[":collection"].(*types.AttributeValueMemberS).Value

	var field, want string
	if params.FilterExpression != nil {
		field = params.ExpressionAttributeNames["#f0"]
		if av, ok := params.ExpressionAttributeValues[":fv0"].(*types.AttributeValueMemberS); ok {
			want = av.Value
		}
	}

	var out []map[string]types.AttributeValue
	for key, item := range f.items {
		if !strings.HasPrefix(key, collection+"|") {
			continue
		}
		if field != "" {
			s, ok := item[field].(*types.AttributeValueMemberS)
			if !ok || s.Value != want {
				continue
			}
		}
		out = append(out, item)
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func removeEvent(collection, id string) events.DynamoDBEvent {
	return events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{{
			EventID:   "evt-" + id,
			EventName: "REMOVE",
			Change: events.DynamoDBStreamRecord{
				OldImage: map[string]events.DynamoDBAttributeValue{
					"collection":    events.NewStringAttribute(collection),
					catalog.FieldID: events.NewStringAttribute(id),
				},
			},
		}},
	}
}

func catalogRefs() *stream.Refs {
	refs := stream.NewRefs()
	refs.Register(stream.Reference{
		TargetCollection: catalog.CollectionGameSystems,
		SourceCollection: catalog.CollectionSources,
		Field:            "gameSystemId",
	})
	refs.Register(stream.Reference{
		TargetCollection: catalog.CollectionGameSystems,
		SourceCollection: catalog.CollectionKeywords,
		Field:            "gameSystemId",
	})
	return refs
}

func newTestHandler(client *fakeClient) *stream.Handler {
	gateway := catalog.NewGateway(client, catalog.DefaultConfig())
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return stream.NewHandler(gateway, catalogRefs(), logger)
}

func TestCascadeObsoletesReferencingRecords(t *testing.T) {
	client := newFakeClient()
	client.seed(t, catalog.CollectionSources, catalog.Record{
		"id": "src-1", "name": "Core Rulebook", "status": "active", "gameSystemId": "gs-1",
	})
	client.seed(t, catalog.CollectionSources, catalog.Record{
		"id": "src-2", "name": "Other System Book", "status": "active", "gameSystemId": "gs-2",
	})
	client.seed(t, catalog.CollectionKeywords, catalog.Record{
		"id": "kw-1", "name": "Flying", "status": "active", "gameSystemId": "gs-1",
	})

	h := newTestHandler(client)
	if err := h.HandleReferenceCascade(context.Background(), removeEvent(catalog.CollectionGameSystems, "gs-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := client.status(t, catalog.CollectionSources, "src-1"); got != "obsolete" {
		t.Errorf("src-1 status = %q, want obsolete", got)
	}
	if got := client.status(t, catalog.CollectionKeywords, "kw-1"); got != "obsolete" {
		t.Errorf("kw-1 status = %q, want obsolete", got)
	}
	if got := client.status(t, catalog.CollectionSources, "src-2"); got != "active" {
		t.Errorf("src-2 references another system, status = %q, want active", got)
	}
}

func TestCascadeSkipsAlreadyObsoleteRecords(t *testing.T) {
	client := newFakeClient()
	client.seed(t, catalog.CollectionSources, catalog.Record{
		"id": "src-1", "name": "Old Edition", "status": "obsolete", "gameSystemId": "gs-1",
	})

	h := newTestHandler(client)
	if err := h.HandleReferenceCascade(context.Background(), removeEvent(catalog.CollectionGameSystems, "gs-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := client.updateCount(); n != 0 {
		t.Errorf("expected zero writes for already-obsolete records, got %d", n)
	}
}

func TestCascadeIgnoresNonRemoveEvents(t *testing.T) {
	client := newFakeClient()
	client.seed(t, catalog.CollectionSources, catalog.Record{
		"id": "src-1", "name": "Core Rulebook", "status": "active", "gameSystemId": "gs-1",
	})

	h := newTestHandler(client)
	for _, name := range []string{"INSERT", "MODIFY"} {
		event := removeEvent(catalog.CollectionGameSystems, "gs-1")
		event.Records[0].EventName = name
		if err := h.HandleReferenceCascade(context.Background(), event); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
	}
	if n := client.updateCount(); n != 0 {
		t.Errorf("expected zero writes for non-remove events, got %d", n)
	}
}

func TestCascadeIgnoresUnreferencedCollections(t *testing.T) {
	client := newFakeClient()
	client.seed(t, catalog.CollectionSources, catalog.Record{
		"id": "src-1", "name": "Core Rulebook", "status": "active", "gameSystemId": "gs-1",
	})

	h := newTestHandler(client)
	// Nothing points at sources, so removing one cascades nowhere.
	if err := h.HandleReferenceCascade(context.Background(), removeEvent(catalog.CollectionSources, "src-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := client.updateCount(); n != 0 {
		t.Errorf("expected zero writes, got %d", n)
	}
}

func TestCascadeProcessesMultipleRecords(t *testing.T) {
	client := newFakeClient()
	for i := 1; i <= 3; i++ {
		client.seed(t, catalog.CollectionSources, catalog.Record{
			"id":           fmt.Sprintf("src-%d", i),
			"name":         fmt.Sprintf("Book %d", i),
			"status":       "active",
			"gameSystemId": "gs-1",
		})
	}

	h := newTestHandler(client)
	if err := h.HandleReferenceCascade(context.Background(), removeEvent(catalog.CollectionGameSystems, "gs-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("src-%d", i)
		if got := client.status(t, catalog.CollectionSources, id); got != "obsolete" {
			t.Errorf("%s status = %q, want obsolete", id, got)
		}
	}
}

func TestRefsRegistry(t *testing.T) {
	refs := catalogRefs()

	if got := len(refs.ReferencesTo(catalog.CollectionGameSystems)); got != 2 {
		t.Errorf("expected 2 references to game systems, got %d", got)
	}
	if refs.IsReferenced(catalog.CollectionSources) {
		t.Error("nothing references sources")
	}
	if got := len(refs.All()); got != 2 {
		t.Errorf("expected 2 registered references, got %d", got)
	}
}
