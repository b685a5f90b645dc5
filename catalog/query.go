package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Filter operators.
const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpIn           = "in"
	OpNotIn        = "not-in"
)

// Null is the explicit null filter value. A filter whose Value is Go nil is
// considered unset and skipped; a filter against Null matches records whose
// field holds a stored null.
type nullValue struct{}

var Null = nullValue{}

// Filter is a (field, operator, value) triple. A triple with an empty field
// or operator, or a nil value, is invalid and silently skipped: callers
// routinely leave optional query parameters unset.
type Filter struct {
	Field string
	Op    string
	Value any
}

func (f Filter) valid() bool {
	return f.Field != "" && f.Op != "" && f.Value != nil
}

// Sort is a (field, direction) pair. Direction is "asc" or "desc".
type Sort struct {
	Field     string
	Direction string
}

func (s Sort) valid() bool {
	return s.Field != "" && s.Direction != ""
}

// DefaultSort is applied when a query carries no usable sort spec.
var DefaultSort = Sort{Field: FieldCreatedAt, Direction: "desc"}

// Cursor continues a query after a previous page. Either Token (the opaque
// continuation key from a previous List call, passed through unmodified) or
// Values (explicit sort-key values: the sort field value, then the id).
type Cursor struct {
	Token  map[string]types.AttributeValue
	Values []any
}

func (c Cursor) empty() bool {
	return c.Token == nil && len(c.Values) == 0
}

// Query is a composable collection query: optional filters, a sort spec
// with a default, an optional result cap, and an optional cursor.
type Query struct {
	Collection string
	Filters    []Filter
	Sort       Sort
	Limit      int32
	Cursor     Cursor
}

// BuildQuery assembles a query over a collection. Invalid filter triples are
// dropped, a missing sort spec falls back to DefaultSort, and a limit of zero
// means no cap.
func BuildQuery(collection string, filters []Filter, sort Sort, limit int32, cursor Cursor) Query {
	return Query{
		Collection: collection,
		Filters:    filters,
		Sort:       sort,
		Limit:      limit,
		Cursor:     cursor,
	}
}

// input translates the query for the backend. Clauses are applied in a fixed
// order (filters, sort, limit, cursor): the backend picks its index from the
// assembled request, and the order keeps that choice deterministic.
func (q Query) input(cfg Config) (*dynamodb.QueryInput, error) {
	if q.Collection == "" {
		return nil, ErrMissingCollection
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(cfg.Table),
		KeyConditionExpression:    aws.String(collectionKeyExpr),
		ExpressionAttributeNames:  collectionKeyNames(),
		ExpressionAttributeValues: collectionKeyValues(q.Collection),
	}

	// 1. Filters. Invalid triples are skipped, not errors.
	var filterExpr string
	for i, f := range q.Filters {
		if !f.valid() {
			continue
		}
		expr, names, values, err := f.fragment(i)
		if err != nil {
			return nil, err
		}
		if filterExpr != "" {
			filterExpr += " AND "
		}
		filterExpr += expr
		input.ExpressionAttributeNames = mergeExprNames(input.ExpressionAttributeNames, names)
		input.ExpressionAttributeValues = mergeExprValues(input.ExpressionAttributeValues, values)
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}

	// 2. Sort. A malformed spec falls back to the default.
	sort := q.Sort
	if !sort.valid() {
		sort = DefaultSort
	}
	input.IndexName = aws.String(cfg.IndexPrefix + sort.Field)
	input.ScanIndexForward = aws.Bool(sort.Direction != "desc")

	// 3. Limit. Zero means no cap.
	if q.Limit > 0 {
		input.Limit = aws.Int32(q.Limit)
	}

	// 4. Cursor.
	if !q.Cursor.empty() {
		start, err := q.Cursor.startKey(q.Collection, sort.Field)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = start
	}

	return input, nil
}

// fragment builds the filter-expression fragment for one triple.
func (f Filter) fragment(i int) (string, map[string]string, map[string]types.AttributeValue, error) {
	switch f.Op {
	case OpIn, OpNotIn:
		ids, err := membershipOperands(f.Value)
		if err != nil {
			return "", nil, nil, err
		}
		prefix := fmt.Sprintf("f%d", i)
		expr, mnames, values := membershipExpr(prefix, ids, f.Op == OpNotIn)
		// membershipExpr binds the name to the id field; rebind to this
		// filter's field.
		mnames["#"+prefix] = f.Field
		return expr, mnames, values, nil
	}

	nameKey := fmt.Sprintf("#f%d", i)
	names := map[string]string{nameKey: f.Field}

	var op string
	switch f.Op {
	case OpEqual:
		op = "="
	case OpNotEqual:
		op = "<>"
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		op = f.Op
	default:
		return "", nil, nil, fmt.Errorf("codex: unsupported filter operator %q", f.Op)
	}

	av, err := marshalFilterValue(f.Value)
	if err != nil {
		return "", nil, nil, err
	}
	valueKey := fmt.Sprintf(":fv%d", i)
	expr := fmt.Sprintf("%s %s %s", nameKey, op, valueKey)
	return expr, names, map[string]types.AttributeValue{valueKey: av}, nil
}

func marshalFilterValue(v any) (types.AttributeValue, error) {
	if _, ok := v.(nullValue); ok {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return attributevalue.Marshal(v)
}

// membershipOperands extracts the id list for an in / not-in filter and
// enforces the backend operand cap.
func membershipOperands(v any) ([]string, error) {
	var ids []string
	switch t := v.(type) {
	case []string:
		ids = t
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("codex: membership operands must be strings, got %T", e)
			}
			ids = append(ids, s)
		}
	default:
		return nil, fmt.Errorf("codex: membership filter value must be a string list, got %T", v)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("codex: membership filter needs at least one operand")
	}
	if len(ids) > MaxMembershipValues {
		return nil, ErrMembershipTooLarge
	}
	return ids, nil
}

// startKey builds the ExclusiveStartKey for a cursor. Explicit values are
// interpreted as the sort field value followed by the record id.
func (c Cursor) startKey(collection, sortField string) (map[string]types.AttributeValue, error) {
	if c.Token != nil {
		return c.Token, nil
	}
	start := map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
	}
	sortVal, err := attributevalue.Marshal(c.Values[0])
	if err != nil {
		return nil, fmt.Errorf("marshal cursor value: %w", err)
	}
	start[sortField] = sortVal
	if len(c.Values) > 1 {
		id, ok := c.Values[1].(string)
		if !ok {
			return nil, fmt.Errorf("codex: cursor id value must be a string, got %T", c.Values[1])
		}
		start[FieldID] = &types.AttributeValueMemberS{Value: id}
	}
	return start, nil
}

// List executes a query. With a limit it returns one page and the cursor for
// the next; without one it drains every page. The returned cursor is empty
// when the collection is exhausted.
func (g *Gateway) List(ctx context.Context, q Query) ([]Record, Cursor, error) {
	input, err := q.input(g.config)
	if err != nil {
		return nil, Cursor{}, err
	}

	var records []Record
	for {
		page, err := g.client.Query(ctx, input)
		if err != nil {
			return nil, Cursor{}, err
		}
		for _, raw := range page.Items {
			rec, err := g.decode(raw)
			if err != nil {
				return nil, Cursor{}, err
			}
			records = append(records, rec)
		}
		if q.Limit > 0 || page.LastEvaluatedKey == nil {
			return records, Cursor{Token: page.LastEvaluatedKey}, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}
