package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/loreforge/codex/internal/batch"
)

// ByIDs returns the records whose ids appear in ids. The backend caps
// membership clauses at MaxMembershipValues operands, so the id set is split
// into chunks and one query is issued per chunk, concurrently. Results are
// concatenated in chunk order; order inside a chunk is backend-defined.
// An empty id set returns nil without touching the network.
func (g *Gateway) ByIDs(ctx context.Context, collection string, ids []string) ([]Record, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks := batch.Chunk(ids, MaxMembershipValues)
	results := make([][]Record, len(chunks))
	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for n, chunk := range chunks {
		wg.Add(1)
		go func(n int, chunk []string) {
			defer wg.Done()
			recs, err := g.queryMembership(ctx, collection, chunk, false)
			if err != nil {
				errs <- fmt.Errorf("chunk %d: %w", n, err)
				return
			}
			results[n] = recs
		}(n, chunk)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var all []Record
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all, nil
}

// ExcludingIDs returns the records whose ids do not appear in excluded.
// Up to MaxMembershipValues exclusions are expressed as a single none-of
// query. Beyond that the backend cannot express the clause, so the whole
// collection is scanned and filtered in memory: a deliberate trade of
// O(collection) reads for one round trip instead of an intersection over
// capped chunks. An empty exclusion set takes the same scan path, unfiltered.
func (g *Gateway) ExcludingIDs(ctx context.Context, collection string, excluded []string) ([]Record, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}

	if len(excluded) >= 1 && len(excluded) <= MaxMembershipValues {
		return g.queryMembership(ctx, collection, excluded, true)
	}

	all, err := g.scanCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(excluded) == 0 {
		return all, nil
	}

	drop := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		drop[id] = struct{}{}
	}
	kept := all[:0]
	for _, rec := range all {
		if _, skip := drop[rec.ID()]; !skip {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// queryMembership issues a single one-of / none-of query for at most
// MaxMembershipValues ids.
func (g *Gateway) queryMembership(ctx context.Context, collection string, ids []string, negate bool) ([]Record, error) {
	filterExpr, names, values := membershipExpr("m", ids, negate)

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(g.config.Table),
		KeyConditionExpression:    aws.String(collectionKeyExpr),
		FilterExpression:          aws.String(filterExpr),
		ExpressionAttributeNames:  mergeExprNames(collectionKeyNames(), names),
		ExpressionAttributeValues: mergeExprValues(collectionKeyValues(collection), values),
	}

	return g.drain(ctx, input)
}

// scanCollection reads the entire collection partition.
func (g *Gateway) scanCollection(ctx context.Context, collection string) ([]Record, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(g.config.Table),
		KeyConditionExpression:    aws.String(collectionKeyExpr),
		ExpressionAttributeNames:  collectionKeyNames(),
		ExpressionAttributeValues: collectionKeyValues(collection),
	}
	return g.drain(ctx, input)
}

// drain pages through a query until the backend reports no more results.
func (g *Gateway) drain(ctx context.Context, input *dynamodb.QueryInput) ([]Record, error) {
	var records []Record
	for {
		page, err := g.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			rec, err := g.decode(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if page.LastEvaluatedKey == nil {
			return records, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}
