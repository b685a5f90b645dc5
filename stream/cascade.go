// Package stream provides DynamoDB Streams handlers for reference hygiene.
//
// When a referenced record is deleted out from under the catalog (a game
// system, say), every record still pointing at it is re-statused to obsolete
// so editors see the dangling references instead of silently broken rows.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/loreforge/codex/catalog"
)

// Handler processes DynamoDB stream events for reference cascades.
type Handler struct {
	gateway *catalog.Gateway
	refs    *Refs
	logger  *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(gateway *catalog.Gateway, refs *Refs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gateway: gateway,
		refs:    refs,
		logger:  logger,
	}
}

// HandleReferenceCascade processes stream events and obsoletes records
// whose reference target was removed. Designed to run as an AWS Lambda
// handler on the catalog table's stream.
func (h *Handler) HandleReferenceCascade(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	image := record.Change.OldImage
	collection := getStringAttr(image, "collection")
	id := getStringAttr(image, catalog.FieldID)
	if collection == "" || id == "" {
		return nil
	}

	refs := h.refs.ReferencesTo(collection)
	if len(refs) == 0 {
		return nil
	}

	h.logger.Info("processing reference cascade",
		"collection", collection,
		"id", id,
		"references", len(refs),
	)

	obsoleted := 0
	for _, ref := range refs {
		q := catalog.BuildQuery(ref.SourceCollection, []catalog.Filter{
			{Field: ref.Field, Op: catalog.OpEqual, Value: id},
		}, catalog.Sort{}, 0, catalog.Cursor{})

		referencing, _, err := h.gateway.List(ctx, q)
		if err != nil {
			return fmt.Errorf("query %s by %s: %w", ref.SourceCollection, ref.Field, err)
		}

		for _, rec := range referencing {
			// Already obsolete: nothing to do, the cascade is idempotent.
			if rec.Status() == catalog.StatusObsolete {
				continue
			}
			_, err := h.gateway.Update(ctx, ref.SourceCollection, rec.ID(), catalog.Record{
				catalog.FieldStatus: string(catalog.StatusObsolete),
			})
			if err != nil {
				h.logger.Warn("failed to obsolete referencing record",
					"collection", ref.SourceCollection,
					"id", rec.ID(),
					"error", err,
				)
				// Continue - idempotent, will retry
				continue
			}
			obsoleted++
		}
	}

	h.logger.Info("reference cascade completed",
		"collection", collection,
		"id", id,
		"obsoleted", obsoleted,
	)

	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		return v.String()
	}
	return ""
}
