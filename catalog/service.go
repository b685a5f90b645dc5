package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ListOptions carries the optional query parameters for LoadEntities.
type ListOptions struct {
	Filters []Filter
	Sort    Sort
	Limit   int32
	Cursor  Cursor
}

// Service is the surface the admin UI talks to: loads, saves and deletes
// with an in-flight indicator, an authorization gate on writes, and failure
// surfacing through the notifier. Backend errors are still returned to the
// caller; the notifier is informational only.
type Service struct {
	gateway  *Gateway
	notify   Notifier
	logger   *slog.Logger
	inflight atomic.Int32
}

// NewService creates a Service. notify may be nil when nothing listens;
// logger falls back to slog.Default.
func NewService(gateway *Gateway, notify Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway: gateway,
		notify:  notify,
		logger:  logger,
	}
}

// Gateway exposes the underlying gateway for callers that need raw access.
func (s *Service) Gateway() *Gateway {
	return s.gateway
}

// Loading reports whether any load, save or delete issued through this
// service is still outstanding.
func (s *Service) Loading() bool {
	return s.inflight.Load() > 0
}

func (s *Service) begin() func() {
	s.inflight.Add(1)
	return func() { s.inflight.Add(-1) }
}

// surface logs a failure and pushes it to the notifier, substituting the
// fallback phrase when the error carries no message.
func (s *Service) surface(op, collection string, err error, fallback string) {
	s.logger.Error("catalog operation failed",
		"op", op,
		"collection", collection,
		"error", err,
	)
	if s.notify == nil {
		return
	}
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	s.notify(msg)
}

// LoadEntities fetches a page of records from a collection.
func (s *Service) LoadEntities(ctx context.Context, collection string, opts ListOptions) ([]Record, Cursor, error) {
	defer s.begin()()

	q := BuildQuery(collection, opts.Filters, opts.Sort, opts.Limit, opts.Cursor)
	records, next, err := s.gateway.List(ctx, q)
	if err != nil {
		s.surface("load", collection, err, "Failed to load records")
		return nil, Cursor{}, err
	}
	return records, next, nil
}

// GetEntity fetches a single record, nil when absent.
func (s *Service) GetEntity(ctx context.Context, collection, id string) (Record, error) {
	defer s.begin()()

	rec, err := s.gateway.Get(ctx, collection, id)
	if err != nil {
		s.surface("get", collection, err, "Failed to load record")
		return nil, err
	}
	return rec, nil
}

// SaveEntity writes a record: an update when it is already persisted, a
// create otherwise. An update whose target vanished falls through to a
// create with the same id, so a save never silently loses the payload.
// The actor must be authorized and is stamped as the writer.
func (s *Service) SaveEntity(ctx context.Context, collection string, actor Actor, rec Record) (Record, error) {
	if err := actor.CanModify(); err != nil {
		return nil, err
	}
	defer s.begin()()

	payload := rec.Clone()
	payload[FieldUpdatedBy] = actor.Email

	var (
		stored Record
		err    error
	)
	if rec.Persisted() {
		stored, err = s.gateway.Update(ctx, collection, rec.ID(), payload)
		if err == nil && stored == nil {
			payload[FieldCreatedBy] = actor.Email
			stored, err = s.gateway.Create(ctx, collection, payload, rec.ID())
		}
	} else {
		payload[FieldCreatedBy] = actor.Email
		delete(payload, FieldID)
		stored, err = s.gateway.Create(ctx, collection, payload, "")
	}
	if err != nil {
		s.surface("save", collection, err, "Failed to save record")
		return nil, err
	}
	return stored, nil
}

// DeleteEntity removes a record. The actor must be authorized.
func (s *Service) DeleteEntity(ctx context.Context, collection string, actor Actor, id string) error {
	if err := actor.CanModify(); err != nil {
		return err
	}
	defer s.begin()()

	if err := s.gateway.Delete(ctx, collection, id); err != nil {
		s.surface("delete", collection, err, "Failed to delete record")
		return err
	}
	return nil
}
