package catalog

import (
	"time"

	"github.com/loreforge/codex/diff"
)

// Well-known collections. A collection ref is an opaque string; these are
// the three the admin editor ships with.
const (
	CollectionGameSystems = "gameSystems"
	CollectionSources     = "sources"
	CollectionKeywords    = "keywords"
)

// Bookkeeping field names stamped by the gateway on every write.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCreatedBy = "createdBy"
	FieldUpdatedBy = "updatedBy"
	FieldIsUpdated = "isUpdated"
	FieldStatus    = "status"
	FieldName      = "name"
)

// Status is the publication state of a catalog record.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusObsolete Status = "obsolete"
)

// Record is a catalog document. Collections carry heterogeneous
// collection-specific fields, so records stay map-shaped; the bookkeeping
// fields above are present on every persisted record.
type Record map[string]any

// ID returns the record id, or "" when the record has none (or a non-string
// one, which the store never produces).
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Persisted reports whether the record has been stored: an unsaved row has
// no id yet. This is the one place "is this row new" is decided.
func (r Record) Persisted() bool {
	return r.ID() != ""
}

// Status returns the record status, or "" when unset.
func (r Record) Status() Status {
	switch s := r[FieldStatus].(type) {
	case string:
		return Status(s)
	case Status:
		return s
	default:
		return ""
	}
}

// Name returns the record display name, or "".
func (r Record) Name() string {
	n, _ := r[FieldName].(string)
	return n
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record(diff.Merge(map[string]any(r)))
}

// Timestamp is a point in time as the store represents it. It implements
// diff.Instant, so two timestamps compare by seconds and nanoseconds alone.
type Timestamp struct {
	Seconds int64 `dynamodbav:"seconds"`
	Nanos   int64 `dynamodbav:"nanoseconds"`
}

// NewTimestamp converts a time.Time to a Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
}

// InstantParts implements diff.Instant.
func (t Timestamp) InstantParts() (int64, int64) {
	return t.Seconds, t.Nanos
}

// Time converts the timestamp back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanos)
}

// rehydrate walks a decoded record and replaces timestamp-shaped maps with
// Timestamp values. Wire decoding produces generic maps; the tagging happens
// here, once, so nothing downstream has to duck-type per comparison.
func rehydrate(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if ts, ok := timestampFromMap(t); ok {
			return ts
		}
		for k, e := range t {
			t[k] = rehydrate(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = rehydrate(e)
		}
		return t
	default:
		return v
	}
}

func timestampFromMap(m map[string]any) (Timestamp, bool) {
	if len(m) != 2 {
		return Timestamp{}, false
	}
	sec, ok := asInt64(m["seconds"])
	if !ok {
		return Timestamp{}, false
	}
	nanos, ok := asInt64(m["nanoseconds"])
	if !ok {
		return Timestamp{}, false
	}
	return Timestamp{Seconds: sec, Nanos: nanos}, true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Actor identifies who is making a change. The identity provider supplies
// it; the gateway only checks it and stamps its email.
type Actor struct {
	Email           string
	IsAuthenticated bool
	IsAdmin         bool
	UserName        string
	IconURL         string
}

// CanModify reports whether the actor may write to the catalog.
func (a Actor) CanModify() error {
	if !a.IsAuthenticated || a.Email == "" {
		return ErrUnauthorized
	}
	return nil
}

// Notifier surfaces a recoverable failure to whoever is watching, typically
// a toast in the admin UI. Calls are fire-and-forget.
type Notifier func(message string)
