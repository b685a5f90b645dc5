// Package editor drives the admin table's row lifecycle: one row at a time
// moves through add/edit/save/cancel/delete, with dirty-checking against the
// original record so clean saves never touch the network.
//
// The controller does not own the record list. It receives the slice from
// the UI layer and reports every mutation through the Publish callback; the
// backend is reached only through the injected save and delete callbacks.
package editor

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/loreforge/codex/catalog"
	"github.com/loreforge/codex/diff"
)

var (
	// ErrNoSaveCallback is returned when a save is requested but no save
	// callback was supplied.
	ErrNoSaveCallback = errors.New("codex: save callback is required")

	// ErrNoDeleteCallback is returned when a persisted row is deleted with
	// no delete callback supplied. Unsaved rows are removed locally instead.
	ErrNoDeleteCallback = errors.New("codex: delete callback required for persisted records")
)

// Position selects where a new row is inserted.
type Position int

const (
	// Top inserts the new row at the head of the list.
	Top Position = iota

	// Bottom appends the new row at the tail.
	Bottom
)

// Callbacks are the controller's collaborators. Save and Delete reach the
// backend; Confirm asks the user a yes/no question; Notify surfaces
// recoverable failures; Publish hands the mutated list back to the owner.
// Any of them may be nil, with the degraded behavior documented per method.
type Callbacks struct {
	Save    func(ctx context.Context, rec catalog.Record) (catalog.Record, error)
	Delete  func(ctx context.Context, id string) error
	Confirm func(prompt string) bool
	Notify  catalog.Notifier
	Publish func(records []catalog.Record)
}

// Config tunes the controller.
type Config struct {
	// Actor is the editor's identity; save and delete fail fast when it is
	// not authorized.
	Actor catalog.Actor

	// ReferenceField names a foreign-key-like field (e.g. the game system a
	// source belongs to). When a cancel finds it diverged on an existing
	// row, the user is offered to persist the corrected value instead of
	// discarding it.
	ReferenceField string

	// Keep and Less drive VisibleRecords. Nil means keep everything,
	// respectively input order.
	Keep func(rec catalog.Record) bool
	Less func(a, b catalog.Record) bool

	// Now supplies timestamps for new rows; defaults to time.Now.
	Now func() time.Time
}

// session is the ephemeral state of the one row being edited.
type session struct {
	id            string // "" while the row is new and unsaved
	isNew         bool
	valid         bool
	pending       map[string]any
	pendingStatus catalog.Status // "" when no status change is buffered
}

// Controller owns the edit-session cursor over a record list. At most one
// row is in an editing state; the UI disables add/edit affordances while a
// session is active, the controller itself just tracks a single slot (last
// writer wins if that contract is broken).
type Controller struct {
	records []catalog.Record
	cb      Callbacks
	cfg     Config
	sess    *session
}

// New creates a controller over records.
func New(records []catalog.Record, cb Callbacks, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		records: records,
		cb:      cb,
		cfg:     cfg,
	}
}

// Records returns the current list.
func (c *Controller) Records() []catalog.Record {
	return c.records
}

// Editing reports whether a row is currently in an editing state.
func (c *Controller) Editing() bool {
	return c.sess != nil
}

// EditingID returns the id of the row being edited; "" when none is, or
// when the edited row is new and unsaved.
func (c *Controller) EditingID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// EditingNew reports whether the edited row is a new, unsaved one.
func (c *Controller) EditingNew() bool {
	return c.sess != nil && c.sess.isNew
}

// VisibleRecords returns the list as the table shows it: filtered by Keep
// and ordered by Less. The underlying list is not touched.
func (c *Controller) VisibleRecords() []catalog.Record {
	out := make([]catalog.Record, 0, len(c.records))
	for _, rec := range c.records {
		if c.cfg.Keep == nil || c.cfg.Keep(rec) {
			out = append(out, rec)
		}
	}
	if c.cfg.Less != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return c.cfg.Less(out[i], out[j])
		})
	}
	return out
}

// StartAdd inserts a fresh unsaved row at the given position and makes it
// the edit target. The row carries creation metadata but no id; an id is
// assigned by the backend on the first successful save.
func (c *Controller) StartAdd(pos Position) catalog.Record {
	now := catalog.NewTimestamp(c.cfg.Now())
	rec := catalog.Record{
		catalog.FieldName:      "",
		catalog.FieldStatus:    string(catalog.StatusActive),
		catalog.FieldIsUpdated: false,
		catalog.FieldCreatedAt: now,
		catalog.FieldUpdatedAt: now,
		catalog.FieldCreatedBy: c.cfg.Actor.Email,
		catalog.FieldUpdatedBy: c.cfg.Actor.Email,
	}

	if pos == Top {
		c.records = append([]catalog.Record{rec}, c.records...)
	} else {
		c.records = append(c.records, rec)
	}
	c.publish()

	c.sess = &session{isNew: true, pending: map[string]any{}}
	return rec
}

// StartEdit makes the row with the given id the edit target. The list is
// not mutated.
func (c *Controller) StartEdit(id string) {
	c.sess = &session{id: id, valid: true, pending: map[string]any{}}
}

// SetField buffers an in-progress field edit. No-op when nothing is being
// edited.
func (c *Controller) SetField(field string, value any) {
	if c.sess == nil {
		return
	}
	c.sess.pending[field] = value
}

// SetValid records the UI layer's validation verdict for the edit session.
func (c *Controller) SetValid(valid bool) {
	if c.sess == nil {
		return
	}
	c.sess.valid = valid
}

// ChangeStatus handles a status toggle on any row. For the row currently
// being edited the change is buffered and merged in at save time, and the
// user is told so. For any other row it is written immediately as a
// standalone update when a save callback is available and the status
// actually changed; otherwise it is a no-op.
func (c *Controller) ChangeStatus(ctx context.Context, id string, status catalog.Status) error {
	if c.sess != nil && id == c.sess.id {
		c.sess.pendingStatus = status
		c.notifyMsg("Status will be saved together with the pending edits")
		return nil
	}

	if c.cb.Save == nil {
		return nil
	}
	idx := c.indexByID(id)
	if idx < 0 {
		return nil
	}
	old := c.records[idx]
	if old.Status() == status {
		return nil
	}
	if err := c.cfg.Actor.CanModify(); err != nil {
		return err
	}

	updated := old.Clone()
	updated[catalog.FieldStatus] = string(status)
	stored, err := c.cb.Save(ctx, updated)
	if err != nil {
		c.notifyErr(err, "Failed to change status")
		return err
	}
	c.records[idx] = stored
	c.publish()
	return nil
}

// Save commits the edit session. For an existing row whose merged candidate
// equals the original, no write is issued and the session simply ends.
// Otherwise the save callback runs and, on success, the matching list entry
// is replaced with the stored record (appended when no entry matches).
// On failure the session is cleared regardless, so the UI never sticks.
func (c *Controller) Save(ctx context.Context) error {
	s := c.sess
	if s == nil {
		return nil
	}
	idx := c.targetIndex()
	if idx < 0 {
		c.clearSession()
		return nil
	}
	old := c.records[idx]
	candidate := c.candidate(old)

	if !s.isNew && old.Persisted() &&
		diff.Equal(map[string]any(old), map[string]any(candidate), false) {
		c.clearSession()
		return nil
	}

	if err := c.cfg.Actor.CanModify(); err != nil {
		return err
	}
	if c.cb.Save == nil {
		return ErrNoSaveCallback
	}

	stored, err := c.cb.Save(ctx, candidate)
	if err != nil {
		c.notifyErr(err, "Failed to save record")
		c.clearSession()
		return err
	}

	c.reconcile(stored, s.isNew)
	c.publish()
	c.clearSession()
	return nil
}

// Cancel ends the edit session. A clean session ends silently. A dirty one
// prompts before discarding, except that new or invalid rows always discard
// without prompting, and a diverged reference field on a valid existing row
// offers persisting the corrected value instead.
func (c *Controller) Cancel(ctx context.Context) error {
	s := c.sess
	if s == nil {
		return nil
	}
	idx := c.targetIndex()
	if idx < 0 {
		c.clearSession()
		return nil
	}

	if s.isNew || !s.valid {
		c.discard(idx)
		return nil
	}

	old := c.records[idx]
	candidate := c.candidate(old)
	if diff.Equal(map[string]any(old), map[string]any(candidate), false) {
		c.clearSession()
		return nil
	}

	if ref := c.cfg.ReferenceField; ref != "" && !diff.Equal(old[ref], candidate[ref], false) {
		if c.confirm("The " + ref + " reference changed. Save the corrected value?") {
			return c.Save(ctx)
		}
		c.clearSession()
		return nil
	}

	if c.confirm("Discard changes?") {
		c.clearSession()
	}
	return nil
}

// Delete removes a row. With a delete callback the backend is asked first
// and the row leaves the list only on success. Without one, only an unsaved
// new row may be removed (locally); deleting a persisted row that way is a
// programming error.
func (c *Controller) Delete(ctx context.Context, id string) error {
	wasTarget := c.sess != nil && id == c.sess.id

	if c.cb.Delete != nil {
		if err := c.cfg.Actor.CanModify(); err != nil {
			return err
		}
		if err := c.cb.Delete(ctx, id); err != nil {
			c.notifyErr(err, "Failed to delete record")
			return err
		}
		c.removeAt(c.indexByID(id))
		if wasTarget {
			c.clearSession()
		}
		return nil
	}

	idx := c.indexByID(id)
	if idx < 0 {
		return nil
	}
	if c.records[idx].Persisted() {
		return ErrNoDeleteCallback
	}
	c.removeAt(idx)
	if wasTarget {
		c.clearSession()
	}
	return nil
}

// candidate computes the record a save would persist: pending field edits
// merged over the original, then the buffered status change, if any.
func (c *Controller) candidate(old catalog.Record) catalog.Record {
	merged := diff.Merge(map[string]any(old), c.sess.pending)
	if c.sess.pendingStatus != "" {
		merged[catalog.FieldStatus] = string(c.sess.pendingStatus)
	}
	return catalog.Record(merged)
}

// reconcile replaces the list entry the stored record corresponds to: by id
// for existing rows, the first unsaved row for new ones. When nothing
// matches the record is appended.
func (c *Controller) reconcile(stored catalog.Record, wasNew bool) {
	idx := -1
	if wasNew {
		idx = c.pendingIndex()
	}
	if idx < 0 {
		idx = c.indexByID(stored.ID())
	}
	if idx < 0 {
		c.records = append(c.records, stored)
		return
	}
	c.records[idx] = stored
}

// discard throws the edit session away: a new row leaves the list, an edit
// to an existing row just ends.
func (c *Controller) discard(idx int) {
	if c.sess.isNew {
		c.removeAt(idx)
	}
	c.clearSession()
}

// targetIndex locates the row the session refers to.
func (c *Controller) targetIndex() int {
	if c.sess.isNew {
		return c.pendingIndex()
	}
	return c.indexByID(c.sess.id)
}

// indexByID returns the index of the row with the given id, or the first
// unsaved row when id is empty; -1 when absent.
func (c *Controller) indexByID(id string) int {
	if id == "" {
		return c.pendingIndex()
	}
	for i, rec := range c.records {
		if rec.ID() == id {
			return i
		}
	}
	return -1
}

// pendingIndex returns the index of the first unsaved row, -1 when none.
func (c *Controller) pendingIndex() int {
	for i, rec := range c.records {
		if !rec.Persisted() {
			return i
		}
	}
	return -1
}

func (c *Controller) removeAt(idx int) {
	if idx < 0 {
		return
	}
	c.records = append(c.records[:idx], c.records[idx+1:]...)
	c.publish()
}

func (c *Controller) clearSession() {
	c.sess = nil
}

func (c *Controller) publish() {
	if c.cb.Publish != nil {
		c.cb.Publish(c.records)
	}
}

func (c *Controller) confirm(prompt string) bool {
	if c.cb.Confirm == nil {
		// Without a way to ask, never discard silently.
		return false
	}
	return c.cb.Confirm(prompt)
}

func (c *Controller) notifyMsg(msg string) {
	if c.cb.Notify != nil {
		c.cb.Notify(msg)
	}
}

func (c *Controller) notifyErr(err error, fallback string) {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	c.notifyMsg(msg)
}
