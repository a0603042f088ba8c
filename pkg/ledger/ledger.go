// Package ledger records the before/after state of every change a tool makes
// so a run can be reviewed and rolled back by hand. Dry-run contexts collect
// the same intent but never produce a record.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Change is one modification of an external entity.
type Change struct {
	Entity string `json:"entity"`
	Action string `json:"action,omitempty"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Record is a committed transaction.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ToolID    string    `json:"tool_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Changes   []Change  `json:"changes"`
}

// Rollback returns the changes that undo the record: each change inverted,
// last change first.
func (r *Record) Rollback() []Change {
	out := make([]Change, 0, len(r.Changes))
	for i := len(r.Changes) - 1; i >= 0; i-- {
		c := r.Changes[i]
		out = append(out, Change{Entity: c.Entity, Action: c.Action, Before: c.After, After: c.Before})
	}
	return out
}

// ErrInvalidState is wrapped by every StateError.
var ErrInvalidState = errors.New("invalid transaction state")

// StateError reports a call that is not allowed in the context's current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ledger: %s on %s transaction", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// State of a transaction context. Committed and aborted are terminal.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithToolID stamps committed records with the tool that produced them.
func WithToolID(id string) Option { return func(l *Ledger) { l.toolID = id } }

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithIDGenerator overrides uuid.NewString for record ids.
func WithIDGenerator(gen func() string) Option { return func(l *Ledger) { l.newID = gen } }

// Ledger hands out transaction contexts that commit into a Store.
type Ledger struct {
	store  Store
	toolID string
	now    func() time.Time
	newID  func() string
}

// New returns a ledger persisting into store. A nil store keeps records in memory.
func New(store Store, opts ...Option) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{store: store, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the backing store.
func (l *Ledger) Store() Store { return l.store }

// Begin opens a single-use transaction context.
func (l *Ledger) Begin(name string, dryRun bool) *Context {
	return &Context{ledger: l, name: name, dryRun: dryRun}
}

// Context accumulates changes for one transaction. Callers must check DryRun
// before issuing any external mutation.
type Context struct {
	ledger  *Ledger
	name    string
	dryRun  bool
	state   State
	changes []Change
}

func (c *Context) Name() string { return c.name }
func (c *Context) DryRun() bool { return c.dryRun }
func (c *Context) State() State { return c.state }

// Changes returns a copy of the recorded changes.
func (c *Context) Changes() []Change {
	return append([]Change(nil), c.changes...)
}

// RecordChange notes that entity goes from before to after.
func (c *Context) RecordChange(entity, before, after string) error {
	return c.Record(Change{Entity: entity, Before: before, After: after})
}

// Record notes a change with an explicit action name.
func (c *Context) Record(ch Change) error {
	if c.state != StateOpen {
		return &StateError{Op: "record change", State: c.state}
	}
	c.changes = append(c.changes, ch)
	return nil
}

// Apply records ch and then calls mutate. A closed context returns a
// StateError and mutate is never called. If mutate fails the change is
// withdrawn and mutate's error is returned unwrapped.
func (c *Context) Apply(ch Change, mutate func() error) error {
	if err := c.Record(ch); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		c.changes = c.changes[:len(c.changes)-1]
		return err
	}
	return nil
}

// Commit closes the context. In dry-run mode it returns nil and persists
// nothing; otherwise the record is saved before being returned.
func (c *Context) Commit(ctx context.Context) (*Record, error) {
	if c.state != StateOpen {
		return nil, &StateError{Op: "commit", State: c.state}
	}
	if c.dryRun {
		c.state = StateCommitted
		return nil, nil
	}
	rec := &Record{
		ID:        c.ledger.newID(),
		Name:      c.name,
		ToolID:    c.ledger.toolID,
		CreatedAt: c.ledger.now().UTC(),
		Changes:   c.Changes(),
	}
	if rec.Changes == nil {
		rec.Changes = []Change{}
	}
	if err := c.ledger.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save transaction %s: %w", rec.ID, err)
	}
	c.state = StateCommitted
	return rec, nil
}

// Abort closes the context without persisting anything.
func (c *Context) Abort() error {
	if c.state != StateOpen {
		return &StateError{Op: "abort", State: c.state}
	}
	c.state = StateAborted
	return nil
}
