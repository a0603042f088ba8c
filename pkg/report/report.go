// Package report assembles per-run findings and renders them as JSON, CSV
// and HTML. A finalized report is a pure function of the items appended to
// its builder.
package report

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Severity grades a single item.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySkipped Severity = "skipped"
)

// Severities lists severities in HTML grouping order.
func Severities() []Severity {
	return []Severity{SeverityError, SeverityWarning, SeveritySkipped, SeverityOK}
}

func (s Severity) valid() bool {
	switch s {
	case SeverityOK, SeverityWarning, SeverityError, SeveritySkipped:
		return true
	}
	return false
}

// OutcomeKind tags what happened to the entity an item describes.
type OutcomeKind string

const (
	OutcomeNone              OutcomeKind = "none"
	OutcomeApplied           OutcomeKind = "applied"
	OutcomeSkipped           OutcomeKind = "skipped"
	OutcomeNeedsManualReview OutcomeKind = "needs_manual_review"
)

// Outcome is the tagged result of an item. Skipped and NeedsManualReview
// carry a reason.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func Applied() Outcome                        { return Outcome{Kind: OutcomeApplied} }
func Skipped(reason string) Outcome           { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func NeedsManualReview(reason string) Outcome { return Outcome{Kind: OutcomeNeedsManualReview, Reason: reason} }

// Item is one finding, in evaluation order.
type Item struct {
	Index    int               `json:"index"`
	Entity   string            `json:"entity"`
	Severity Severity          `json:"severity"`
	Outcome  Outcome           `json:"outcome"`
	Detail   string            `json:"detail"`
	Category string            `json:"category,omitempty"`
	Timeline string            `json:"timeline,omitempty"`
	Clip     string            `json:"clip,omitempty"`
	Timecode string            `json:"timecode,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Summary counts items. Processed+Failed+Skipped always equals Total.
type Summary struct {
	Total        int `json:"total"`
	Processed    int `json:"processed"`
	Warnings     int `json:"warnings"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	ManualReview int `json:"manual_review"`
}

// Report is the finalized, immutable result of one tool run.
type Report struct {
	ToolID    string            `json:"tool_id"`
	Title     string            `json:"title,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	DryRun    bool              `json:"dry_run"`
	Summary   Summary           `json:"summary"`
	Meta      map[string]string `json:"meta,omitempty"`
	Items     []Item            `json:"items"`
}

// HasFailures reports whether any item has error severity.
func (r *Report) HasFailures() bool { return r.Summary.Failed > 0 }

var (
	// ErrFinalized is returned when items are appended after Finalize.
	ErrFinalized = errors.New("report already finalized")
	// ErrInvalidSeverity is returned for severities outside ok/warning/error/skipped.
	ErrInvalidSeverity = errors.New("invalid severity")
)

// Option configures a Builder.
type Option func(*Builder)

func WithTitle(title string) Option { return func(b *Builder) { b.title = title } }
func WithRunID(id string) Option    { return func(b *Builder) { b.runID = id } }
func WithDryRun(dry bool) Option    { return func(b *Builder) { b.dryRun = dry } }

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option { return func(b *Builder) { b.now = now } }

// Builder accumulates items for one report. It is not safe for concurrent use.
type Builder struct {
	toolID string
	title  string
	runID  string
	dryRun bool
	now    func() time.Time
	meta   map[string]string
	items  []Item
	final  *Report
}

// New starts a report for toolID.
func New(toolID string, opts ...Option) *Builder {
	b := &Builder{toolID: toolID, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddItem appends a plain finding with no outcome.
func (b *Builder) AddItem(entity string, severity Severity, detail string) error {
	return b.Add(Item{Entity: entity, Severity: severity, Detail: detail})
}

// Add appends an item. Index is assigned from the append position.
func (b *Builder) Add(it Item) error {
	if b.final != nil {
		return ErrFinalized
	}
	if !it.Severity.valid() {
		return fmt.Errorf("%w %q for %s", ErrInvalidSeverity, it.Severity, it.Entity)
	}
	if it.Outcome.Kind == "" {
		it.Outcome.Kind = OutcomeNone
	}
	it.Index = len(b.items)
	if it.Data != nil {
		it.Data = maps.Clone(it.Data)
	}
	b.items = append(b.items, it)
	return nil
}

// SetMeta attaches run-level context such as the pack source or transaction id.
func (b *Builder) SetMeta(key, value string) error {
	if b.final != nil {
		return ErrFinalized
	}
	if b.meta == nil {
		b.meta = map[string]string{}
	}
	b.meta[key] = value
	return nil
}

// Len returns the number of items appended so far.
func (b *Builder) Len() int { return len(b.items) }

// Finalize computes the summary and freezes the report. Later calls return
// the same report.
func (b *Builder) Finalize() *Report {
	if b.final != nil {
		return b.final
	}
	items := make([]Item, len(b.items))
	copy(items, b.items)
	b.final = &Report{
		ToolID:    b.toolID,
		Title:     b.title,
		RunID:     b.runID,
		CreatedAt: b.now().UTC(),
		DryRun:    b.dryRun,
		Summary:   Summarize(items),
		Meta:      maps.Clone(b.meta),
		Items:     items,
	}
	return b.final
}

// Summarize counts items by severity and outcome.
func Summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		s.Total++
		switch it.Severity {
		case SeverityOK:
			s.Processed++
		case SeverityWarning:
			s.Processed++
			s.Warnings++
		case SeverityError:
			s.Failed++
		case SeveritySkipped:
			s.Skipped++
		}
		if it.Outcome.Kind == OutcomeNeedsManualReview {
			s.ManualReview++
		}
	}
	return s
}
