// Package tools holds the workflow drivers. Each driver reads project state
// through resolve.Reader, decides with the engine packages, records intended
// changes in the ledger and returns a finalized report.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/config"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

// Tool is one workflow driver.
type Tool interface {
	ID() string
	Title() string
	Run(ctx context.Context, env *Env, options json.RawMessage) (*report.Report, error)
}

// Env is everything a driver may touch during a run.
type Env struct {
	Config *config.Config
	Reader resolve.Reader
	// Mutator may be nil for dry runs.
	Mutator resolve.Mutator
	// Projects is optional; drivers that visit several projects need it.
	Projects resolve.ProjectManager
	Tx       *ledger.Context
	Log      *logger.Logger
	Now      func() time.Time
	RunID    string
	// BeforeCommit, when set, runs after a successful driver and before the
	// transaction closes. An error aborts the transaction.
	BeforeCommit func(ctx context.Context, rep *report.Report) error
}

// DryRun reports whether changes must only be previewed.
func (e *Env) DryRun() bool { return e.Tx.DryRun() }

func (e *Env) newReport(t Tool) *report.Builder {
	return report.New(t.ID(),
		report.WithTitle(t.Title()),
		report.WithRunID(e.RunID),
		report.WithDryRun(e.DryRun()),
		report.WithClock(e.Now),
	)
}

func (e *Env) check() error {
	switch {
	case e.Config == nil:
		return errors.New("tools: environment has no configuration")
	case e.Reader == nil:
		return errors.New("tools: environment has no object model reader")
	case e.Tx == nil:
		return errors.New("tools: environment has no transaction context")
	case e.Mutator == nil && !e.Tx.DryRun():
		return errors.New("tools: applying changes requires an object model mutator")
	}
	if e.Log == nil {
		e.Log = logger.Discard()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return nil
}

// loadPack resolves p against the working directory first and the packs
// directory second.
func (e *Env) loadPack(p string, kind pack.Kind) (*pack.Pack, error) {
	path := p
	if !filepath.IsAbs(p) {
		if _, err := os.Stat(p); err != nil {
			if alt := filepath.Join(e.Config.PacksDir, p); fileExists(alt) {
				path = alt
			}
		}
	}
	return pack.Load(path, kind)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// OptionsError reports invalid driver options.
type OptionsError struct {
	ToolID string
	Reason string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("%s: invalid options: %s", e.ToolID, e.Reason)
}

func optionsErr(t Tool, format string, args ...any) error {
	return &OptionsError{ToolID: t.ID(), Reason: fmt.Sprintf(format, args...)}
}

// decodeOptions strictly decodes raw into v. Empty input and JSON null keep
// v's defaults.
func decodeOptions(t Tool, raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return optionsErr(t, "%v", err)
	}
	return nil
}

// Result is the outcome of Run.
type Result struct {
	Report *report.Report
	// Record is nil for dry runs and for runs that changed nothing.
	Record *ledger.Record
}

// Run executes t and closes the transaction: a failed driver or BeforeCommit
// hook aborts it, otherwise it is committed. Dry-run commits persist nothing.
func Run(ctx context.Context, t Tool, env *Env, options json.RawMessage) (*Result, error) {
	if err := env.check(); err != nil {
		return nil, err
	}
	log := env.Log.With(logger.String("tool_id", t.ID()), logger.String("run_id", env.RunID))
	env.Log = log

	rep, err := t.Run(ctx, env, options)
	if err != nil {
		if abortErr := env.Tx.Abort(); abortErr != nil {
			log.Warn("transaction abort failed", logger.Err(abortErr))
		}
		return nil, err
	}

	if env.BeforeCommit != nil {
		if err := env.BeforeCommit(ctx, rep); err != nil {
			if abortErr := env.Tx.Abort(); abortErr != nil {
				log.Warn("transaction abort failed", logger.Err(abortErr))
			}
			return nil, err
		}
	}

	res := &Result{Report: rep}
	if !env.DryRun() && len(env.Tx.Changes()) == 0 {
		if err := env.Tx.Abort(); err != nil {
			return res, err
		}
		log.Info("run complete, nothing to commit", logger.Int("items", rep.Summary.Total))
		return res, nil
	}
	rec, err := env.Tx.Commit(ctx)
	if err != nil {
		return res, fmt.Errorf("commit %s: %w", env.Tx.Name(), err)
	}
	res.Record = rec
	if rec != nil {
		log.Info("run complete", logger.String("tx_id", rec.ID), logger.Int("changes", len(rec.Changes)))
	} else {
		log.Info("dry run complete", logger.Int("planned_changes", len(env.Tx.Changes())))
	}
	return res, nil
}

// Registry lists drivers in a fixed order.
type Registry struct {
	tools []Tool
	byID  map[string]Tool
}

// NewRegistry registers tools in argument order. Duplicate ids panic.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byID: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.byID[t.ID()]; dup {
			panic("tools: duplicate tool id " + t.ID())
		}
		r.tools = append(r.tools, t)
		r.byID[t.ID()] = t
	}
	return r
}

// Default returns the registry of all ten drivers.
func Default() *Registry {
	return NewRegistry(
		RevisionResolver{},
		RelinkAcrossProjects{},
		SmartReframer{},
		CaptionLayoutProtector{},
		FeedbackCompiler{},
		TimelineNormalizer{},
		ComponentGraphics{},
		DeliverySpecEnforcer{},
		ChangeImpactAnalyzer{},
		BrandDriftDetector{},
	)
}

// Get looks a driver up by id.
func (r *Registry) Get(id string) (Tool, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// List returns the drivers in registration order.
func (r *Registry) List() []Tool {
	return append([]Tool(nil), r.tools...)
}

// apply records ch and, outside dry runs, calls mutate under the
// transaction. A dry run never calls mutate.
func (e *Env) apply(ch ledger.Change, mutate func() error) error {
	if e.DryRun() {
		return e.Tx.Record(ch)
	}
	return e.Tx.Apply(ch, mutate)
}

// fatal reports whether err must end the run instead of becoming an item.
func fatal(err error) bool {
	return errors.Is(err, ledger.ErrInvalidState)
}

// collaboratorItem turns an object model failure into an error item.
func collaboratorItem(b *report.Builder, entity string, err error) {
	_ = b.Add(report.Item{
		Entity:   entity,
		Severity: report.SeverityError,
		Category: "resolve",
		Detail:   err.Error(),
	})
}

func changeTimeline(name, action, before, after string) ledger.Change {
	return ledger.Change{Entity: "timeline:" + name, Action: action, Before: before, After: after}
}
