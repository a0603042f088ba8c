package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

const (
	scopeCurrentTimeline = "current_timeline"
	scopeAllTimelines    = "all_timelines"
	scopeMediaPool       = "media_pool"

	revisionSuffix = "_REV"
)

type revisionOptions struct {
	MappingPack       string   `json:"mapping_pack_path"`
	Scope             string   `json:"scope"`
	DuplicateTimeline *bool    `json:"duplicate_timeline"`
	Threshold         *float64 `json:"threshold"`
}

// RevisionResolver relinks media pool clips to their newer revisions as
// described by a mapping pack.
type RevisionResolver struct{}

func (RevisionResolver) ID() string    { return "t1_revision_resolver" }
func (RevisionResolver) Title() string { return "Revision Resolver" }

func (t RevisionResolver) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	opts := revisionOptions{Scope: scopeCurrentTimeline}
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.MappingPack == "" {
		return nil, optionsErr(t, "mapping_pack_path is required")
	}
	fallback, err := fallbackThreshold(t, env, opts.Threshold)
	if err != nil {
		return nil, err
	}
	p, err := env.loadPack(opts.MappingPack, pack.KindMapping)
	if err != nil {
		return nil, err
	}
	rl, err := newRelinker(env, p.Mapping, fallback)
	if err != nil {
		return nil, err
	}

	b := env.newReport(t)
	_ = b.SetMeta("pack", p.Source)
	if p.Mapping.Name != "" {
		_ = b.SetMeta("pack_name", p.Mapping.Name)
	}

	switch opts.Scope {
	case scopeCurrentTimeline, scopeAllTimelines, scopeMediaPool:
	default:
		_ = b.Add(report.Item{
			Entity:   "scope",
			Severity: report.SeverityWarning,
			Category: "scope",
			Detail:   fmt.Sprintf("unknown scope %q, using %s", opts.Scope, scopeCurrentTimeline),
		})
		opts.Scope = scopeCurrentTimeline
	}
	_ = b.SetMeta("scope", opts.Scope)

	clips, usage, timeline, err := scopedClips(ctx, env.Reader, opts.Scope)
	if err != nil {
		collaboratorItem(b, "project", err)
		return b.Finalize(), nil
	}

	if timeline != "" && (opts.DuplicateTimeline == nil || *opts.DuplicateTimeline) {
		if err := duplicateForRevision(ctx, env, b, timeline); err != nil {
			return nil, err
		}
	}

	results, err := rl.run(ctx, clips, usage)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		addRelinkItems(b, res, timeline)
	}
	env.Log.Debug("mapping applied", logger.Int("entries", len(p.Mapping.Mappings)), logger.Int("clips", len(clips)))
	return b.Finalize(), nil
}

func fallbackThreshold(t Tool, env *Env, override *float64) (float64, error) {
	fallback := env.Config.Match.Threshold
	if override != nil {
		fallback = *override
	}
	if err := match.CheckThreshold(fallback); err != nil {
		return 0, optionsErr(t, "%v", err)
	}
	return fallback, nil
}

// scopedClips returns the media pool clips in scope, their timeline usage and
// the current timeline name ("" for media pool scope).
func scopedClips(ctx context.Context, r resolve.Reader, scope string) ([]resolve.MediaItem, map[string][]resolve.TimelineItem, string, error) {
	pool, err := r.MediaPool(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	var timelines []*resolve.Timeline
	current := ""
	switch scope {
	case scopeCurrentTimeline:
		tl, err := r.CurrentTimeline(ctx)
		if err != nil {
			return nil, nil, "", err
		}
		timelines = append(timelines, tl)
		current = tl.Name
	case scopeAllTimelines:
		names, err := r.TimelineNames(ctx)
		if err != nil {
			return nil, nil, "", err
		}
		for _, n := range names {
			tl, err := r.Timeline(ctx, n)
			if err != nil {
				return nil, nil, "", err
			}
			timelines = append(timelines, tl)
		}
		if tl, err := r.CurrentTimeline(ctx); err == nil {
			current = tl.Name
		} else if !errors.Is(err, resolve.ErrNoTimeline) {
			return nil, nil, "", err
		}
	case scopeMediaPool:
		return pool, clipUsage(), "", nil
	}
	usage := clipUsage(timelines...)
	var clips []resolve.MediaItem
	for _, c := range pool {
		if _, used := usage[c.ID]; used {
			clips = append(clips, c)
		}
	}
	return clips, usage, current, nil
}

// duplicateForRevision copies the timeline to <name>_REV and switches to it so
// relinks land on a fresh revision. Collaborator failures are reported and the
// run goes on; only ledger state errors are returned.
func duplicateForRevision(ctx context.Context, env *Env, b *report.Builder, timeline string) error {
	name := timeline + revisionSuffix
	dup := changeTimeline(name, "duplicate", timeline, name)
	if env.DryRun() {
		if err := env.Tx.Record(dup); err != nil {
			return err
		}
		_ = b.SetMeta("revision_timeline", name+" (planned)")
		return nil
	}
	err := env.Tx.Apply(dup, func() error {
		_, err := env.Mutator.DuplicateTimeline(ctx, timeline, name)
		return err
	})
	if fatal(err) {
		return err
	}
	if err != nil {
		_ = b.Add(report.Item{
			Entity:   timeline,
			Severity: report.SeverityWarning,
			Category: "timeline",
			Timeline: timeline,
			Detail:   "timeline duplication failed; continuing on current timeline: " + err.Error(),
		})
		return nil
	}
	err = env.Tx.Apply(changeTimeline(name, "set_current", timeline, name), func() error {
		return env.Mutator.SetCurrentTimeline(ctx, name)
	})
	if fatal(err) {
		return err
	}
	if err != nil {
		collaboratorItem(b, name, err)
		return nil
	}
	_ = b.SetMeta("revision_timeline", name)
	return nil
}

func addRelinkItems(b *report.Builder, res relinkResult, timeline string) {
	data := map[string]string{
		"mapping_index": fmt.Sprint(res.position),
		"new_asset":     res.entry.NewAsset,
		"strategy":      string(res.strategy),
		"threshold":     formatScore(res.threshold),
	}
	if res.best != nil {
		data["best_candidate"] = res.best.Name
		data["best_score"] = formatScore(res.best.Score)
	}
	item := report.Item{
		Entity:   res.entry.OldAsset,
		Category: "swap",
		Timeline: timeline,
		Data:     data,
	}

	switch res.status {
	case relinkUnmatched:
		item.Severity = report.SeveritySkipped
		item.Category = "unmatched"
		item.Outcome = report.Skipped(fmt.Sprintf("no candidate reached threshold %.2f", res.threshold))
		item.Detail = "left unchanged"
		_ = b.Add(item)
		return
	case relinkClaimed:
		item.Severity = report.SeverityWarning
		item.Clip = res.clip.DisplayName()
		item.Outcome = report.NeedsManualReview(fmt.Sprintf("clip already matched by mappings[%d]", res.claimedBy))
		item.Detail = "left unchanged"
		_ = b.Add(item)
		return
	}

	item.Clip = res.clip.DisplayName()
	data["media_id"] = res.clip.ID
	data["target"] = res.target
	for _, f := range res.findings {
		fi := report.Item{
			Entity:   res.entry.OldAsset,
			Severity: report.SeverityWarning,
			Category: f.category,
			Timeline: timeline,
			Clip:     item.Clip,
			Detail:   f.detail,
			Data:     f.data,
		}
		if f.category == "appearance" {
			fi.Outcome = report.NeedsManualReview(LimitationText(LimitClipTransform))
		}
		_ = b.Add(fi)
	}

	switch res.status {
	case relinkPlanned:
		item.Severity = report.SeverityOK
		item.Detail = fmt.Sprintf("dry run: would relink %s -> %s", item.Clip, res.target)
	case relinkApplied:
		item.Severity = report.SeverityOK
		item.Outcome = report.Applied()
		item.Detail = fmt.Sprintf("relinked %s -> %s", item.Clip, res.target)
	case relinkFailed:
		item.Severity = report.SeverityError
		item.Category = "resolve"
		item.Detail = fmt.Sprintf("relink %s -> %s failed: %v", item.Clip, res.target, res.err)
		if item.Clip == "" {
			item.Category = "swap"
			item.Detail = "matching failed: " + res.err.Error()
		}
	}
	_ = b.Add(item)
}
