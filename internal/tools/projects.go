package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

type relinkProjectsOptions struct {
	MappingPack string   `json:"mapping_pack_path"`
	Projects    []string `json:"projects"`
	Scope       string   `json:"scope"`
	Threshold   *float64 `json:"threshold"`
}

// RelinkAcrossProjects applies one mapping pack to several projects and
// reports one item per project.
type RelinkAcrossProjects struct{}

func (RelinkAcrossProjects) ID() string    { return "t2_relink_across_projects" }
func (RelinkAcrossProjects) Title() string { return "Relink Across Projects" }

func (t RelinkAcrossProjects) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	opts := relinkProjectsOptions{Scope: scopeMediaPool}
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.MappingPack == "" {
		return nil, optionsErr(t, "mapping_pack_path is required")
	}
	switch opts.Scope {
	case scopeCurrentTimeline, scopeAllTimelines, scopeMediaPool:
	default:
		return nil, optionsErr(t, "unknown scope %q", opts.Scope)
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
	_ = b.SetMeta("scope", opts.Scope)

	original, err := env.Reader.ProjectName(ctx)
	if err != nil {
		collaboratorItem(b, "project", err)
		return b.Finalize(), nil
	}
	projects := opts.Projects
	if len(projects) == 0 {
		projects = []string{original}
	}
	if env.Projects == nil && (len(projects) > 1 || projects[0] != original) {
		collaboratorItem(b, "projects", fmt.Errorf("switching projects is not supported by this session"))
		return b.Finalize(), nil
	}

	open := original
	for _, name := range projects {
		if name != open {
			if err := env.Projects.OpenProject(ctx, name); err != nil {
				collaboratorItem(b, name, err)
				continue
			}
			open = name
		}
		if err := t.relinkProject(ctx, env, b, rl, opts.Scope, name); err != nil {
			return nil, err
		}
	}
	if open != original {
		if err := env.Projects.OpenProject(ctx, original); err != nil {
			collaboratorItem(b, original, fmt.Errorf("reopen original project: %w", err))
		}
	}
	return b.Finalize(), nil
}

func (t RelinkAcrossProjects) relinkProject(ctx context.Context, env *Env, b *report.Builder, rl *relinker, scope, name string) error {
	rl.scope = name

	clips, usage, _, err := scopedClips(ctx, env.Reader, scope)
	if err != nil {
		collaboratorItem(b, name, err)
		return nil
	}

	results, err := rl.run(ctx, clips, usage)
	if err != nil {
		return err
	}
	counts := map[relinkStatus]int{}
	for _, res := range results {
		counts[res.status]++
	}
	data := map[string]string{
		"clips":     fmt.Sprint(len(clips)),
		"unmatched": fmt.Sprint(counts[relinkUnmatched]),
		"claimed":   fmt.Sprint(counts[relinkClaimed]),
		"failed":    fmt.Sprint(counts[relinkFailed]),
	}
	item := report.Item{Entity: name, Category: "project", Data: data, Severity: report.SeverityOK}
	if env.DryRun() {
		data["planned"] = fmt.Sprint(counts[relinkPlanned])
		item.Detail = fmt.Sprintf("dry run: would relink %d clip(s)", counts[relinkPlanned])
	} else {
		data["applied"] = fmt.Sprint(counts[relinkApplied])
		item.Detail = fmt.Sprintf("relinked %d clip(s)", counts[relinkApplied])
		if counts[relinkApplied] > 0 {
			item.Outcome = report.Applied()
		}
	}
	switch {
	case counts[relinkFailed] > 0:
		item.Severity = report.SeverityError
		item.Detail += fmt.Sprintf(", %d failed", counts[relinkFailed])
	case counts[relinkClaimed] > 0:
		item.Severity = report.SeverityWarning
		item.Outcome = report.NeedsManualReview("several mapping entries matched the same clip")
	case counts[relinkPlanned]+counts[relinkApplied] == 0:
		item.Severity = report.SeveritySkipped
		item.Outcome = report.Skipped("no mapping entry matched")
	}
	_ = b.Add(item)
	env.Log.Info("project processed", logger.String("project", name), logger.Int("clips", len(clips)))
	return nil
}
