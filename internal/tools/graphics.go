package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

// Component is a reusable graphic and the file its instances should use.
type Component struct {
	Name string `json:"name"`
	// Pattern optionally selects instances by case-insensitive regexp instead
	// of normalized name equality.
	Pattern  string `json:"pattern,omitempty"`
	NewAsset string `json:"new_asset"`
}

type graphicsOptions struct {
	Components []Component `json:"components"`
}

// ComponentGraphics propagates a new revision of each graphic component to
// every media pool instance of it.
type ComponentGraphics struct{}

func (ComponentGraphics) ID() string    { return "t7_component_graphics" }
func (ComponentGraphics) Title() string { return "Component-Style Graphics System" }

func (t ComponentGraphics) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	var opts graphicsOptions
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if len(opts.Components) == 0 {
		return nil, optionsErr(t, "components must list at least one component")
	}
	for i, c := range opts.Components {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.NewAsset) == "" {
			return nil, optionsErr(t, "components[%d] needs name and new_asset", i)
		}
		if c.Pattern != "" {
			if _, err := regexp.Compile(c.Pattern); err != nil {
				return nil, optionsErr(t, "components[%d].pattern: %v", i, err)
			}
		}
	}

	b := env.newReport(t)
	pool, err := env.Reader.MediaPool(ctx)
	if err != nil {
		collaboratorItem(b, "media_pool", err)
		return b.Finalize(), nil
	}

	for _, c := range opts.Components {
		instances := componentInstances(c, pool)
		if len(instances) == 0 {
			_ = b.Add(report.Item{
				Entity:   c.Name,
				Severity: report.SeveritySkipped,
				Category: "component",
				Detail:   "no instance in the media pool",
				Outcome:  report.Skipped("component not found"),
			})
			continue
		}
		for _, clip := range instances {
			if err := t.update(ctx, env, b, c, clip); err != nil {
				return nil, err
			}
		}
	}
	return b.Finalize(), nil
}

func componentInstances(c Component, pool []resolve.MediaItem) []resolve.MediaItem {
	var out []resolve.MediaItem
	want := match.Normalize(c.Name)
	for _, clip := range pool {
		if c.Pattern != "" {
			if p, _ := match.FirstPattern(clip.DisplayName(), []string{c.Pattern}); p != "" {
				out = append(out, clip)
			}
			continue
		}
		if match.Normalize(clip.DisplayName()) == want || match.Normalize(clip.Name) == want {
			out = append(out, clip)
		}
	}
	return out
}

func (t ComponentGraphics) update(ctx context.Context, env *Env, b *report.Builder, c Component, clip resolve.MediaItem) error {
	item := report.Item{
		Entity:   c.Name,
		Severity: report.SeverityOK,
		Category: "component",
		Clip:     clip.DisplayName(),
		Data:     map[string]string{"media_id": clip.ID, "new_asset": c.NewAsset},
	}
	if typ := clip.Properties["Type"]; strings.HasPrefix(strings.ToLower(typ), "fusion") {
		item.Severity = report.SeverityWarning
		item.Detail = typ + " instances are not relinked"
		item.Outcome = report.NeedsManualReview(LimitationText(LimitFusionGraph))
		_ = b.Add(item)
		return nil
	}
	if clip.Path == c.NewAsset {
		item.Detail = "already on " + c.NewAsset
		item.Severity = report.SeveritySkipped
		item.Outcome = report.Skipped("up to date")
		_ = b.Add(item)
		return nil
	}

	change := ledger.Change{Entity: "clip:" + clip.ID, Action: "update_component", Before: clip.Path, After: c.NewAsset}
	err := env.apply(change, func() error { return env.Mutator.ReplaceClip(ctx, clip.ID, c.NewAsset) })
	switch {
	case fatal(err):
		return err
	case err != nil:
		item.Severity = report.SeverityError
		item.Category = "resolve"
		item.Detail = fmt.Sprintf("update %s failed: %v", clip.DisplayName(), err)
	case env.DryRun():
		item.Detail = fmt.Sprintf("dry run: would update %s -> %s", clip.DisplayName(), c.NewAsset)
	default:
		item.Outcome = report.Applied()
		item.Detail = fmt.Sprintf("updated %s -> %s", clip.DisplayName(), c.NewAsset)
	}
	_ = b.Add(item)
	return nil
}
