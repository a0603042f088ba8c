package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

const defaultNearMiss = 0.8

type brandOptions struct {
	BrandPack string   `json:"brand_pack_path"`
	NearMiss  *float64 `json:"near_miss_threshold"`
}

// BrandDriftDetector audits the media pool and timeline text against a brand
// pack.
type BrandDriftDetector struct{}

func (BrandDriftDetector) ID() string    { return "t10_brand_drift_detector" }
func (BrandDriftDetector) Title() string { return "Project Audit & Brand Drift Detector" }

func (t BrandDriftDetector) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	var opts brandOptions
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.BrandPack == "" {
		return nil, optionsErr(t, "brand_pack_path is required")
	}
	nearMiss := defaultNearMiss
	if opts.NearMiss != nil {
		nearMiss = *opts.NearMiss
	}
	if err := match.CheckThreshold(nearMiss); err != nil {
		return nil, optionsErr(t, "near_miss_threshold: %v", err)
	}
	p, err := env.loadPack(opts.BrandPack, pack.KindBrand)
	if err != nil {
		return nil, err
	}
	bp := p.Brand

	b := env.newReport(t)
	_ = b.SetMeta("pack", p.Source)
	_ = b.SetMeta("brand", bp.Name)

	pool, err := env.Reader.MediaPool(ctx)
	if err != nil {
		collaboratorItem(b, "media_pool", err)
		return b.Finalize(), nil
	}
	canonical := canonicalAssets(bp)
	isCanonical := map[string]bool{}
	for _, a := range canonical {
		isCanonical[a] = true
	}

	present := map[string]bool{}
	for _, clip := range pool {
		name := clip.DisplayName()
		if name == "" {
			continue
		}
		present[name] = true
		if isCanonical[name] {
			continue
		}
		if len(canonical) > 0 {
			t.nonCanonical(b, name, canonical, nearMiss)
		}
		if tok := brandToken(name, bp.BrandTokens); tok != "" {
			_ = b.Add(report.Item{
				Entity: name, Severity: report.SeverityWarning, Category: "brand_token", Clip: name,
				Detail: fmt.Sprintf("carries brand token %q but is not a canonical asset", tok),
				Outcome: report.NeedsManualReview("potential off-brand asset"),
			})
		}
	}
	for _, a := range canonical {
		if !present[a] {
			_ = b.Add(report.Item{Entity: a, Severity: report.SeverityWarning, Category: "missing_asset",
				Detail: "canonical asset is not in the media pool"})
		}
	}

	if len(bp.Terminology) > 0 {
		if err := t.terminology(ctx, env, b, bp.Terminology, pool); err != nil {
			collaboratorItem(b, "timeline", err)
		}
	}

	if len(bp.Fonts) == 0 {
		_ = b.AddItem("fonts", report.SeverityWarning, "no fonts defined in brand pack")
	} else {
		_ = b.Add(report.Item{Entity: "fonts", Severity: report.SeverityOK, Category: "fonts",
			Detail:  strings.Join(bp.Fonts, ", "),
			Outcome: report.NeedsManualReview("font drift requires manual verification in text generators")})
	}
	if len(bp.Colors) > 0 {
		names := make([]string, 0, len(bp.Colors))
		for _, c := range bp.Colors {
			names = append(names, c.Name+" "+c.Hex)
		}
		_ = b.Add(report.Item{Entity: "colors", Severity: report.SeverityOK, Category: "colors",
			Detail:  strings.Join(names, ", "),
			Outcome: report.NeedsManualReview("color drift uses LUT and node naming heuristics; check grades manually")})
	}
	return b.Finalize(), nil
}

// canonicalAssets lists declared canonical assets then logo assets, once each.
func canonicalAssets(bp *pack.BrandPack) []string {
	seen := map[string]bool{}
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, a := range bp.CanonicalAssets {
		add(a)
	}
	for _, l := range bp.Logos {
		add(l.Asset)
	}
	return out
}

func (BrandDriftDetector) nonCanonical(b *report.Builder, name string, canonical []string, nearMiss float64) {
	res, err := match.Match(name, canonical, match.Similarity, nearMiss)
	if err != nil {
		_ = b.AddItem(name, report.SeverityError, err.Error())
		return
	}
	item := report.Item{Entity: name, Severity: report.SeverityWarning, Category: "asset", Clip: name,
		Detail: "non-canonical asset"}
	if best := res.Best(); best != nil {
		item.Category = "near_miss"
		item.Detail = fmt.Sprintf("resembles canonical asset %s", best.Name)
		item.Data = map[string]string{"canonical": best.Name, "score": formatScore(best.Score)}
		item.Outcome = report.NeedsManualReview("replace with the canonical asset if this is a stale copy")
	}
	_ = b.Add(item)
}

func brandToken(name string, tokens []string) string {
	lower := strings.ToLower(name)
	for _, tok := range tokens {
		if tok != "" && strings.Contains(lower, strings.ToLower(tok)) {
			return tok
		}
	}
	return ""
}

// terminology flags discouraged terms in clip names and marker text.
func (BrandDriftDetector) terminology(ctx context.Context, env *Env, b *report.Builder, terms []pack.Term, pool []resolve.MediaItem) error {
	type source struct{ entity, text, timeline, timecode string }
	var sources []source
	for _, c := range pool {
		sources = append(sources, source{entity: c.DisplayName(), text: c.Name})
	}
	tl, err := env.Reader.CurrentTimeline(ctx)
	switch {
	case errors.Is(err, resolve.ErrNoTimeline):
	case err != nil:
		return err
	default:
		for _, m := range tl.Markers {
			sources = append(sources, source{entity: markerLabel(m), text: m.Name + " " + m.Note, timeline: tl.Name,
				timecode: timecode.FromFrames(m.Frame, tl.FPS)})
		}
	}
	for _, s := range sources {
		for _, term := range terms {
			if !containsTerm(s.text, term) {
				continue
			}
			_ = b.Add(report.Item{
				Entity: s.entity, Severity: report.SeverityWarning, Category: "terminology",
				Timeline: s.timeline,
				Timecode: s.timecode,
				Detail:   fmt.Sprintf("uses %q; preferred term is %q", term.Term, term.Preferred),
				Data:     map[string]string{"term": term.Term, "preferred": term.Preferred},
			})
		}
	}
	return nil
}

func containsTerm(text string, t pack.Term) bool {
	if t.Term == "" {
		return false
	}
	if t.CaseSensitive {
		return strings.Contains(text, t.Term)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(t.Term))
}
