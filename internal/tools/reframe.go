package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

var defaultFormats = []string{"9x16", "4x5", "1x1"}

type reframeOptions struct {
	Formats     []string `json:"formats"`
	BrandPack   string   `json:"brand_pack_path"`
	AnchorTrack int      `json:"anchor_track"`
	MarkerColor string   `json:"marker_color"`
}

// SmartReframer creates one timeline per delivery aspect ratio and marks the
// anchor clips whose framing needs review.
type SmartReframer struct{}

func (SmartReframer) ID() string    { return "t3_smart_reframer" }
func (SmartReframer) Title() string { return "Constraint-Based Smart Reframer" }

func (t SmartReframer) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	opts := reframeOptions{AnchorTrack: 1, MarkerColor: "Yellow"}
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if len(opts.Formats) == 0 {
		opts.Formats = defaultFormats
	}
	for _, f := range opts.Formats {
		if _, _, err := pack.ParseResolution(f); err != nil {
			return nil, optionsErr(t, "format %q: %v", f, err)
		}
	}
	if opts.AnchorTrack < 1 {
		return nil, optionsErr(t, "anchor_track must be 1 or greater")
	}
	var constraints map[string]pack.LayoutConstraint
	if opts.BrandPack != "" {
		p, err := env.loadPack(opts.BrandPack, pack.KindBrand)
		if err != nil {
			return nil, err
		}
		constraints = p.Brand.LayoutConstraints
	}

	b := env.newReport(t)
	tl, err := env.Reader.CurrentTimeline(ctx)
	if err != nil {
		collaboratorItem(b, "timeline", err)
		return b.Finalize(), nil
	}

	var anchors []resolve.TimelineItem
	if opts.AnchorTrack <= len(tl.VideoTracks) {
		anchors = append(anchors, tl.VideoTracks[opts.AnchorTrack-1].Items...)
	}
	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].Start < anchors[j].Start })

	for _, format := range opts.Formats {
		if err := t.reframe(ctx, env, b, tl, format, anchors, constraints[format], opts.MarkerColor); err != nil {
			return nil, err
		}
	}
	return b.Finalize(), nil
}

func (t SmartReframer) reframe(ctx context.Context, env *Env, b *report.Builder, tl *resolve.Timeline, format string, anchors []resolve.TimelineItem, lc pack.LayoutConstraint, color string) error {
	name := tl.Name + "_" + format
	w, h, _ := pack.ParseResolution(format)
	data := map[string]string{
		"format":       format,
		"aspect":       strconv.FormatFloat(float64(w)/float64(h), 'f', 4, 64),
		"anchor_clips": strconv.Itoa(len(anchors)),
	}
	note := "reframe for " + format
	if lc.SafeMargin != nil {
		data["safe_margin"] = strconv.FormatFloat(*lc.SafeMargin, 'f', -1, 64)
		note += " safe_margin=" + data["safe_margin"]
	}
	if lc.Anchor != "" {
		data["anchor"] = lc.Anchor
		note += " anchor=" + lc.Anchor
	}
	if lc.KeepLogoVisible {
		data["keep_logo_visible"] = "true"
		note += " keep logo visible"
	}
	item := report.Item{
		Entity:   name,
		Severity: report.SeverityWarning,
		Category: "reframe",
		Timeline: name,
		Data:     data,
		Outcome:  report.NeedsManualReview(LimitationText(LimitClipTransform)),
	}

	markers := make([]ledger.Change, 0, len(anchors))
	for _, a := range anchors {
		markers = append(markers, ledger.Change{
			Entity: fmt.Sprintf("marker:%s@%d", name, a.Start),
			Action: "add_marker",
			After:  "Reframe " + format + ": " + a.Name,
		})
	}

	err := env.apply(changeTimeline(name, "duplicate", tl.Name, name), func() error {
		_, err := env.Mutator.DuplicateTimeline(ctx, tl.Name, name)
		return err
	})
	if fatal(err) {
		return err
	}
	if err != nil {
		collaboratorItem(b, name, err)
		return nil
	}
	failed, firstFailed := 0, 0
	for i, a := range anchors {
		m := resolve.Marker{Frame: a.Start, Color: color, Name: "Reframe " + format, Note: note + " (" + a.Name + ")"}
		err := env.apply(markers[i], func() error { return env.Mutator.AddMarker(ctx, name, m) })
		if fatal(err) {
			return err
		}
		if err != nil {
			if failed == 0 {
				firstFailed = a.Start
			}
			failed++
		}
	}
	if env.DryRun() {
		item.Detail = fmt.Sprintf("dry run: would create %s with %d review marker(s)", name, len(anchors))
		_ = b.Add(item)
		return nil
	}
	item.Detail = fmt.Sprintf("created %s with %d review marker(s)", name, len(anchors)-failed)
	if failed > 0 {
		item.Detail += fmt.Sprintf("; %d marker(s) could not be added, first at %s", failed, timecode.FromFrames(firstFailed, tl.FPS))
	}
	_ = b.Add(item)
	return nil
}
