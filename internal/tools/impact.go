package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

type impactOptions struct {
	BaseTimeline    string `json:"base_timeline"`
	CompareTimeline string `json:"compare_timeline"`
}

// ChangeImpactAnalyzer diffs two timelines: clips by name and position,
// markers by frame. Output order depends only on the timelines.
type ChangeImpactAnalyzer struct{}

func (ChangeImpactAnalyzer) ID() string    { return "t9_change_impact_analyzer" }
func (ChangeImpactAnalyzer) Title() string { return "Change-Impact Analyzer" }

type placedClip struct {
	track string
	item  resolve.TimelineItem
}

type impactChange struct {
	category string
	entity   string
	frame    int
	severity report.Severity
	detail   string
	data     map[string]string
}

func (t ChangeImpactAnalyzer) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	var opts impactOptions
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.BaseTimeline == "" {
		return nil, optionsErr(t, "base_timeline is required")
	}

	b := env.newReport(t)
	base, err := env.Reader.Timeline(ctx, opts.BaseTimeline)
	if err != nil {
		collaboratorItem(b, opts.BaseTimeline, err)
		return b.Finalize(), nil
	}
	var cmp *resolve.Timeline
	if opts.CompareTimeline == "" {
		cmp, err = env.Reader.CurrentTimeline(ctx)
	} else {
		cmp, err = env.Reader.Timeline(ctx, opts.CompareTimeline)
	}
	if err != nil {
		collaboratorItem(b, "compare timeline", err)
		return b.Finalize(), nil
	}
	_ = b.SetMeta("base_timeline", base.Name)
	_ = b.SetMeta("compare_timeline", cmp.Name)

	changes := append(diffClips(base, cmp), diffMarkers(base, cmp)...)
	sort.SliceStable(changes, func(i, j int) bool {
		a, c := changes[i], changes[j]
		if a.category != c.category {
			return a.category < c.category
		}
		if a.entity != c.entity {
			return a.entity < c.entity
		}
		if a.frame != c.frame {
			return a.frame < c.frame
		}
		return a.detail < c.detail
	})

	if len(changes) == 0 {
		_ = b.Add(report.Item{Entity: cmp.Name, Severity: report.SeverityOK, Category: "summary",
			Timeline: cmp.Name, Detail: "timelines are identical"})
		return b.Finalize(), nil
	}
	for _, c := range changes {
		_ = b.Add(report.Item{
			Entity:   c.entity,
			Severity: c.severity,
			Category: c.category,
			Timeline: cmp.Name,
			Timecode: timecode.FromFrames(c.frame, cmp.FPS),
			Detail:   c.detail,
			Data:     c.data,
		})
	}
	return b.Finalize(), nil
}

func clipsByName(tl *resolve.Timeline) map[string][]placedClip {
	out := map[string][]placedClip{}
	for _, kind := range []string{"video", "audio"} {
		prefix := "V"
		if kind == "audio" {
			prefix = "A"
		}
		for i, tr := range tl.Tracks(kind) {
			for _, it := range tr.Items {
				out[it.Name] = append(out[it.Name], placedClip{track: prefix + strconv.Itoa(i+1), item: it})
			}
		}
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].item.Start < list[j].item.Start })
	}
	return out
}

// diffClips pairs same-named clips in timeline order; unpaired ones are
// additions or removals.
func diffClips(base, cmp *resolve.Timeline) []impactChange {
	before, after := clipsByName(base), clipsByName(cmp)
	names := map[string]bool{}
	for n := range before {
		names[n] = true
	}
	for n := range after {
		names[n] = true
	}
	var out []impactChange
	for name := range names {
		b, a := before[name], after[name]
		n := min(len(b), len(a))
		for i := 0; i < n; i++ {
			bi, ai := b[i].item, a[i].item
			if bi.Start == ai.Start && bi.End == ai.End && b[i].track == a[i].track {
				continue
			}
			out = append(out, impactChange{
				category: "clip_moved", entity: name, frame: ai.Start, severity: report.SeverityWarning,
				detail: fmt.Sprintf("%s %d-%d -> %s %d-%d", b[i].track, bi.Start, bi.End, a[i].track, ai.Start, ai.End),
				data:   map[string]string{"before_start": strconv.Itoa(bi.Start), "after_start": strconv.Itoa(ai.Start), "delta": strconv.Itoa(ai.Start - bi.Start)},
			})
		}
		for _, p := range b[n:] {
			out = append(out, impactChange{category: "clip_removed", entity: name, frame: p.item.Start,
				severity: report.SeverityWarning, detail: fmt.Sprintf("removed from %s at frame %d", p.track, p.item.Start)})
		}
		for _, p := range a[n:] {
			out = append(out, impactChange{category: "clip_added", entity: name, frame: p.item.Start,
				severity: report.SeverityOK, detail: fmt.Sprintf("added on %s at frame %d", p.track, p.item.Start)})
		}
	}
	return out
}

func diffMarkers(base, cmp *resolve.Timeline) []impactChange {
	before := map[int]resolve.Marker{}
	for _, m := range base.Markers {
		before[m.Frame] = m
	}
	after := map[int]resolve.Marker{}
	for _, m := range cmp.Markers {
		after[m.Frame] = m
	}
	var out []impactChange
	for frame, bm := range before {
		am, ok := after[frame]
		switch {
		case !ok:
			out = append(out, impactChange{category: "marker_removed", entity: markerLabel(bm), frame: frame,
				severity: report.SeverityWarning, detail: "marker removed"})
		case am != bm:
			out = append(out, impactChange{category: "marker_changed", entity: markerLabel(am), frame: frame,
				severity: report.SeverityOK, detail: fmt.Sprintf("%s -> %s", markerLabel(bm), markerLabel(am))})
		}
	}
	for frame, am := range after {
		if _, ok := before[frame]; !ok {
			out = append(out, impactChange{category: "marker_added", entity: markerLabel(am), frame: frame,
				severity: report.SeverityOK, detail: "marker added"})
		}
	}
	return out
}

func markerLabel(m resolve.Marker) string {
	if m.Name == "" {
		return m.Color + " marker"
	}
	return m.Color + " " + m.Name
}
