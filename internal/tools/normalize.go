package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

type normalizeOptions struct {
	FPS        *float64 `json:"fps"`
	Resolution string   `json:"resolution"`
}

// TimelineNormalizer audits the current timeline before handoff. It reports
// and never changes anything.
type TimelineNormalizer struct{}

func (TimelineNormalizer) ID() string    { return "t6_timeline_normalizer" }
func (TimelineNormalizer) Title() string { return "Timeline Normalizer for Handoff" }

func (t TimelineNormalizer) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	var opts normalizeOptions
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.FPS != nil && *opts.FPS <= 0 {
		return nil, optionsErr(t, "fps must be positive")
	}
	if opts.Resolution != "" {
		if _, _, err := pack.ParseResolution(opts.Resolution); err != nil {
			return nil, optionsErr(t, "resolution: %v", err)
		}
	}

	b := env.newReport(t)
	tl, err := env.Reader.CurrentTimeline(ctx)
	if err != nil {
		collaboratorItem(b, "timeline", err)
		return b.Finalize(), nil
	}
	warn := func(entity, category, detail string) {
		_ = b.Add(report.Item{Entity: entity, Severity: report.SeverityWarning, Category: category, Timeline: tl.Name, Detail: detail})
	}

	if tl.Name == "" {
		warn("timeline", "timeline", "timeline has no name")
	}
	if opts.FPS != nil && math.Abs(tl.FPS-*opts.FPS) > 0.001 {
		warn(tl.Name, "fps", fmt.Sprintf("timeline fps %s differs from %s", fmtFloat(tl.FPS), fmtFloat(*opts.FPS)))
	}
	if opts.Resolution != "" && tl.Resolution() != opts.Resolution {
		warn(tl.Name, "resolution", fmt.Sprintf("timeline resolution %s differs from %s", tl.Resolution(), opts.Resolution))
	}

	names := map[string]int{}
	clips := 0
	for i, tr := range tl.VideoTracks {
		if tr.Name == "" {
			warn(fmt.Sprintf("V%d", i+1), "track", fmt.Sprintf("video track %d has no name", i+1))
		}
		for _, it := range tr.Items {
			clips++
			if it.Name != "" {
				names[it.Name]++
			}
			if it.Disabled {
				_ = b.Add(report.Item{
					Entity: it.Name, Severity: report.SeverityWarning, Category: "clip", Timeline: tl.Name,
					Clip: it.Name, Timecode: timecode.FromFrames(it.Start, tl.FPS),
					Detail: "disabled clip",
				})
			}
		}
	}
	dupes := make([]string, 0)
	for name, n := range names {
		if n > 1 {
			dupes = append(dupes, name)
		}
	}
	sort.Strings(dupes)
	for _, name := range dupes {
		warn(name, "duplicate", fmt.Sprintf("duplicate clip name %s (x%d)", name, names[name]))
	}
	for i, tr := range tl.AudioTracks {
		if tr.Disabled {
			warn(fmt.Sprintf("A%d", i+1), "audio", fmt.Sprintf("audio track %d is muted", i+1))
		}
	}

	pool, err := env.Reader.MediaPool(ctx)
	if err != nil {
		collaboratorItem(b, "media_pool", err)
		return b.Finalize(), nil
	}
	offline := 0
	for _, c := range pool {
		if c.Offline || c.Properties["Offline"] == "1" {
			offline++
			_ = b.Add(report.Item{
				Entity: c.DisplayName(), Severity: report.SeverityError, Category: "media",
				Clip: c.DisplayName(), Detail: "offline media",
				Outcome: report.NeedsManualReview("relink or restore the source file"),
			})
		}
	}

	_ = b.Add(report.Item{
		Entity:   tl.Name,
		Severity: report.SeverityOK,
		Category: "summary",
		Timeline: tl.Name,
		Detail:   "normalization analysis complete",
		Data: map[string]string{
			"video_tracks":  strconv.Itoa(len(tl.VideoTracks)),
			"audio_tracks":  strconv.Itoa(len(tl.AudioTracks)),
			"clips":         strconv.Itoa(clips),
			"offline_media": strconv.Itoa(offline),
		},
	})
	return b.Finalize(), nil
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
