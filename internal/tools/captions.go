package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

// SafeZone is the fraction of the frame kept clear on each edge.
type SafeZone struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

func (z SafeZone) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	return "top=" + f(z.Top) + " bottom=" + f(z.Bottom) + " left=" + f(z.Left) + " right=" + f(z.Right)
}

func (z SafeZone) valid() bool {
	for _, v := range []float64{z.Top, z.Bottom, z.Left, z.Right} {
		if v < 0 || v >= 0.5 {
			return false
		}
	}
	return true
}

var defaultSafeZone = SafeZone{Top: 0.1, Bottom: 0.2, Left: 0.05, Right: 0.05}

const captionMarkerName = "Caption Safe"

type captionOptions struct {
	SRTPath         string    `json:"srt_path"`
	SafeZone        *SafeZone `json:"safe_zone"`
	AddMarkers      *bool     `json:"add_markers"`
	MaxCharsPerLine int       `json:"max_chars_per_line"`
	MarkerColor     string    `json:"marker_color"`
}

// CaptionLayoutProtector marks caption spans on the timeline and flags lines
// too long for the safe zone.
type CaptionLayoutProtector struct{}

func (CaptionLayoutProtector) ID() string    { return "t4_caption_layout_protector" }
func (CaptionLayoutProtector) Title() string { return "Caption-Aware Layout Protector" }

func (t CaptionLayoutProtector) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	opts := captionOptions{MaxCharsPerLine: 42, MarkerColor: "Blue"}
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.SRTPath == "" {
		return nil, optionsErr(t, "srt_path is required")
	}
	zone := defaultSafeZone
	if opts.SafeZone != nil {
		zone = *opts.SafeZone
	}
	if !zone.valid() {
		return nil, optionsErr(t, "safe_zone edges must be within [0,0.5)")
	}
	if opts.MaxCharsPerLine < 1 {
		return nil, optionsErr(t, "max_chars_per_line must be positive")
	}
	addMarkers := opts.AddMarkers == nil || *opts.AddMarkers

	data, err := safeio.ReadFile(opts.SRTPath)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	cues := timecode.ParseSRT(string(data))

	b := env.newReport(t)
	_ = b.SetMeta("captions", strconv.Itoa(len(cues)))
	_ = b.SetMeta("safe_zone", zone.String())

	tl, err := env.Reader.CurrentTimeline(ctx)
	if err != nil {
		collaboratorItem(b, "timeline", err)
		return b.Finalize(), nil
	}

	for _, cue := range cues {
		frame := tl.StartFrame + timecode.FromDuration(cue.Start, tl.FPS)
		item := report.Item{
			Entity:   fmt.Sprintf("caption %d", cue.Index),
			Severity: report.SeverityOK,
			Category: "caption_safe",
			Timeline: tl.Name,
			Timecode: timecode.FromFrames(frame, tl.FPS),
			Detail:   cue.Text(),
			Data: map[string]string{
				"start":     timecode.FormatSRT(cue.Start),
				"end":       timecode.FormatSRT(cue.End),
				"safe_zone": zone.String(),
			},
		}
		if n := longestLine(cue.Lines); n > opts.MaxCharsPerLine {
			item.Severity = report.SeverityWarning
			item.Data["longest_line"] = strconv.Itoa(n)
			item.Outcome = report.NeedsManualReview(fmt.Sprintf("line of %d characters exceeds %d; %s", n, opts.MaxCharsPerLine, LimitationText(LimitSubtitleGeometry)))
		}
		_ = b.Add(item)
		if addMarkers {
			m := resolve.Marker{Frame: frame, Color: opts.MarkerColor, Name: captionMarkerName, Note: cue.Text()}
			if err := placeMarker(ctx, env, b, tl, m); err != nil {
				return nil, err
			}
		}
	}
	return b.Finalize(), nil
}

func longestLine(lines []string) int {
	longest := 0
	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > longest {
			longest = n
		}
	}
	return longest
}

// placeMarker adds m to tl, or records the intent in a dry run. A
// collaborator failure becomes an error item; only ledger state errors are
// returned.
func placeMarker(ctx context.Context, env *Env, b *report.Builder, tl *resolve.Timeline, m resolve.Marker) error {
	change := ledger.Change{
		Entity: fmt.Sprintf("marker:%s@%d", tl.Name, m.Frame),
		Action: "add_marker",
		After:  m.Color + " " + m.Name,
	}
	err := env.apply(change, func() error { return env.Mutator.AddMarker(ctx, tl.Name, m) })
	if fatal(err) {
		return err
	}
	if err != nil {
		_ = b.Add(report.Item{
			Entity:   m.Name,
			Severity: report.SeverityError,
			Category: "resolve",
			Timeline: tl.Name,
			Timecode: timecode.FromFrames(m.Frame, tl.FPS),
			Detail:   "marker not added: " + err.Error(),
		})
	}
	return nil
}
