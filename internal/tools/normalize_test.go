package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func TestTimelineNormalizerFindings(t *testing.T) {
	snap := baseSnapshot()
	p := &snap.Projects[0]
	tl := &p.Timelines[0]
	tl.VideoTracks = append(tl.VideoTracks, resolve.Track{Items: []resolve.TimelineItem{
		{Name: "logo_v1.png", MediaID: "m1", Start: 400, End: 449, Disabled: true},
	}})
	tl.AudioTracks[0].Disabled = true
	p.MediaPool[3].Offline = true

	h := newHarness(t, snap, false)
	res := h.run(t, TimelineNormalizer{}, map[string]any{"fps": 30, "resolution": "3840x2160"})
	r := res.Report

	var got [][2]string
	for _, it := range r.Items {
		got = append(got, [2]string{it.Category, it.Entity})
	}
	assert.Equal(t, [][2]string{
		{"fps", "Main"},
		{"resolution", "Main"},
		{"track", "V2"},
		{"clip", "logo_v1.png"},
		{"duplicate", "logo_v1.png"},
		{"audio", "A1"},
		{"media", "music.wav"},
		{"summary", "Main"},
	}, got)

	assert.Equal(t, "timeline fps 25 differs from 30", r.Items[0].Detail)
	assert.Equal(t, "00:00:16:00", r.Items[3].Timecode)
	assert.Equal(t, "duplicate clip name logo_v1.png (x2)", r.Items[4].Detail)
	assert.Equal(t, report.SeverityError, r.Items[6].Severity)
	assert.Equal(t, report.OutcomeNeedsManualReview, r.Items[6].Outcome.Kind)
	assert.Equal(t, map[string]string{"video_tracks": "2", "audio_tracks": "1", "clips": "4", "offline_media": "1"}, r.Items[7].Data)
	assert.Equal(t, report.Summary{Total: 8, Processed: 7, Warnings: 6, Failed: 1, ManualReview: 1}, r.Summary)

	assert.Empty(t, h.mem.Calls(), "normalizer never mutates")
	assert.Nil(t, res.Record)
	assert.Equal(t, ledger.StateAborted, h.env.Tx.State())
}

func TestTimelineNormalizerCleanTimeline(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	res := h.run(t, TimelineNormalizer{}, map[string]any{"fps": 25, "resolution": "1920x1080"})
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, "summary", res.Report.Items[0].Category)
	assert.Equal(t, "normalization analysis complete", res.Report.Items[0].Detail)
}

func TestTimelineNormalizerOptions(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	for name, opts := range map[string]map[string]any{
		"zero fps":       {"fps": 0},
		"bad resolution": {"resolution": "4k"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.try(TimelineNormalizer{}, opts)
			var oe *OptionsError
			assert.ErrorAs(t, err, &oe)
		})
	}
}
