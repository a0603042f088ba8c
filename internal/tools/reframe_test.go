package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func brandPack() map[string]any {
	return map[string]any{
		"schema_version":   "1.0.0",
		"kind":             "brand",
		"name":             "Acme",
		"colors":           []any{map[string]any{"name": "Acme Red", "hex": "#D7261E"}},
		"fonts":            []string{"Acme Sans"},
		"logos":            []any{map[string]any{"name": "primary", "asset": "acme_logo.png"}},
		"canonical_assets": []string{"intro_v1.mov"},
		"brand_tokens":     []string{"acme"},
		"terminology":      []any{map[string]any{"term": "e-mail", "preferred": "email"}},
		"layout_constraints": map[string]any{
			"9x16": map[string]any{"safe_margin": 0.1, "anchor": "center", "keep_logo_visible": true},
		},
	}
}

func TestSmartReframerDryRun(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	packPath := h.writeJSON(t, "brand.json", brandPack())

	res := h.run(t, SmartReframer{}, map[string]any{"brand_pack_path": packPath})

	require.Len(t, res.Report.Items, 3)
	var names []string
	for _, it := range res.Report.Items {
		names = append(names, it.Entity)
		assert.Equal(t, report.SeverityWarning, it.Severity)
		assert.Equal(t, report.NeedsManualReview(LimitationText(LimitClipTransform)), it.Outcome)
		assert.Equal(t, "3", it.Data["anchor_clips"])
	}
	assert.Equal(t, []string{"Main_9x16", "Main_4x5", "Main_1x1"}, names)

	vertical := res.Report.Items[0]
	assert.Equal(t, "dry run: would create Main_9x16 with 3 review marker(s)", vertical.Detail)
	assert.Equal(t, "0.5625", vertical.Data["aspect"])
	assert.Equal(t, "0.1", vertical.Data["safe_margin"])
	assert.Equal(t, "center", vertical.Data["anchor"])
	assert.Equal(t, "true", vertical.Data["keep_logo_visible"])
	assert.NotContains(t, res.Report.Items[1].Data, "safe_margin")

	assert.Empty(t, h.mem.Calls())
	assert.Len(t, h.env.Tx.Changes(), 12)
	assert.Equal(t, 3, res.Report.Summary.ManualReview)
}

func TestSmartReframerCreatesTimelines(t *testing.T) {
	h := newHarness(t, baseSnapshot(), false)

	res := h.run(t, SmartReframer{}, map[string]any{"formats": []string{"9x16"}, "marker_color": "Red"})

	assert.Equal(t, []string{"DuplicateTimeline", "AddMarker", "AddMarker", "AddMarker"}, h.ops())
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, "created Main_9x16 with 3 review marker(s)", res.Report.Items[0].Detail)

	snap := h.mem.Snapshot()
	var tl *resolve.Timeline
	for i := range snap.Projects[0].Timelines {
		if snap.Projects[0].Timelines[i].Name == "Main_9x16" {
			tl = &snap.Projects[0].Timelines[i]
		}
	}
	require.NotNil(t, tl)
	require.Len(t, tl.Markers, 3)
	assert.Equal(t, []int{0, 100, 350}, []int{tl.Markers[0].Frame, tl.Markers[1].Frame, tl.Markers[2].Frame})
	assert.Equal(t, "Red", tl.Markers[0].Color)
	assert.Equal(t, "reframe for 9x16 (logo_v1.png)", tl.Markers[0].Note)
	require.NotNil(t, res.Record)
	assert.Len(t, res.Record.Changes, 4)
}

func TestSmartReframerMarkerFailures(t *testing.T) {
	h := newHarness(t, baseSnapshot(), false)
	h.mem.FailOn("AddMarker", errors.New("timeline locked"))

	res := h.run(t, SmartReframer{}, map[string]any{"formats": []string{"1x1"}})
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, "created Main_1x1 with 0 review marker(s); 3 marker(s) could not be added, first at 00:00:00:00", res.Report.Items[0].Detail)
	require.NotNil(t, res.Record)
	assert.Len(t, res.Record.Changes, 1)
}

func TestSmartReframerOptions(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	for name, opts := range map[string]map[string]any{
		"bad format":   {"formats": []string{"wide"}},
		"anchor track": {"anchor_track": 0},
		"unknown key":  {"aspect": "9x16"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.try(SmartReframer{}, opts)
			var oe *OptionsError
			assert.ErrorAs(t, err, &oe)
		})
	}
}
