package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func deliveryPack() map[string]any {
	return map[string]any{
		"schema_version": "1.0.0",
		"kind":           "delivery",
		"platforms": map[string]any{
			"youtube": map[string]any{"codec": "h264", "container": "mp4", "bitrate_mbps": 16, "resolution": "1920x1080", "fps": 25, "naming_tokens": []string{"spring"}},
			"tiktok":  map[string]any{"codec": "h264", "resolution": "1080x1920", "fps": 30, "duration_limit": 20, "naming_pattern": "^tt_"},
		},
	}
}

func TestDeliverySpecEnforcer(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	packPath := h.writeJSON(t, "delivery.json", deliveryPack())
	manifestPath := filepath.Join(h.dir, "manifest.json")

	res := h.run(t, DeliverySpecEnforcer{}, map[string]any{
		"delivery_pack_path": packPath,
		"output_name":        "spring_main",
		"manifest_output":    manifestPath,
	})
	r := res.Report

	require.Len(t, r.Items, 2)
	tiktok, youtube := r.Items[0], r.Items[1]
	assert.Equal(t, "tiktok", tiktok.Entity)
	assert.Equal(t, report.SeverityWarning, tiktok.Severity)
	assert.Equal(t, "resolution 1920x1080, expected 1080x1920; fps 25, expected 30; "+
		"duration 30.00s exceeds limit 20s; output name \"spring_main\" does not match ^tt_", tiktok.Detail)

	assert.Equal(t, report.SeverityOK, youtube.Severity)
	assert.Equal(t, "timeline meets platform spec", youtube.Detail)
	assert.Equal(t, report.NeedsManualReview(LimitationText(LimitRenderSettings)), youtube.Outcome)
	assert.Equal(t, map[string]string{"codec": "h264", "container": "mp4", "bitrate_mbps": "16", "resolution": "1920x1080", "fps": "25", "duration": "30.00"}, youtube.Data)
	assert.Equal(t, 2, r.Summary.ManualReview)

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "Main", m.Timeline)
	require.Len(t, m.Platforms, 2)
	assert.Len(t, m.Platforms[0].Findings, 4)
	assert.Contains(t, string(data), `"findings": []`)
	assert.Empty(t, h.env.Tx.Changes())
}

func TestDeliverySpecEnforcerPlatformSelection(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	packPath := h.writeJSON(t, "delivery.json", deliveryPack())

	res := h.run(t, DeliverySpecEnforcer{}, map[string]any{"delivery_pack_path": packPath, "platforms": []string{"youtube"}})
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, report.SeverityWarning, res.Report.Items[0].Severity)
	assert.Equal(t, `output name "Main" lacks token "spring"`, res.Report.Items[0].Detail)

	_, err := h.try(DeliverySpecEnforcer{}, map[string]any{"delivery_pack_path": packPath, "platforms": []string{"vimeo"}})
	var oe *OptionsError
	require.ErrorAs(t, err, &oe)
	assert.Contains(t, oe.Reason, "have tiktok, youtube")
}

func TestCheckPlatform(t *testing.T) {
	spec := pack.Platform{Codec: "h264", Resolution: "1920x1080", FPS: 25}
	assert.Equal(t, []string{}, checkPlatform(spec, "1920X1080", 25.001, 10, "x"))

	broken := checkPlatform(pack.Platform{Codec: "h264", NamingPattern: "("}, "", 0, 0, "x")
	require.Len(t, broken, 1)
	assert.Contains(t, broken[0], "invalid pattern")
}
