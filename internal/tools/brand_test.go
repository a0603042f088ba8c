package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func driftSnapshot() resolve.Snapshot {
	snap := baseSnapshot()
	p := &snap.Projects[0]
	p.MediaPool = []resolve.MediaItem{
		{ID: "b1", Name: "acme_1ogo.png", FileName: "acme_1ogo.png"},
		{ID: "b2", Name: "interview.mov", FileName: "interview.mov"},
		{ID: "b3", Name: "e-mail_promo.mov", FileName: "e-mail_promo.mov"},
	}
	p.Timelines[0].Markers = []resolve.Marker{{Frame: 50, Color: "Blue", Name: "Review", Note: "add the e-mail address"}}
	return snap
}

func TestBrandDriftDetector(t *testing.T) {
	h := newHarness(t, driftSnapshot(), true)
	bp := brandPack()
	bp["canonical_assets"] = []string{"acme_logo.png"}
	packPath := h.writeJSON(t, "brand.json", bp)

	res := h.run(t, BrandDriftDetector{}, map[string]any{"brand_pack_path": packPath})
	r := res.Report

	var got [][2]string
	for _, it := range r.Items {
		got = append(got, [2]string{it.Category, it.Entity})
	}
	assert.Equal(t, [][2]string{
		{"near_miss", "acme_1ogo.png"},
		{"brand_token", "acme_1ogo.png"},
		{"asset", "interview.mov"},
		{"asset", "e-mail_promo.mov"},
		{"missing_asset", "acme_logo.png"},
		{"terminology", "e-mail_promo.mov"},
		{"terminology", "Blue Review"},
		{"fonts", "fonts"},
		{"colors", "colors"},
	}, got)

	near := r.Items[0]
	assert.Equal(t, map[string]string{"canonical": "acme_logo.png", "score": "0.9231"}, near.Data)
	assert.Equal(t, report.OutcomeNeedsManualReview, near.Outcome.Kind)
	assert.Equal(t, `uses "e-mail"; preferred term is "email"`, r.Items[5].Detail)
	assert.Equal(t, "00:00:02:00", r.Items[6].Timecode)
	assert.Equal(t, "Acme Sans", r.Items[7].Detail)
	assert.Equal(t, "Acme Red #D7261E", r.Items[8].Detail)
	assert.Equal(t, "Acme", r.Meta["brand"])
	assert.Empty(t, h.env.Tx.Changes())
}

func TestBrandDriftDetectorStricterNearMiss(t *testing.T) {
	h := newHarness(t, driftSnapshot(), true)
	bp := brandPack()
	bp["fonts"] = []string{}
	bp["terminology"] = []any{}
	packPath := h.writeJSON(t, "brand.json", bp)

	res := h.run(t, BrandDriftDetector{}, map[string]any{"brand_pack_path": packPath, "near_miss_threshold": 0.95})

	assert.Empty(t, itemsByCategory(res.Report, "near_miss"))
	fonts := res.Report.Items[len(res.Report.Items)-2]
	assert.Equal(t, "fonts", fonts.Entity)
	assert.Equal(t, report.SeverityWarning, fonts.Severity)
	assert.Equal(t, "no fonts defined in brand pack", fonts.Detail)

	_, err := h.try(BrandDriftDetector{}, map[string]any{"brand_pack_path": packPath, "near_miss_threshold": 1.5})
	var oe *OptionsError
	require.ErrorAs(t, err, &oe)
}
