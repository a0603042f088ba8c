package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func TestDefaultRegistryOrder(t *testing.T) {
	want := []string{
		"t1_revision_resolver",
		"t2_relink_across_projects",
		"t3_smart_reframer",
		"t4_caption_layout_protector",
		"t5_feedback_compiler",
		"t6_timeline_normalizer",
		"t7_component_graphics",
		"t8_delivery_spec_enforcer",
		"t9_change_impact_analyzer",
		"t10_brand_drift_detector",
	}
	reg := Default()
	var got []string
	for _, tool := range reg.List() {
		got = append(got, tool.ID())
		assert.NotEmpty(t, tool.Title(), tool.ID())
	}
	assert.Equal(t, want, got)

	tool, ok := reg.Get("t6_timeline_normalizer")
	require.True(t, ok)
	assert.Equal(t, "Timeline Normalizer for Handoff", tool.Title())
	_, ok = reg.Get("t11_unknown")
	assert.False(t, ok)

	assert.Panics(t, func() { NewRegistry(TimelineNormalizer{}, TimelineNormalizer{}) })
}

func TestLimitations(t *testing.T) {
	var keys []string
	for _, l := range Limitations() {
		keys = append(keys, l.Key)
		assert.NotEmpty(t, l.Text)
	}
	assert.Equal(t, []string{LimitClipTransform, LimitFusionGraph, LimitSubtitleGeometry, LimitRenderSettings, LimitUINavigation}, keys)
	assert.Empty(t, LimitationText("teleport"))
	assert.Contains(t, LimitationText(LimitSubtitleGeometry), "safe zone")
}

func TestRunChecksEnvironment(t *testing.T) {
	h := newHarness(t, baseSnapshot(), false)
	h.env.Mutator = nil
	_, err := h.try(TimelineNormalizer{}, nil)
	assert.ErrorContains(t, err, "mutator")

	dry := newHarness(t, baseSnapshot(), true)
	dry.env.Mutator = nil
	res := dry.run(t, TimelineNormalizer{}, nil)
	assert.True(t, res.Report.DryRun)
	assert.Nil(t, res.Record)

	noTx := newHarness(t, baseSnapshot(), true)
	noTx.env.Tx = nil
	_, err = Run(context.Background(), TimelineNormalizer{}, noTx.env, nil)
	assert.Error(t, err)
}

func TestOptionsErrors(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)

	_, err := h.try(RevisionResolver{}, map[string]any{})
	var oe *OptionsError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "t1_revision_resolver", oe.ToolID)
	assert.Contains(t, err.Error(), "mapping_pack_path is required")
	assert.Equal(t, ledger.StateAborted, h.env.Tx.State())

	h = newHarness(t, baseSnapshot(), true)
	_, err = Run(context.Background(), TimelineNormalizer{}, h.env, json.RawMessage(`{"fps": 25, "colour": "red"}`))
	require.ErrorAs(t, err, &oe)
	assert.Contains(t, oe.Reason, "colour")

	h = newHarness(t, baseSnapshot(), true)
	_, err = h.try(SmartReframer{}, map[string]any{"formats": []string{"tall"}})
	assert.ErrorAs(t, err, &oe)
}

func TestCollaboratorFailureStillFinalizes(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	h.mem.FailOn("CurrentTimeline", errors.New("scripting bridge unavailable"))

	res := h.run(t, TimelineNormalizer{}, nil)
	require.Len(t, res.Report.Items, 1)
	item := res.Report.Items[0]
	assert.Equal(t, report.SeverityError, item.Severity)
	assert.Equal(t, "resolve", item.Category)
	assert.Equal(t, "CurrentTimeline: scripting bridge unavailable", item.Detail)
	assert.True(t, res.Report.HasFailures())
	assert.Equal(t, ledger.StateCommitted, h.env.Tx.State())
}

func TestClosedTransactionStopsBeforeMutating(t *testing.T) {
	packOpts := func(h *harness) map[string]any {
		return map[string]any{"mapping_pack_path": h.writeJSON(t, "mapping.json", threeEntryPack()), "duplicate_timeline": false}
	}
	cases := map[string]struct {
		tool Tool
		opts func(h *harness) map[string]any
	}{
		"graphics": {ComponentGraphics{}, func(*harness) map[string]any { return graphicsComponents }},
		"revision": {RevisionResolver{}, packOpts},
		"captions": {CaptionLayoutProtector{}, func(h *harness) map[string]any {
			return map[string]any{"srt_path": h.write(t, "captions.srt", sampleSRT)}
		}},
		"reframe": {SmartReframer{}, func(*harness) map[string]any { return map[string]any{"formats": []string{"1x1"}} }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, graphicsSnapshot(), false)
			require.NoError(t, h.env.Tx.Abort())

			res, err := h.try(tc.tool, tc.opts(h))
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrInvalidState)
			assert.Nil(t, res)
			assert.Empty(t, h.mem.Calls())
			assert.Empty(t, h.env.Tx.Changes())
			assert.Zero(t, h.store.Len())
		})
	}
}

func TestBeforeCommitFailureAbortsTransaction(t *testing.T) {
	h := newHarness(t, graphicsSnapshot(), false)
	writeErr := errors.New("reports directory is read-only")
	var seen *report.Report
	h.env.BeforeCommit = func(_ context.Context, rep *report.Report) error {
		seen = rep
		return writeErr
	}

	res, err := h.try(ComponentGraphics{}, graphicsComponents)
	require.ErrorIs(t, err, writeErr)
	assert.Nil(t, res)
	require.NotNil(t, seen)
	assert.Len(t, seen.Items, 4)
	assert.Equal(t, ledger.StateAborted, h.env.Tx.State())
	assert.Zero(t, h.store.Len())
}

func TestBeforeCommitRunsBeforeTheRecordIsSaved(t *testing.T) {
	h := newHarness(t, graphicsSnapshot(), false)
	h.env.BeforeCommit = func(context.Context, *report.Report) error {
		assert.Equal(t, ledger.StateOpen, h.env.Tx.State())
		assert.Zero(t, h.store.Len())
		return nil
	}

	res := h.run(t, ComponentGraphics{}, graphicsComponents)
	require.NotNil(t, res.Record)
	assert.Equal(t, 1, h.store.Len())
}

func TestInvalidConfiguredStrategyIsRejected(t *testing.T) {
	cases := []struct {
		tool  Tool
		extra map[string]any
	}{
		{RevisionResolver{}, map[string]any{}},
		{RelinkAcrossProjects{}, map[string]any{"projects": []string{"Spring"}}},
	}
	for _, tc := range cases {
		t.Run(tc.tool.ID(), func(t *testing.T) {
			h := newHarness(t, baseSnapshot(), false)
			h.env.Config.Match.Strategy = "fuzzy"
			opts := map[string]any{"mapping_pack_path": h.writeJSON(t, "mapping.json", threeEntryPack())}
			for k, v := range tc.extra {
				opts[k] = v
			}

			_, err := h.try(tc.tool, opts)
			var se *match.StrategyError
			require.ErrorAs(t, err, &se)
			assert.Empty(t, h.mem.Calls())
			assert.Equal(t, ledger.StateAborted, h.env.Tx.State())
		})
	}
}
