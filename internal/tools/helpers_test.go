package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/config"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/report"
)

func testClock() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

func baseSnapshot() resolve.Snapshot {
	return resolve.Snapshot{
		CurrentProject: "Spring",
		Projects: []resolve.Project{{
			Name:            "Spring",
			CurrentTimeline: "Main",
			Timelines: []resolve.Timeline{{
				Name: "Main", FPS: 25, Width: 1920, Height: 1080, StartFrame: 0, EndFrame: 750,
				VideoTracks: []resolve.Track{{Name: "V1", Items: []resolve.TimelineItem{
					{Name: "logo_v1.png", MediaID: "m1", Start: 0, End: 99},
					{Name: "intro_v1.mov", MediaID: "m2", Start: 100, End: 349},
					{Name: "endcard_v1.mov", MediaID: "m3", Start: 350, End: 749},
				}}},
				AudioTracks: []resolve.Track{{Name: "A1", Items: []resolve.TimelineItem{
					{Name: "music.wav", MediaID: "m4", Start: 0, End: 749},
				}}},
			}},
			MediaPool: []resolve.MediaItem{
				{ID: "m1", Name: "logo_v1.png", FileName: "logo_v1.png", Path: "/media/logo_v1.png", Resolution: "1920x1080"},
				{ID: "m2", Name: "intro_v1.mov", FileName: "intro_v1.mov", Path: "/media/intro_v1.mov", Resolution: "1920x1080"},
				{ID: "m3", Name: "endcard_v1.mov", FileName: "endcard_v1.mov", Path: "/media/endcard_v1.mov", Resolution: "1920x1080"},
				{ID: "m4", Name: "music.wav", FileName: "music.wav", Path: "/media/music.wav"},
			},
		}},
	}
}

type harness struct {
	env   *Env
	mem   *resolve.Memory
	store *ledger.MemoryStore
	dir   string
}

func newHarness(t *testing.T, snap resolve.Snapshot, dryRun bool) *harness {
	t.Helper()
	dir := t.TempDir()
	mem := resolve.NewMemory(snap)
	store := ledger.NewMemoryStore()
	lg := ledger.New(store, ledger.WithClock(testClock), ledger.WithIDGenerator(func() string { return "tx-1" }))
	env := &Env{
		Config:   config.Default(dir),
		Reader:   mem,
		Mutator:  mem,
		Projects: mem,
		Tx:       lg.Begin("test run", dryRun),
		Now:      testClock,
		RunID:    "20261019T120000Z",
	}
	return &harness{env: env, mem: mem, store: store, dir: dir}
}

func (h *harness) run(t *testing.T, tool Tool, opts any) *Result {
	t.Helper()
	res, err := h.try(tool, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	return res
}

func (h *harness) try(tool Tool, opts any) (*Result, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	return Run(context.Background(), tool, h.env, raw)
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (h *harness) writeJSON(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return h.write(t, name, string(data))
}

func (h *harness) ops() []string {
	var out []string
	for _, c := range h.mem.Calls() {
		out = append(out, c.Op)
	}
	return out
}

func itemsByCategory(r *report.Report, category string) []report.Item {
	var out []report.Item
	for _, it := range r.Items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

func mappingPack(entries ...map[string]any) map[string]any {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	return map[string]any{"schema_version": "1.0.0", "kind": "mapping", "mappings": list}
}

func entry(oldAsset, newAsset, strategy string) map[string]any {
	return map[string]any{"old_asset": oldAsset, "new_asset": newAsset, "match_strategy": strategy}
}
