package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/rpsuite/pkg/report"
)

const reviewNotes = `# client review, round 2
00:00:02:00 swap the logo for the new one
at 5s the music is too loud
general: tighten the pacing
00:00:20:00 Title typo in the end card
`

func TestFeedbackCompilerBuildsTasks(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	notes := h.write(t, "notes.txt", reviewNotes)
	prior := h.writeJSON(t, "prior.json", TaskList{Timeline: "Main", Tasks: []Task{
		{ID: "task-009", Timecode: "00:00:20:00", Note: "00:00:20:00 Title typo in the end card", Status: "done"},
	}})
	out := filepath.Join(h.dir, "out", "tasks.json")

	res := h.run(t, FeedbackCompiler{}, map[string]any{
		"notes_path":       notes,
		"prior_tasks_path": prior,
		"tasks_output":     out,
	})
	r := res.Report

	require.Len(t, r.Items, 4)
	logo := r.Items[0]
	assert.Equal(t, "note 1", logo.Entity)
	assert.Equal(t, "00:00:02:00", logo.Timecode)
	assert.Equal(t, "logo_v1.png", logo.Clip)
	assert.Equal(t, map[string]string{"task_id": "task-001", "color": "Purple", "status": "open"}, logo.Data)

	music := r.Items[1]
	assert.Equal(t, "00:00:05:00", music.Timecode)
	assert.Equal(t, "Green", music.Data["color"])
	assert.Equal(t, "intro_v1.mov", music.Clip)

	assert.Equal(t, report.Skipped("no timecode found in note"), r.Items[2].Outcome)

	done := r.Items[3]
	assert.Equal(t, "note 4", done.Entity)
	assert.Equal(t, report.SeveritySkipped, done.Severity)
	assert.Equal(t, "Yellow", done.Data["color"])
	assert.Equal(t, "task-004", done.Data["task_id"])

	assert.Len(t, h.env.Tx.Changes(), 2, "done tasks get no marker")
	assert.Equal(t, "3", r.Meta["tasks"])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var exported TaskList
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "Main", exported.Timeline)
	require.Len(t, exported.Tasks, 3)
	assert.Equal(t, "done", exported.Tasks[2].Status)
	assert.Equal(t, "endcard_v1.mov", exported.Tasks[2].Clip)
}

func TestFeedbackCompilerMarkersAndOffsets(t *testing.T) {
	snap := baseSnapshot()
	tl := &snap.Projects[0].Timelines[0]
	tl.StartFrame = 90000
	tl.EndFrame = 90750
	for i := range tl.VideoTracks[0].Items {
		tl.VideoTracks[0].Items[i].Start += 90000
		tl.VideoTracks[0].Items[i].End += 90000
	}
	h := newHarness(t, snap, false)
	notes := h.write(t, "notes.txt", "00:00:02:00 brand colour is off\n01:00:06:00 fix the grade here\n")

	res := h.run(t, FeedbackCompiler{}, map[string]any{
		"notes_path":     notes,
		"default_color":  "Cream",
		"keyword_colors": []KeywordColor{{Pattern: "grade", Color: "Orange"}},
	})

	require.Len(t, res.Report.Items, 2)
	assert.Equal(t, "01:00:02:00", res.Report.Items[0].Timecode, "offsets are shifted to record timecode")
	assert.Equal(t, "01:00:06:00", res.Report.Items[1].Timecode)

	markers := h.mem.Snapshot().Projects[0].Timelines[0].Markers
	require.Len(t, markers, 2)
	assert.Equal(t, 90050, markers[0].Frame)
	assert.Equal(t, "Cream", markers[0].Color)
	assert.Equal(t, "task-001", markers[0].Name)
	assert.Equal(t, 90150, markers[1].Frame)
	assert.Equal(t, "Orange", markers[1].Color)
	require.NotNil(t, res.Record)
	assert.Len(t, res.Record.Changes, 2)
}

func TestFeedbackCompilerOptions(t *testing.T) {
	h := newHarness(t, baseSnapshot(), true)
	notes := h.write(t, "notes.txt", reviewNotes)

	_, err := h.try(FeedbackCompiler{}, map[string]any{})
	var oe *OptionsError
	require.ErrorAs(t, err, &oe)

	_, err = h.try(FeedbackCompiler{}, map[string]any{
		"notes_path":     notes,
		"keyword_colors": []KeywordColor{{Pattern: "(", Color: "Red"}},
	})
	require.ErrorAs(t, err, &oe)

	bad := h.write(t, "prior.json", "{not json")
	_, err = h.try(FeedbackCompiler{}, map[string]any{"notes_path": notes, "prior_tasks_path": bad})
	assert.ErrorContains(t, err, "parse prior tasks")
}
