package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/internal/timecode"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

// KeywordColor maps notes matching Pattern (case-insensitive regexp) to a
// marker color.
type KeywordColor struct {
	Pattern string `json:"pattern"`
	Color   string `json:"color"`
}

var defaultKeywordColors = []KeywordColor{
	{Pattern: `logo|brand|font`, Color: "Purple"},
	{Pattern: `audio|music|sound|mix`, Color: "Green"},
	{Pattern: `colou?r|grade`, Color: "Orange"},
	{Pattern: `text|title|caption|typo`, Color: "Yellow"},
}

// Task is one actionable note in the exported task list.
type Task struct {
	ID       string `json:"id"`
	Timecode string `json:"timecode"`
	Note     string `json:"note"`
	Color    string `json:"color"`
	Clip     string `json:"clip,omitempty"`
	Status   string `json:"status"`
}

// TaskList is the tasks export document.
type TaskList struct {
	Timeline string `json:"timeline"`
	Tasks    []Task `json:"tasks"`
}

const (
	taskOpen = "open"
	taskDone = "done"
)

type feedbackOptions struct {
	NotesPath      string         `json:"notes_path"`
	KeywordColors  []KeywordColor `json:"keyword_colors"`
	DefaultColor   string         `json:"default_color"`
	PriorTasksPath string         `json:"prior_tasks_path"`
	TasksOutput    string         `json:"tasks_output"`
	AddMarkers     *bool          `json:"add_markers"`
}

// FeedbackCompiler turns timecoded review notes into colored markers and a
// task list, keeping statuses from a previous export.
type FeedbackCompiler struct{}

func (FeedbackCompiler) ID() string    { return "t5_feedback_compiler" }
func (FeedbackCompiler) Title() string { return "Feedback -> Marker -> Task Compiler" }

func (t FeedbackCompiler) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	opts := feedbackOptions{DefaultColor: "Blue"}
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.NotesPath == "" {
		return nil, optionsErr(t, "notes_path is required")
	}
	if opts.KeywordColors == nil {
		opts.KeywordColors = defaultKeywordColors
	}
	patterns := make([]string, 0, len(opts.KeywordColors))
	colors := make(map[string]string, len(opts.KeywordColors))
	for _, kc := range opts.KeywordColors {
		if _, err := regexp.Compile(kc.Pattern); err != nil || kc.Color == "" {
			return nil, optionsErr(t, "keyword_colors entry %q needs a valid pattern and a color", kc.Pattern)
		}
		if _, seen := colors[kc.Pattern]; !seen {
			patterns = append(patterns, kc.Pattern)
			colors[kc.Pattern] = kc.Color
		}
	}
	addMarkers := opts.AddMarkers == nil || *opts.AddMarkers

	text, err := safeio.ReadFile(opts.NotesPath)
	if err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}
	prior, err := loadPriorTasks(opts.PriorTasksPath)
	if err != nil {
		return nil, err
	}

	b := env.newReport(t)
	tl, err := env.Reader.CurrentTimeline(ctx)
	if err != nil {
		collaboratorItem(b, "timeline", err)
		return b.Finalize(), nil
	}

	tasks := TaskList{Timeline: tl.Name, Tasks: []Task{}}
	n := 0
	for _, line := range strings.Split(strings.ReplaceAll(string(text), "\r\n", "\n"), "\n") {
		note := strings.TrimSpace(line)
		if note == "" || strings.HasPrefix(note, "#") {
			continue
		}
		n++
		entity := fmt.Sprintf("note %d", n)
		tc, ok := timecode.Find(note)
		if !ok {
			_ = b.Add(report.Item{Entity: entity, Severity: report.SeveritySkipped, Category: "feedback",
				Detail: note, Outcome: report.Skipped("no timecode found in note")})
			continue
		}
		frame, err := timecode.ToFrames(tc, tl.FPS)
		if err != nil {
			_ = b.Add(report.Item{Entity: entity, Severity: report.SeverityWarning, Category: "feedback",
				Detail: note, Outcome: report.NeedsManualReview(err.Error())})
			continue
		}
		// Notes may quote record timecode or an offset from the first frame.
		if frame < tl.StartFrame {
			frame += tl.StartFrame
		}

		pattern, _ := match.FirstPattern(note, patterns)
		color := opts.DefaultColor
		if pattern != "" {
			color = colors[pattern]
		}
		task := Task{
			ID:       fmt.Sprintf("task-%03d", n),
			Timecode: timecode.FromFrames(frame, tl.FPS),
			Note:     note,
			Color:    color,
			Clip:     clipAt(tl, frame),
			Status:   taskOpen,
		}
		if st, ok := prior[taskKey(task)]; ok {
			task.Status = st
		}
		tasks.Tasks = append(tasks.Tasks, task)

		item := report.Item{
			Entity:   entity,
			Severity: report.SeverityOK,
			Category: "feedback",
			Timeline: tl.Name,
			Clip:     task.Clip,
			Timecode: task.Timecode,
			Detail:   note,
			Data:     map[string]string{"task_id": task.ID, "color": color, "status": task.Status},
		}
		if task.Status == taskDone {
			item.Severity = report.SeveritySkipped
			item.Outcome = report.Skipped("task already done")
			_ = b.Add(item)
			continue
		}
		_ = b.Add(item)
		if addMarkers {
			m := resolve.Marker{Frame: frame, Color: color, Name: task.ID, Note: note}
			if err := placeMarker(ctx, env, b, tl, m); err != nil {
				return nil, err
			}
		}
	}

	if opts.TasksOutput != "" {
		out, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := safeio.WriteFileAtomic(opts.TasksOutput, append(out, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("write tasks: %w", err)
		}
		_ = b.SetMeta("tasks_output", opts.TasksOutput)
	}
	_ = b.SetMeta("tasks", strconv.Itoa(len(tasks.Tasks)))
	return b.Finalize(), nil
}

func taskKey(t Task) string { return t.Timecode + "|" + t.Note }

func loadPriorTasks(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	data, err := safeio.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prior tasks: %w", err)
	}
	var prior TaskList
	if err := json.Unmarshal(data, &prior); err != nil {
		return nil, fmt.Errorf("parse prior tasks %s: %w", path, err)
	}
	for _, t := range prior.Tasks {
		out[taskKey(t)] = t.Status
	}
	return out, nil
}

// clipAt names the topmost video clip under frame.
func clipAt(tl *resolve.Timeline, frame int) string {
	for i := len(tl.VideoTracks) - 1; i >= 0; i-- {
		for _, it := range tl.VideoTracks[i].Items {
			if it.Start <= frame && frame <= it.End {
				return it.Name
			}
		}
	}
	return ""
}
