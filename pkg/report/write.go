package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

// RunIDLayout is the default run identifier layout (UTC).
const RunIDLayout = "20060102T150405Z"

// Paths holds the files written for one report.
type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	HTML string `json:"html"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BaseName returns "<tool_id>_<run_id>", falling back to the creation time
// when the report has no run id.
func BaseName(r *Report) string {
	runID := r.RunID
	if runID == "" {
		runID = r.CreatedAt.UTC().Format(RunIDLayout)
	}
	return unsafeName.ReplaceAllString(r.ToolID, "_") + "_" + unsafeName.ReplaceAllString(runID, "_")
}

// WriteAll renders r in every format and writes the files into dir. Each file
// is written atomically; a failure leaves earlier files in place and never a
// partial file at the target path.
func WriteAll(r *Report, dir string) (Paths, error) {
	var paths Paths
	base := filepath.Join(dir, BaseName(r))
	for _, f := range Formats() {
		data, err := Render(r, f)
		if err != nil {
			return paths, err
		}
		target := base + "." + string(f)
		if err := safeio.WriteFileAtomic(target, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s report: %w", f, err)
		}
		switch f {
		case FormatJSON:
			paths.JSON = target
		case FormatCSV:
			paths.CSV = target
		case FormatHTML:
			paths.HTML = target
		}
	}
	return paths, nil
}

// AggregateToolID is the tool id of merged reports.
const AggregateToolID = "aggregate"

// Merge concatenates the items of several reports in argument order. Each
// merged item records its source tool in Data["tool_id"].
func Merge(title string, reports ...*Report) *Report {
	out := &Report{ToolID: AggregateToolID, Title: title, Items: []Item{}, DryRun: len(reports) > 0}
	for _, r := range reports {
		if r.CreatedAt.After(out.CreatedAt) {
			out.CreatedAt = r.CreatedAt
		}
		out.DryRun = out.DryRun && r.DryRun
		for _, it := range r.Items {
			it.Index = len(out.Items)
			it.Data = maps.Clone(it.Data)
			if it.Data == nil {
				it.Data = map[string]string{}
			}
			it.Data["tool_id"] = r.ToolID
			out.Items = append(out.Items, it)
		}
	}
	out.Summary = Summarize(out.Items)
	out.Meta = map[string]string{"reports": strconv.Itoa(len(reports))}
	return out
}

var htmlRow = regexp.MustCompile(`<tr class="item" data-severity="([a-z_]+)" data-outcome="([a-z_]+)">`)

// Counts recomputes the summary from a rendered report, so callers can check
// that the three encodings agree.
func Counts(format Format, data []byte) (Summary, error) {
	var items []Item
	switch format {
	case FormatJSON:
		r, err := Decode(data)
		if err != nil {
			return Summary{}, err
		}
		items = r.Items
	case FormatCSV:
		rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			return Summary{}, fmt.Errorf("read report CSV: %w", err)
		}
		if len(rows) == 0 || strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
			return Summary{}, fmt.Errorf("read report CSV: unexpected header")
		}
		for _, row := range rows[1:] {
			items = append(items, Item{Severity: Severity(row[2]), Outcome: Outcome{Kind: OutcomeKind(row[3])}})
		}
	case FormatHTML:
		for _, m := range htmlRow.FindAllSubmatch(data, -1) {
			items = append(items, Item{Severity: Severity(m[1]), Outcome: Outcome{Kind: OutcomeKind(m[2])}})
		}
	default:
		return Summary{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
	return Summarize(items), nil
}
