package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/rpsuite/internal/assets"
)

// Format is a report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// ErrUnsupportedFormat is returned for report encodings other than json, csv and html.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Formats lists every encoding in the order WriteAll produces them.
func Formats() []Format { return []Format{FormatJSON, FormatCSV, FormatHTML} }

// ParseFormat maps a name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("%w %q (expected json, csv or html)", ErrUnsupportedFormat, s)
}

// CSVHeader is the fixed CSV column order.
var CSVHeader = []string{"index", "entity", "severity", "outcome", "reason", "category", "timeline", "clip", "timecode", "detail", "data"}

// Render encodes r in the requested format.
func Render(r *Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(r)
	case FormatCSV:
		return renderCSV(r)
	case FormatHTML:
		return renderHTML(r)
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
}

func renderJSON(r *Report) ([]byte, error) {
	out := *r
	if out.Items == nil {
		out.Items = []Item{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a canonical JSON report.
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report JSON: %w", err)
	}
	if r.ToolID == "" {
		return nil, fmt.Errorf("decode report JSON: missing tool_id")
	}
	return &r, nil
}

func renderCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, it := range r.Items {
		row := []string{
			strconv.Itoa(it.Index),
			it.Entity,
			string(it.Severity),
			string(it.Outcome.Kind),
			it.Outcome.Reason,
			it.Category,
			it.Timeline,
			it.Clip,
			it.Timecode,
			it.Detail,
			FlattenData(it.Data),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode report CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode report CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// FlattenData renders a data map as "k=v; k=v" with sorted keys.
func FlattenData(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + data[k]
	}
	return strings.Join(parts, "; ")
}

// Template data for report.html.hbs. Field names are referenced verbatim.
type htmlData struct {
	Title     string
	ToolID    string
	RunID     string
	CreatedAt string
	DryRun    bool
	Summary   Summary
	Groups    []htmlGroup
	JSON      string
}

type htmlGroup struct {
	Severity string
	Count    int
	Items    []htmlItem
}

type htmlItem struct {
	Index    int
	Entity   string
	Severity string
	Outcome  string
	Reason   string
	Timeline string
	Clip     string
	Timecode string
	Detail   string
	Data     string
}

var (
	htmlOnce     sync.Once
	htmlTemplate *raymond.Template
	htmlErr      error
)

func reportTemplate() (*raymond.Template, error) {
	htmlOnce.Do(func() {
		src, err := assets.GetTemplate("report.html.hbs")
		if err != nil {
			htmlErr = fmt.Errorf("load report template: %w", err)
			return
		}
		htmlTemplate, htmlErr = raymond.Parse(string(src))
	})
	return htmlTemplate, htmlErr
}

// renderHTML always goes through the canonical JSON so the markup shows
// exactly what the JSON file holds.
func renderHTML(r *Report) ([]byte, error) {
	jsonData, err := renderJSON(r)
	if err != nil {
		return nil, err
	}
	decoded, err := Decode(jsonData)
	if err != nil {
		return nil, err
	}

	data := htmlData{
		Title:     decoded.Title,
		ToolID:    decoded.ToolID,
		RunID:     decoded.RunID,
		CreatedAt: decoded.CreatedAt.Format(time.RFC3339),
		DryRun:    decoded.DryRun,
		Summary:   decoded.Summary,
		JSON:      strings.TrimSpace(string(jsonData)),
	}
	if data.Title == "" {
		data.Title = decoded.ToolID + " report"
	}

	for _, sev := range Severities() {
		var group htmlGroup
		for _, it := range decoded.Items {
			if it.Severity != sev {
				continue
			}
			group.Items = append(group.Items, htmlItem{
				Index:    it.Index,
				Entity:   it.Entity,
				Severity: string(it.Severity),
				Outcome:  string(it.Outcome.Kind),
				Reason:   it.Outcome.Reason,
				Timeline: it.Timeline,
				Clip:     it.Clip,
				Timecode: it.Timecode,
				Detail:   it.Detail,
				Data:     FlattenData(it.Data),
			})
		}
		if len(group.Items) == 0 {
			continue
		}
		group.Severity = string(sev)
		group.Count = len(group.Items)
		data.Groups = append(data.Groups, group)
	}

	tpl, err := reportTemplate()
	if err != nil {
		return nil, err
	}
	out, err := tpl.Exec(data)
	if err != nil {
		return nil, fmt.Errorf("render report HTML: %w", err)
	}
	return []byte(out), nil
}
