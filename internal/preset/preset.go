// Package preset stores named option sets per tool under
// <presets_dir>/<tool_id>/<name>.json.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

var (
	// ErrNotFound is returned when a preset file does not exist.
	ErrNotFound = errors.New("preset not found")
	// ErrToolMismatch is returned when a preset was saved for another tool.
	ErrToolMismatch = errors.New("preset tool mismatch")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Preset is the on-disk document.
type Preset struct {
	ToolID  string          `json:"tool_id"`
	Name    string          `json:"name"`
	Options json.RawMessage `json:"options"`
}

func path(dir, toolID, name string) (string, error) {
	if !namePattern.MatchString(toolID) {
		return "", fmt.Errorf("invalid tool id %q", toolID)
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("invalid preset name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return filepath.Join(dir, toolID, name+".json"), nil
}

// Save writes options as the named preset for toolID and returns its path.
// Options must be a JSON object.
func Save(dir, toolID, name string, options json.RawMessage) (string, error) {
	p, err := path(dir, toolID, name)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(options))) == 0 {
		options = json.RawMessage("{}")
	}
	var obj map[string]any
	if err := json.Unmarshal(options, &obj); err != nil {
		return "", fmt.Errorf("preset options must be a JSON object: %w", err)
	}
	data, err := json.MarshalIndent(Preset{ToolID: toolID, Name: name, Options: options}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := safeio.WriteFileAtomic(p, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("save preset %s: %w", name, err)
	}
	return p, nil
}

// Load returns the options stored in the named preset.
func Load(dir, toolID, name string) (json.RawMessage, error) {
	p, err := path(dir, toolID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- name validated by namePattern
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, toolID, name)
		}
		return nil, fmt.Errorf("read preset: %w", err)
	}
	var pr Preset
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", p, err)
	}
	if pr.ToolID != "" && pr.ToolID != toolID {
		return nil, fmt.Errorf("%w: %s != %s", ErrToolMismatch, pr.ToolID, toolID)
	}
	if len(pr.Options) == 0 {
		return json.RawMessage("{}"), nil
	}
	return pr.Options, nil
}

// List returns the preset names saved for toolID, sorted.
func List(dir, toolID string) ([]string, error) {
	root := filepath.Join(dir, toolID)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), "*.json", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(m, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
