package pack

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/rpsuite/pkg/ignore"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for pack files that are not JSON, YAML or TOML.
var ErrUnsupportedFormat = errors.New("unsupported pack format")

// DiscoverPattern matches pack files below a packs directory.
const DiscoverPattern = "**/*.{json,yaml,yml,toml}"

// Decode parses pack file contents according to the file extension.
func Decode(name string, data []byte) (any, error) {
	var doc any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s as JSON: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s as YAML: %w", name, err)
		}
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s as TOML: %w", name, err)
		}
		doc = m
	default:
		return nil, fmt.Errorf("%w %q (expected .json, .yaml, .yml or .toml)", ErrUnsupportedFormat, filepath.Ext(name))
	}
	return doc, nil
}

// Load reads, parses and validates a pack file.
func Load(path string, expected Kind) (*Pack, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack %s: %w", path, err)
	}
	doc, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	p, err := Validate(doc, expected)
	if err != nil {
		var vf *ValidationFailure
		if errors.As(err, &vf) {
			vf.Source = path
		}
		return nil, err
	}
	p.Source = path
	return p, nil
}

// Detect guesses the kind of a parsed document from its kind field or its
// distinguishing top-level key.
func Detect(document any) (Kind, bool) {
	m, ok := document.(map[string]any)
	if !ok {
		return "", false
	}
	if s, ok := m["kind"].(string); ok {
		if k, err := ParseKind(s); err == nil {
			return k, true
		}
		return "", false
	}
	switch {
	case m["mappings"] != nil:
		return KindMapping, true
	case m["platforms"] != nil:
		return KindDelivery, true
	case m["colors"] != nil || m["fonts"] != nil:
		return KindBrand, true
	}
	return "", false
}

// LoadAny loads a pack whose kind is detected from its content.
func LoadAny(path string) (*Pack, error) {
	data, err := safeio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack %s: %w", path, err)
	}
	doc, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	kind, ok := Detect(doc)
	if !ok {
		return nil, &ValidationFailure{Source: path, Violations: []Violation{{Reason: "cannot determine pack kind; set the kind field"}}}
	}
	return Load(path, kind)
}

// Discover lists pack files under dir, sorted. A missing dir yields no files.
// Hidden entries and paths excluded by .gitignore or .rpsignore files are skipped.
func Discover(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	matches, err := doublestar.Glob(os.DirFS(dir), DiscoverPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("discover packs in %s: %w", dir, err)
	}
	ign, err := ignore.NewMatcher(dir)
	if err != nil {
		return nil, fmt.Errorf("read ignore files in %s: %w", dir, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if isHidden(m) || ign.IsIgnored(m) {
			continue
		}
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
