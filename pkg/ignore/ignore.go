// Package ignore provides gitignore-based file filtering using go-git
package ignore

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the rpsuite-specific ignore file read from a scanned root.
const FileName = ".rpsignore"

// Matcher provides gitignore-based file filtering below one root directory.
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher for root with layered patterns:
// 1. .gitignore files anywhere below root (foundation)
// 2. <root>/.rpsignore (overrides)
//
// Later patterns win, so a "!keep.yaml" line in .rpsignore re-includes a file
// a .gitignore excluded.
func NewMatcher(root string) (*Matcher, error) {
	var patterns []gitignore.Pattern

	// ReadPatterns walks root and reads every .gitignore it finds
	gitPatterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	patterns = append(patterns, gitPatterns...)

	lines, err := readIgnoreFile(filepath.Join(root, FileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, line := range lines {
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	return &Matcher{root: root, matcher: gitignore.NewMatcher(patterns)}, nil
}

// readIgnoreFile returns the non-empty, non-comment lines of an ignore file.
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- fixed file name under the scanned root
	if err != nil {
		return nil, err
	}
	var patterns []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, sc.Err()
}

// IsIgnored reports whether the file at rel (relative to the root, any
// separator) is excluded.
func (m *Matcher) IsIgnored(rel string) bool {
	return m.match(rel, false)
}

// IsIgnoredDir reports whether the directory at rel is excluded.
func (m *Matcher) IsIgnoredDir(rel string) bool {
	return m.match(rel, true)
}

func (m *Matcher) match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(m.root, rel)
		if err != nil {
			return false
		}
		rel = r
	}
	parts := splitPath(filepath.ToSlash(rel))
	if len(parts) == 0 {
		return false
	}
	// A file below an ignored directory is ignored too.
	for i := 1; i < len(parts); i++ {
		if m.matcher.Match(parts[:i], true) {
			return true
		}
	}
	return m.matcher.Match(parts, isDir)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return []string{}
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
