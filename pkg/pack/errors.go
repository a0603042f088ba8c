package pack

import (
	"fmt"
	"strings"
)

// Violation is a single problem found in a pack document.
type Violation struct {
	// Path locates the offending value, e.g. "mappings[3].old_asset". Empty
	// means the document root.
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return "(root): " + v.Reason
	}
	return v.Path + ": " + v.Reason
}

// ValidationFailure reports every violation found in a pack document.
type ValidationFailure struct {
	Kind       Kind        `json:"kind"`
	Version    string      `json:"schema_version,omitempty"`
	Source     string      `json:"source,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationFailure) Error() string {
	var b strings.Builder
	subject := string(e.Kind) + " pack"
	if e.Source != "" {
		subject += " " + e.Source
	}
	fmt.Fprintf(&b, "%s failed validation with %d violation(s)", subject, len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}

func failure(kind Kind, version string, violations ...Violation) *ValidationFailure {
	return &ValidationFailure{Kind: kind, Version: version, Violations: violations}
}
