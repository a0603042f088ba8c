// Package resolve is the seam between the tools and the editing application's
// object model. Tools read through Reader and change state only through
// Mutator, so a dry run can be handed a Reader alone.
package resolve

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoProject is returned when no project is open.
	ErrNoProject = errors.New("no project is open")
	// ErrNoTimeline is returned when the open project has no current timeline.
	ErrNoTimeline = errors.New("no current timeline")
	// ErrNotFound is returned when a named timeline, project or clip does not exist.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned when a snapshot format cannot be written back.
	ErrReadOnly = errors.New("snapshot format is read-only")
	// ErrUnsupportedFormat is returned for snapshot files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
)

// CallError reports a failed call into the object model.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Reader answers read-only queries about the open project.
type Reader interface {
	// ProjectName returns the open project's name.
	ProjectName(ctx context.Context) (string, error)
	// CurrentTimeline returns a copy of the current timeline.
	CurrentTimeline(ctx context.Context) (*Timeline, error)
	// Timeline returns a copy of the named timeline.
	Timeline(ctx context.Context, name string) (*Timeline, error)
	// TimelineNames lists the project's timelines in project order.
	TimelineNames(ctx context.Context) ([]string, error)
	// MediaPool returns copies of every media pool clip.
	MediaPool(ctx context.Context) ([]MediaItem, error)
}

// Mutator changes the open project. Every method is a single observable
// state change.
type Mutator interface {
	// ReplaceClip relinks the media pool clip to a new file.
	ReplaceClip(ctx context.Context, mediaID, newPath string) error
	// AddMarker adds a marker to the named timeline.
	AddMarker(ctx context.Context, timeline string, m Marker) error
	// DuplicateTimeline copies source under a new name and returns the copy.
	DuplicateTimeline(ctx context.Context, source, name string) (*Timeline, error)
	// SetCurrentTimeline switches the current timeline.
	SetCurrentTimeline(ctx context.Context, name string) error
	// SetClipColor sets a media pool clip's color label.
	SetClipColor(ctx context.Context, mediaID, color string) error
}

// ProjectManager lists and opens projects. Batch tools use it to visit
// several projects in one run.
type ProjectManager interface {
	Projects(ctx context.Context) ([]string, error)
	OpenProject(ctx context.Context, name string) error
}

// Session is the full object model surface.
type Session interface {
	Reader
	Mutator
	ProjectManager
}

// FindByName returns the media pool clips whose clip or file name equals name.
func FindByName(items []MediaItem, name string) []MediaItem {
	var out []MediaItem
	for _, it := range items {
		if it.Name == name || it.FileName == name {
			out = append(out, it)
		}
	}
	return out
}

// ByID returns the media pool clip with the given id.
func ByID(items []MediaItem, id string) (MediaItem, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return MediaItem{}, false
}
