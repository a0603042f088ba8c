package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// Call is one mutating call recorded by Memory.
type Call struct {
	Op   string
	Args []string
}

// Memory is an in-process object model backed by a Snapshot. It records every
// mutating call and can be told to fail specific operations.
type Memory struct {
	mu       sync.Mutex
	snap     Snapshot
	calls    []Call
	failures map[string]error
}

var _ Session = (*Memory)(nil)

// NewMemory returns a Memory holding a deep copy of snap. When snap names no
// current project the first one is opened.
func NewMemory(snap Snapshot) *Memory {
	m := &Memory{snap: cloneSnapshot(snap), failures: map[string]error{}}
	if m.snap.CurrentProject == "" && len(m.snap.Projects) > 0 {
		m.snap.CurrentProject = m.snap.Projects[0].Name
	}
	return m
}

// Snapshot returns a deep copy of the current state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap)
}

// Calls returns the mutating calls made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// FailOn makes every later call to op return err wrapped in a CallError.
// Passing a nil err clears the failure.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) fail(op string) error {
	if err, ok := m.failures[op]; ok {
		return &CallError{Op: op, Err: err}
	}
	return nil
}

func (m *Memory) project() (*Project, error) {
	if m.snap.CurrentProject == "" {
		return nil, ErrNoProject
	}
	for i := range m.snap.Projects {
		if m.snap.Projects[i].Name == m.snap.CurrentProject {
			return &m.snap.Projects[i], nil
		}
	}
	return nil, ErrNoProject
}

func (p *Project) timeline(name string) *Timeline {
	for i := range p.Timelines {
		if p.Timelines[i].Name == name {
			return &p.Timelines[i]
		}
	}
	return nil
}

func (p *Project) media(id string) *MediaItem {
	for i := range p.MediaPool {
		if p.MediaPool[i].ID == id {
			return &p.MediaPool[i]
		}
	}
	return nil
}

// Projects lists project names in snapshot order.
func (m *Memory) Projects(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Projects"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.snap.Projects))
	for _, p := range m.snap.Projects {
		names = append(names, p.Name)
	}
	return names, nil
}

// OpenProject makes name the open project.
func (m *Memory) OpenProject(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("OpenProject"); err != nil {
		return err
	}
	for _, p := range m.snap.Projects {
		if p.Name == name {
			m.snap.CurrentProject = name
			return nil
		}
	}
	return fmt.Errorf("project %q: %w", name, ErrNotFound)
}

func (m *Memory) ProjectName(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ProjectName"); err != nil {
		return "", err
	}
	p, err := m.project()
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

func (m *Memory) CurrentTimeline(_ context.Context) (*Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CurrentTimeline"); err != nil {
		return nil, err
	}
	p, err := m.project()
	if err != nil {
		return nil, err
	}
	if p.CurrentTimeline == "" {
		return nil, ErrNoTimeline
	}
	tl := p.timeline(p.CurrentTimeline)
	if tl == nil {
		return nil, ErrNoTimeline
	}
	c := cloneTimeline(*tl)
	return &c, nil
}

func (m *Memory) Timeline(_ context.Context, name string) (*Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Timeline"); err != nil {
		return nil, err
	}
	p, err := m.project()
	if err != nil {
		return nil, err
	}
	tl := p.timeline(name)
	if tl == nil {
		return nil, fmt.Errorf("timeline %q: %w", name, ErrNotFound)
	}
	c := cloneTimeline(*tl)
	return &c, nil
}

func (m *Memory) TimelineNames(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TimelineNames"); err != nil {
		return nil, err
	}
	p, err := m.project()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(p.Timelines))
	for _, tl := range p.Timelines {
		names = append(names, tl.Name)
	}
	return names, nil
}

func (m *Memory) MediaPool(_ context.Context) ([]MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MediaPool"); err != nil {
		return nil, err
	}
	p, err := m.project()
	if err != nil {
		return nil, err
	}
	out := make([]MediaItem, 0, len(p.MediaPool))
	for _, it := range p.MediaPool {
		out = append(out, cloneMedia(it))
	}
	return out, nil
}

// ReplaceClip points the clip at newPath. Timeline items and the clip name
// follow the file name when they were named after the old file.
func (m *Memory) ReplaceClip(_ context.Context, mediaID, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "ReplaceClip", Args: []string{mediaID, newPath}})
	if err := m.fail("ReplaceClip"); err != nil {
		return err
	}
	p, err := m.project()
	if err != nil {
		return err
	}
	clip := p.media(mediaID)
	if clip == nil {
		return &CallError{Op: "ReplaceClip", Err: fmt.Errorf("clip %q: %w", mediaID, ErrNotFound)}
	}
	oldName := clip.DisplayName()
	newName := filepath.Base(newPath)
	if clip.Name == oldName {
		clip.Name = newName
	}
	clip.FileName = newName
	clip.Path = newPath
	clip.Offline = false
	for ti := range p.Timelines {
		tl := &p.Timelines[ti]
		for _, tracks := range [][]Track{tl.VideoTracks, tl.AudioTracks} {
			for k := range tracks {
				for j := range tracks[k].Items {
					it := &tracks[k].Items[j]
					if it.MediaID == mediaID && it.Name == oldName {
						it.Name = newName
					}
				}
			}
		}
	}
	return nil
}

// AddMarker refuses a second marker on an occupied frame, as the host does.
func (m *Memory) AddMarker(_ context.Context, timeline string, mk Marker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "AddMarker", Args: []string{timeline, itoa(mk.Frame), mk.Color, mk.Name}})
	if err := m.fail("AddMarker"); err != nil {
		return err
	}
	p, err := m.project()
	if err != nil {
		return err
	}
	tl := p.timeline(timeline)
	if tl == nil {
		return &CallError{Op: "AddMarker", Err: fmt.Errorf("timeline %q: %w", timeline, ErrNotFound)}
	}
	for _, existing := range tl.Markers {
		if existing.Frame == mk.Frame {
			return &CallError{Op: "AddMarker", Err: fmt.Errorf("frame %d already has a marker", mk.Frame)}
		}
	}
	tl.Markers = append(tl.Markers, mk)
	slices.SortStableFunc(tl.Markers, func(a, b Marker) int { return a.Frame - b.Frame })
	return nil
}

func (m *Memory) DuplicateTimeline(_ context.Context, source, name string) (*Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "DuplicateTimeline", Args: []string{source, name}})
	if err := m.fail("DuplicateTimeline"); err != nil {
		return nil, err
	}
	p, err := m.project()
	if err != nil {
		return nil, err
	}
	src := p.timeline(source)
	if src == nil {
		return nil, &CallError{Op: "DuplicateTimeline", Err: fmt.Errorf("timeline %q: %w", source, ErrNotFound)}
	}
	if p.timeline(name) != nil {
		return nil, &CallError{Op: "DuplicateTimeline", Err: fmt.Errorf("timeline %q already exists", name)}
	}
	dup := cloneTimeline(*src)
	dup.Name = name
	p.Timelines = append(p.Timelines, dup)
	out := cloneTimeline(dup)
	return &out, nil
}

func (m *Memory) SetCurrentTimeline(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "SetCurrentTimeline", Args: []string{name}})
	if err := m.fail("SetCurrentTimeline"); err != nil {
		return err
	}
	p, err := m.project()
	if err != nil {
		return err
	}
	if p.timeline(name) == nil {
		return &CallError{Op: "SetCurrentTimeline", Err: fmt.Errorf("timeline %q: %w", name, ErrNotFound)}
	}
	p.CurrentTimeline = name
	return nil
}

func (m *Memory) SetClipColor(_ context.Context, mediaID, color string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "SetClipColor", Args: []string{mediaID, color}})
	if err := m.fail("SetClipColor"); err != nil {
		return err
	}
	p, err := m.project()
	if err != nil {
		return err
	}
	clip := p.media(mediaID)
	if clip == nil {
		return &CallError{Op: "SetClipColor", Err: fmt.Errorf("clip %q: %w", mediaID, ErrNotFound)}
	}
	clip.ClipColor = color
	return nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{CurrentProject: s.CurrentProject}
	if s.Projects != nil {
		out.Projects = make([]Project, len(s.Projects))
		for i, p := range s.Projects {
			out.Projects[i] = cloneProject(p)
		}
	}
	return out
}

func cloneProject(p Project) Project {
	out := p
	out.Timelines = nil
	out.MediaPool = nil
	for _, tl := range p.Timelines {
		out.Timelines = append(out.Timelines, cloneTimeline(tl))
	}
	for _, it := range p.MediaPool {
		out.MediaPool = append(out.MediaPool, cloneMedia(it))
	}
	return out
}

func cloneTimeline(t Timeline) Timeline {
	out := t
	out.VideoTracks = cloneTracks(t.VideoTracks)
	out.AudioTracks = cloneTracks(t.AudioTracks)
	out.SubtitleTracks = cloneTracks(t.SubtitleTracks)
	out.Markers = slices.Clone(t.Markers)
	return out
}

func cloneTracks(tracks []Track) []Track {
	if tracks == nil {
		return nil
	}
	out := make([]Track, len(tracks))
	for i, tr := range tracks {
		out[i] = tr
		if tr.Items != nil {
			out[i].Items = make([]TimelineItem, len(tr.Items))
			for j, it := range tr.Items {
				it.Transform = cloneMap(it.Transform)
				out[i].Items[j] = it
			}
		}
	}
	return out
}

func cloneMedia(m MediaItem) MediaItem {
	m.Properties = cloneMap(m.Properties)
	return m
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
