package resolve

// Snapshot is a serializable picture of the editing application's state: the
// projects it knows about and which one is open.
type Snapshot struct {
	CurrentProject string    `json:"current_project,omitempty" yaml:"current_project,omitempty"`
	Projects       []Project `json:"projects" yaml:"projects"`
}

// Project holds the timelines and media pool of one project.
type Project struct {
	Name            string      `json:"name" yaml:"name"`
	CurrentTimeline string      `json:"current_timeline,omitempty" yaml:"current_timeline,omitempty"`
	Timelines       []Timeline  `json:"timelines,omitempty" yaml:"timelines,omitempty"`
	MediaPool       []MediaItem `json:"media_pool,omitempty" yaml:"media_pool,omitempty"`
}

// Timeline is an edit with its settings, tracks and markers.
type Timeline struct {
	Name           string   `json:"name" yaml:"name"`
	FPS            float64  `json:"fps" yaml:"fps"`
	Width          int      `json:"width" yaml:"width"`
	Height         int      `json:"height" yaml:"height"`
	StartFrame     int      `json:"start_frame" yaml:"start_frame"`
	EndFrame       int      `json:"end_frame" yaml:"end_frame"`
	VideoTracks    []Track  `json:"video_tracks,omitempty" yaml:"video_tracks,omitempty"`
	AudioTracks    []Track  `json:"audio_tracks,omitempty" yaml:"audio_tracks,omitempty"`
	SubtitleTracks []Track  `json:"subtitle_tracks,omitempty" yaml:"subtitle_tracks,omitempty"`
	Markers        []Marker `json:"markers,omitempty" yaml:"markers,omitempty"`
}

// Track is one video, audio or subtitle track. Tracks are 1-based in the UI;
// slices here are 0-based.
type Track struct {
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Disabled bool           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Items    []TimelineItem `json:"items,omitempty" yaml:"items,omitempty"`
}

// TimelineItem is a clip placed on a track. Start and End are timeline frames.
type TimelineItem struct {
	Name     string `json:"name" yaml:"name"`
	MediaID  string `json:"media_id,omitempty" yaml:"media_id,omitempty"`
	Start    int    `json:"start" yaml:"start"`
	End      int    `json:"end" yaml:"end"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Transform carries zoom/pan/position/rotation values that scripting can
	// read but not reliably set.
	Transform map[string]string `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// Marker is a timeline marker.
type Marker struct {
	Frame    int    `json:"frame" yaml:"frame"`
	Color    string `json:"color" yaml:"color"`
	Name     string `json:"name" yaml:"name"`
	Note     string `json:"note,omitempty" yaml:"note,omitempty"`
	Duration int    `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// MediaItem is a media pool clip.
type MediaItem struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	FileName   string            `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	Path       string            `json:"path,omitempty" yaml:"path,omitempty"`
	Folder     string            `json:"folder,omitempty" yaml:"folder,omitempty"`
	Resolution string            `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	FPS        float64           `json:"fps,omitempty" yaml:"fps,omitempty"`
	Offline    bool              `json:"offline,omitempty" yaml:"offline,omitempty"`
	ClipColor  string            `json:"clip_color,omitempty" yaml:"clip_color,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// DisplayName is the file name when known, else the clip name.
func (m MediaItem) DisplayName() string {
	if m.FileName != "" {
		return m.FileName
	}
	return m.Name
}

// Resolution formats the timeline size as "WxH".
func (t *Timeline) Resolution() string {
	return itoa(t.Width) + "x" + itoa(t.Height)
}

// DurationSeconds is the timeline length in seconds, 0 when fps is unknown.
func (t *Timeline) DurationSeconds() float64 {
	if t.FPS <= 0 || t.EndFrame <= t.StartFrame {
		return 0
	}
	return float64(t.EndFrame-t.StartFrame) / t.FPS
}

// Tracks returns the tracks of a kind: "video", "audio" or "subtitle".
func (t *Timeline) Tracks(kind string) []Track {
	switch kind {
	case "video":
		return t.VideoTracks
	case "audio":
		return t.AudioTracks
	case "subtitle":
		return t.SubtitleTracks
	}
	return nil
}

// ItemsNamed returns every item on any track whose name equals name.
func (t *Timeline) ItemsNamed(name string) []TimelineItem {
	var out []TimelineItem
	for _, kind := range []string{"video", "audio", "subtitle"} {
		for _, tr := range t.Tracks(kind) {
			for _, it := range tr.Items {
				if it.Name == name {
					out = append(out, it)
				}
			}
		}
	}
	return out
}

// ItemsAt returns every item on any track that covers frame.
func (t *Timeline) ItemsAt(frame int) []TimelineItem {
	var out []TimelineItem
	for _, kind := range []string{"video", "audio", "subtitle"} {
		for _, tr := range t.Tracks(kind) {
			for _, it := range tr.Items {
				if it.Start <= frame && frame <= it.End {
					out = append(out, it)
				}
			}
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}
