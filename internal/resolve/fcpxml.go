package resolve

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

type fcpFormat struct {
	fps           float64
	width, height int
}

// clipTags are spine and lane elements that become timeline items.
var clipTags = map[string]bool{
	"asset-clip": true,
	"clip":       true,
	"video":      true,
	"audio":      true,
	"title":      true,
	"ref-clip":   true,
	"sync-clip":  true,
	"mc-clip":    true,
}

// ImportFCPXML reads an FCPXML interchange document into a project: its assets
// become the media pool and every <project> becomes a timeline. The first
// timeline is current.
func ImportFCPXML(r io.Reader, name string) (Project, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return Project{}, fmt.Errorf("parse fcpxml: %w", err)
	}
	root := doc.SelectElement("fcpxml")
	if root == nil {
		return Project{}, fmt.Errorf("parse fcpxml: missing <fcpxml> root element")
	}

	formats := map[string]fcpFormat{}
	for _, f := range root.FindElements("./resources/format") {
		var ff fcpFormat
		if d, err := parseFCPTime(f.SelectAttrValue("frameDuration", "")); err == nil && d > 0 {
			ff.fps = math.Round(1/d*1000) / 1000
		}
		ff.width, _ = strconv.Atoi(f.SelectAttrValue("width", "0"))
		ff.height, _ = strconv.Atoi(f.SelectAttrValue("height", "0"))
		formats[f.SelectAttrValue("id", "")] = ff
	}

	proj := Project{Name: name}
	for _, a := range root.FindElements("./resources/asset") {
		proj.MediaPool = append(proj.MediaPool, assetToMedia(a, formats))
	}

	for _, p := range root.FindElements("//project") {
		seq := p.SelectElement("sequence")
		if seq == nil {
			continue
		}
		tl, err := sequenceToTimeline(p.SelectAttrValue("name", ""), seq, formats)
		if err != nil {
			return Project{}, err
		}
		proj.Timelines = append(proj.Timelines, tl)
	}
	if proj.Name == "" {
		if ev := root.FindElement("//event"); ev != nil {
			proj.Name = ev.SelectAttrValue("name", "")
		}
	}
	if len(proj.Timelines) > 0 {
		proj.CurrentTimeline = proj.Timelines[0].Name
	}
	return proj, nil
}

func assetToMedia(a *etree.Element, formats map[string]fcpFormat) MediaItem {
	src := a.SelectAttrValue("src", "")
	if src == "" {
		if rep := a.SelectElement("media-rep"); rep != nil {
			src = rep.SelectAttrValue("src", "")
		}
	}
	filePath := src
	if u, err := url.Parse(src); err == nil && u.Scheme == "file" {
		filePath = u.Path
	}
	item := MediaItem{
		ID:      a.SelectAttrValue("id", ""),
		Name:    a.SelectAttrValue("name", ""),
		Path:    filePath,
		Offline: src == "",
	}
	if filePath != "" {
		item.FileName = path.Base(filePath)
	}
	if f, ok := formats[a.SelectAttrValue("format", "")]; ok {
		if f.width > 0 && f.height > 0 {
			item.Resolution = fmt.Sprintf("%dx%d", f.width, f.height)
		}
		item.FPS = f.fps
	}
	if kw := a.SelectElement("keyword"); kw != nil {
		item.Properties = map[string]string{"Keywords": kw.SelectAttrValue("value", "")}
	}
	return item
}

type laneItems struct {
	video map[int][]TimelineItem
	audio map[int][]TimelineItem
}

func sequenceToTimeline(name string, seq *etree.Element, formats map[string]fcpFormat) (Timeline, error) {
	f := formats[seq.SelectAttrValue("format", "")]
	tl := Timeline{Name: name, FPS: f.fps, Width: f.width, Height: f.height}
	if tl.FPS <= 0 {
		return Timeline{}, fmt.Errorf("parse fcpxml: sequence %q has no usable frame rate", name)
	}
	tcStart, err := parseFCPTime(seq.SelectAttrValue("tcStart", "0s"))
	if err != nil {
		return Timeline{}, fmt.Errorf("parse fcpxml: sequence %q tcStart: %w", name, err)
	}
	dur, err := parseFCPTime(seq.SelectAttrValue("duration", "0s"))
	if err != nil {
		return Timeline{}, fmt.Errorf("parse fcpxml: sequence %q duration: %w", name, err)
	}
	tl.StartFrame = toFrames(tcStart, tl.FPS)
	tl.EndFrame = toFrames(tcStart+dur, tl.FPS)

	lanes := laneItems{video: map[int][]TimelineItem{}, audio: map[int][]TimelineItem{}}
	if spine := seq.SelectElement("spine"); spine != nil {
		for _, child := range spine.ChildElements() {
			walkClip(child, 0, 0, 0, &tl, &lanes)
		}
	}
	tl.VideoTracks = assembleTracks(lanes.video, "V")
	tl.AudioTracks = assembleTracks(lanes.audio, "A")
	sort.SliceStable(tl.Markers, func(i, j int) bool { return tl.Markers[i].Frame < tl.Markers[j].Frame })
	return tl, nil
}

// walkClip places e on the timeline. parentAbs and parentStart translate the
// element's offset from its parent's local time into sequence time.
func walkClip(e *etree.Element, parentAbs, parentStart float64, lane int, tl *Timeline, lanes *laneItems) {
	tag := e.Tag
	if tag != "gap" && !clipTags[tag] {
		return
	}
	offset, _ := parseFCPTime(e.SelectAttrValue("offset", "0s"))
	start, _ := parseFCPTime(e.SelectAttrValue("start", "0s"))
	dur, _ := parseFCPTime(e.SelectAttrValue("duration", "0s"))
	if l := e.SelectAttr("lane"); l != nil {
		lane, _ = strconv.Atoi(l.Value)
	}
	abs := parentAbs + (offset - parentStart)

	if tag != "gap" {
		item := TimelineItem{
			Name:     e.SelectAttrValue("name", ""),
			MediaID:  mediaRef(e),
			Start:    toFrames(abs, tl.FPS),
			End:      toFrames(abs+dur, tl.FPS) - 1,
			Disabled: e.SelectAttrValue("enabled", "1") == "0",
		}
		if t := e.SelectElement("adjust-transform"); t != nil {
			item.Transform = map[string]string{}
			for _, key := range []string{"position", "scale", "rotation", "anchor"} {
				if v := t.SelectAttrValue(key, ""); v != "" {
					item.Transform[key] = v
				}
			}
		}
		switch {
		case tag == "audio" || lane < 0:
			idx := 0
			if lane < 0 {
				idx = -lane - 1
			}
			lanes.audio[idx] = append(lanes.audio[idx], item)
		default:
			lanes.video[lane] = append(lanes.video[lane], item)
		}
	}

	for _, child := range e.ChildElements() {
		switch child.Tag {
		case "marker", "chapter-marker":
			ms, _ := parseFCPTime(child.SelectAttrValue("start", "0s"))
			md, _ := parseFCPTime(child.SelectAttrValue("duration", "0s"))
			color := "Blue"
			if child.Tag == "chapter-marker" {
				color = "Purple"
			}
			tl.Markers = append(tl.Markers, Marker{
				Frame:    toFrames(abs+(ms-start), tl.FPS),
				Color:    color,
				Name:     child.SelectAttrValue("value", ""),
				Note:     child.SelectAttrValue("note", ""),
				Duration: toFrames(md, tl.FPS),
			})
		default:
			if child.SelectAttr("lane") != nil {
				walkClip(child, abs, start, lane, tl, lanes)
			}
		}
	}
}

func mediaRef(e *etree.Element) string {
	if ref := e.SelectAttrValue("ref", ""); ref != "" {
		return ref
	}
	for _, tag := range []string{"video", "asset-clip", "audio"} {
		if inner := e.SelectElement(tag); inner != nil {
			if ref := inner.SelectAttrValue("ref", ""); ref != "" {
				return ref
			}
		}
	}
	return ""
}

func assembleTracks(byLane map[int][]TimelineItem, prefix string) []Track {
	if len(byLane) == 0 {
		return nil
	}
	top := 0
	for lane := range byLane {
		if lane > top {
			top = lane
		}
	}
	tracks := make([]Track, top+1)
	for i := range tracks {
		tracks[i].Name = prefix + strconv.Itoa(i+1)
		tracks[i].Items = byLane[i]
	}
	return tracks
}

// parseFCPTime parses rational seconds such as "1001/30000s", "10s" or "0s".
func parseFCPTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.HasSuffix(s, "s") {
		return 0, fmt.Errorf("invalid time value %q", s)
	}
	s = strings.TrimSuffix(s, "s")
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time value %q", s)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid time value %q", s)
	}
	return n / d, nil
}

func toFrames(seconds, fps float64) int {
	return int(math.Round(seconds * fps))
}
