package tools

// Limitation is a known gap in what the object model exposes.
type Limitation struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

const (
	LimitClipTransform    = "clip_transform"
	LimitFusionGraph      = "fusion_graph"
	LimitSubtitleGeometry = "subtitle_geometry"
	LimitRenderSettings   = "render_settings"
	LimitUINavigation     = "ui_navigation"
)

var limitations = []Limitation{
	{LimitClipTransform, "Clip transforms cannot be reliably read or modified on every page; adjust framing manually when warned."},
	{LimitFusionGraph, "Fusion node graphs are not fully accessible; component propagation relies on naming conventions and manual verification."},
	{LimitSubtitleGeometry, "Subtitle bounding boxes are not exposed; caption-safe checks use heuristic safe zones."},
	{LimitRenderSettings, "Some render settings are locked or unavailable to scripting; confirm them against the generated manifest."},
	{LimitUINavigation, "Programmatic selection and jumping is limited; reports carry timecode and clip name for manual navigation."},
}

// Limitations returns the limitation table in a fixed order.
func Limitations() []Limitation {
	return append([]Limitation(nil), limitations...)
}

// LimitationText returns the text for key, or "" when key is unknown.
func LimitationText(key string) string {
	for _, l := range limitations {
		if l.Key == key {
			return l.Text
		}
	}
	return ""
}
