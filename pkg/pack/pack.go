// Package pack loads and validates the declarative rule files (mapping, brand
// and delivery packs) that drive the tools.
package pack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies a pack family. Each kind has its own schema versions.
type Kind string

const (
	KindMapping  Kind = "mapping"
	KindBrand    Kind = "brand"
	KindDelivery Kind = "delivery"
)

// Kinds lists every supported pack kind in display order.
func Kinds() []Kind {
	return []Kind{KindMapping, KindBrand, KindDelivery}
}

// ParseKind maps a user supplied name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown pack kind %q (expected mapping, brand or delivery)", s)
}

// DefaultAspectTolerance applies when a mapping pack does not set aspect_tolerance.
const DefaultAspectTolerance = 0.05

// Pack is a validated, immutable pack. Exactly one of the payload pointers is
// set, matching Kind.
type Pack struct {
	Kind          Kind
	SchemaVersion string
	// Source is the file the pack was loaded from, empty for in-memory documents.
	Source string

	Mapping  *MappingPack
	Brand    *BrandPack
	Delivery *DeliveryPack
}

// MappingPack is an ordered list of asset replacement rules.
type MappingPack struct {
	Name            string         `json:"name,omitempty"`
	Description     string         `json:"description,omitempty"`
	Threshold       *float64       `json:"threshold,omitempty"`
	AspectTolerance *float64       `json:"aspect_tolerance,omitempty"`
	RootFolders     []string       `json:"root_folders,omitempty"`
	Mappings        []MappingEntry `json:"mappings"`
}

// MappingEntry replaces media matching OldAsset with NewAsset.
type MappingEntry struct {
	OldAsset           string   `json:"old_asset"`
	NewAsset           string   `json:"new_asset"`
	MatchStrategy      string   `json:"match_strategy"`
	Threshold          *float64 `json:"threshold,omitempty"`
	ExpectedResolution string   `json:"expected_resolution,omitempty"`
	ExpectedAspect     *float64 `json:"expected_aspect,omitempty"`
	Note               string   `json:"note,omitempty"`
}

// ThresholdFor resolves the threshold for an entry: entry, then pack, then fallback.
func (p *MappingPack) ThresholdFor(e MappingEntry, fallback float64) float64 {
	if e.Threshold != nil {
		return *e.Threshold
	}
	if p.Threshold != nil {
		return *p.Threshold
	}
	return fallback
}

// Tolerance returns the aspect ratio tolerance used for expected_aspect checks.
func (p *MappingPack) Tolerance() float64 {
	if p.AspectTolerance != nil {
		return *p.AspectTolerance
	}
	return DefaultAspectTolerance
}

// BrandPack describes the approved look and language of a brand.
type BrandPack struct {
	Name              string                      `json:"name"`
	Colors            []Color                     `json:"colors"`
	Fonts             []string                    `json:"fonts"`
	Logos             []Logo                      `json:"logos,omitempty"`
	Terminology       []Term                      `json:"terminology,omitempty"`
	CanonicalAssets   []string                    `json:"canonical_assets,omitempty"`
	BrandTokens       []string                    `json:"brand_tokens,omitempty"`
	LayoutConstraints map[string]LayoutConstraint `json:"layout_constraints,omitempty"`
}

type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

type Logo struct {
	Name       string `json:"name"`
	Asset      string `json:"asset"`
	MinWidthPx int    `json:"min_width_px,omitempty"`
}

// Term maps a discouraged term to the preferred wording.
type Term struct {
	Term          string `json:"term"`
	Preferred     string `json:"preferred"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// LayoutConstraint holds per-format framing rules used by the reframer.
type LayoutConstraint struct {
	SafeMargin      *float64 `json:"safe_margin,omitempty"`
	Anchor          string   `json:"anchor,omitempty"`
	KeepLogoVisible bool     `json:"keep_logo_visible,omitempty"`
}

// DeliveryPack holds per-platform delivery requirements.
type DeliveryPack struct {
	Name      string              `json:"name,omitempty"`
	Platforms map[string]Platform `json:"platforms"`
}

type Platform struct {
	Codec         string   `json:"codec"`
	Container     string   `json:"container,omitempty"`
	BitrateMbps   float64  `json:"bitrate_mbps,omitempty"`
	Resolution    string   `json:"resolution"`
	FPS           float64  `json:"fps"`
	DurationLimit float64  `json:"duration_limit,omitempty"`
	NamingTokens  []string `json:"naming_tokens,omitempty"`
	NamingPattern string   `json:"naming_pattern,omitempty"`
}

// PlatformNames returns the platform keys sorted.
func (p *DeliveryPack) PlatformNames() []string {
	names := make([]string, 0, len(p.Platforms))
	for name := range p.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseResolution splits a "WxH" string into width and height.
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid resolution %q: expected WxH", s)
	}
	if width, err = strconv.Atoi(w); err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution width in %q", s)
	}
	if height, err = strconv.Atoi(h); err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution height in %q", s)
	}
	return width, height, nil
}
