package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
	"github.com/fulmenhq/rpsuite/pkg/report"
	"github.com/fulmenhq/rpsuite/pkg/safeio"
)

type deliveryOptions struct {
	DeliveryPack   string   `json:"delivery_pack_path"`
	Platforms      []string `json:"platforms"`
	OutputName     string   `json:"output_name"`
	ManifestOutput string   `json:"manifest_output"`
}

// ManifestEntry is one platform in the delivery manifest.
type ManifestEntry struct {
	Platform   string        `json:"platform"`
	Spec       pack.Platform `json:"spec"`
	OutputName string        `json:"output_name"`
	Findings   []string      `json:"findings"`
}

// Manifest is the render checklist written next to the reports.
type Manifest struct {
	Timeline  string          `json:"timeline"`
	Platforms []ManifestEntry `json:"platforms"`
}

// DeliverySpecEnforcer checks the current timeline against each platform of
// a delivery pack and writes a render manifest.
type DeliverySpecEnforcer struct{}

func (DeliverySpecEnforcer) ID() string    { return "t8_delivery_spec_enforcer" }
func (DeliverySpecEnforcer) Title() string { return "Delivery Spec Enforcer" }

func (t DeliverySpecEnforcer) Run(ctx context.Context, env *Env, raw json.RawMessage) (*report.Report, error) {
	var opts deliveryOptions
	if err := decodeOptions(t, raw, &opts); err != nil {
		return nil, err
	}
	if opts.DeliveryPack == "" {
		return nil, optionsErr(t, "delivery_pack_path is required")
	}
	p, err := env.loadPack(opts.DeliveryPack, pack.KindDelivery)
	if err != nil {
		return nil, err
	}
	dp := p.Delivery
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = dp.PlatformNames()
	}
	for _, name := range platforms {
		if _, ok := dp.Platforms[name]; !ok {
			return nil, optionsErr(t, "platform %q is not in %s (have %s)", name, p.Source, strings.Join(dp.PlatformNames(), ", "))
		}
	}

	b := env.newReport(t)
	_ = b.SetMeta("pack", p.Source)
	tl, err := env.Reader.CurrentTimeline(ctx)
	if err != nil {
		collaboratorItem(b, "timeline", err)
		return b.Finalize(), nil
	}
	outputName := opts.OutputName
	if outputName == "" {
		outputName = tl.Name
	}

	manifest := Manifest{Timeline: tl.Name}
	for _, name := range platforms {
		spec := dp.Platforms[name]
		findings := checkPlatform(spec, tl.Resolution(), tl.FPS, tl.DurationSeconds(), outputName)
		manifest.Platforms = append(manifest.Platforms, ManifestEntry{Platform: name, Spec: spec, OutputName: outputName, Findings: findings})

		item := report.Item{
			Entity:   name,
			Severity: report.SeverityOK,
			Category: "delivery",
			Timeline: tl.Name,
			Detail:   "timeline meets platform spec",
			Outcome:  report.NeedsManualReview(LimitationText(LimitRenderSettings)),
			Data: map[string]string{
				"codec":      spec.Codec,
				"resolution": spec.Resolution,
				"fps":        fmtFloat(spec.FPS),
				"duration":   strconv.FormatFloat(tl.DurationSeconds(), 'f', 2, 64),
			},
		}
		if spec.Container != "" {
			item.Data["container"] = spec.Container
		}
		if spec.BitrateMbps > 0 {
			item.Data["bitrate_mbps"] = fmtFloat(spec.BitrateMbps)
		}
		if len(findings) > 0 {
			item.Severity = report.SeverityWarning
			item.Detail = strings.Join(findings, "; ")
		}
		_ = b.Add(item)
	}

	if opts.ManifestOutput != "" {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := safeio.WriteFileAtomic(opts.ManifestOutput, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}
		_ = b.SetMeta("manifest", opts.ManifestOutput)
	}
	return b.Finalize(), nil
}

// checkPlatform lists every way the timeline misses spec, in a fixed order.
func checkPlatform(spec pack.Platform, resolution string, fps, duration float64, outputName string) []string {
	out := []string{}
	if spec.Resolution != "" && !strings.EqualFold(spec.Resolution, resolution) {
		out = append(out, fmt.Sprintf("resolution %s, expected %s", resolution, spec.Resolution))
	}
	if spec.FPS > 0 && math.Abs(spec.FPS-fps) > 0.01 {
		out = append(out, fmt.Sprintf("fps %s, expected %s", fmtFloat(fps), fmtFloat(spec.FPS)))
	}
	if spec.DurationLimit > 0 && duration > spec.DurationLimit {
		out = append(out, fmt.Sprintf("duration %.2fs exceeds limit %ss", duration, fmtFloat(spec.DurationLimit)))
	}
	lower := strings.ToLower(outputName)
	for _, tok := range spec.NamingTokens {
		if !strings.Contains(lower, strings.ToLower(tok)) {
			out = append(out, fmt.Sprintf("output name %q lacks token %q", outputName, tok))
		}
	}
	if spec.NamingPattern != "" {
		hit, err := match.FirstPattern(outputName, []string{spec.NamingPattern})
		switch {
		case err != nil:
			out = append(out, err.Error())
		case hit == "":
			out = append(out, fmt.Sprintf("output name %q does not match %s", outputName, spec.NamingPattern))
		}
	}
	return out
}
