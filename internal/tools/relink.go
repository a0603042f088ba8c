package tools

import (
	"context"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fulmenhq/rpsuite/internal/resolve"
	"github.com/fulmenhq/rpsuite/pkg/ledger"
	"github.com/fulmenhq/rpsuite/pkg/logger"
	"github.com/fulmenhq/rpsuite/pkg/match"
	"github.com/fulmenhq/rpsuite/pkg/pack"
)

type relinkStatus string

const (
	relinkUnmatched relinkStatus = "unmatched"
	relinkClaimed   relinkStatus = "claimed"
	relinkPlanned   relinkStatus = "planned"
	relinkApplied   relinkStatus = "applied"
	relinkFailed    relinkStatus = "failed"
)

// finding is a non-fatal observation about a matched clip.
type finding struct {
	category string
	detail   string
	data     map[string]string
}

type relinkResult struct {
	position  int
	entry     pack.MappingEntry
	strategy  match.Strategy
	threshold float64
	best      *match.Candidate
	clip      resolve.MediaItem
	target    string
	status    relinkStatus
	claimedBy int
	err       error
	findings  []finding
}

// relinker applies one mapping pack to a set of media pool clips.
type relinker struct {
	env      *Env
	mapping  *pack.MappingPack
	fallback float64
	strategy match.Strategy
	index    map[string]string
	// scope prefixes ledger entities when several projects share a transaction.
	scope string
}

func newRelinker(env *Env, mp *pack.MappingPack, fallback float64) (*relinker, error) {
	strategy, err := match.ParseStrategy(env.Config.Match.Strategy)
	if err != nil {
		return nil, err
	}
	index, err := buildAssetIndex(mp.RootFolders)
	if err != nil {
		return nil, err
	}
	return &relinker{env: env, mapping: mp, fallback: fallback, strategy: strategy, index: index}, nil
}

// buildAssetIndex maps lower-cased file names under roots to their paths.
// Earlier roots win; within a root the lexically first path wins.
func buildAssetIndex(roots []string) (map[string]string, error) {
	index := map[string]string{}
	for _, root := range roots {
		st, err := os.Stat(root)
		if err != nil || !st.IsDir() {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(root), "**", doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", root, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			base := path.Base(m)
			if strings.HasPrefix(base, ".") {
				continue
			}
			key := strings.ToLower(base)
			if _, seen := index[key]; !seen {
				index[key] = filepath.Join(root, filepath.FromSlash(m))
			}
		}
	}
	return index, nil
}

func (r *relinker) resolveTarget(newAsset string) string {
	if strings.ContainsAny(newAsset, `/\`) {
		return newAsset
	}
	if p, ok := r.index[strings.ToLower(newAsset)]; ok {
		return p
	}
	return newAsset
}

func (r *relinker) entity(clip resolve.MediaItem) string {
	if r.scope == "" {
		return "clip:" + clip.ID
	}
	return r.scope + "/clip:" + clip.ID
}

// run matches every entry in declaration order against clips. A clip is
// relinked at most once; later entries that pick it are reported as claimed.
// A ledger state error stops the run before any further mutation.
func (r *relinker) run(ctx context.Context, clips []resolve.MediaItem, usage map[string][]resolve.TimelineItem) ([]relinkResult, error) {
	names := make([]string, len(clips))
	for i, c := range clips {
		names[i] = c.DisplayName()
	}
	claimed := map[string]int{}
	results := make([]relinkResult, 0, len(r.mapping.Mappings))

	for i, e := range r.mapping.Mappings {
		res := relinkResult{position: i, entry: e, threshold: r.mapping.ThresholdFor(e, r.fallback)}
		res.strategy = r.strategy
		if e.MatchStrategy != "" {
			s, err := match.ParseStrategy(e.MatchStrategy)
			if err != nil {
				res.status, res.err = relinkFailed, err
				results = append(results, res)
				continue
			}
			res.strategy = s
		}
		m, err := match.Match(e.OldAsset, names, res.strategy, res.threshold)
		if err != nil {
			res.status, res.err = relinkFailed, err
			results = append(results, res)
			continue
		}
		if len(m.Candidates) > 0 {
			top := m.Candidates[0]
			res.best = &top
		}
		best := m.Best()
		if best == nil {
			res.status = relinkUnmatched
			results = append(results, res)
			continue
		}
		res.clip = clips[best.Index]
		if prev, ok := claimed[res.clip.ID]; ok {
			res.status, res.claimedBy = relinkClaimed, prev
			results = append(results, res)
			continue
		}
		claimed[res.clip.ID] = i
		res.target = r.resolveTarget(e.NewAsset)
		res.findings = r.inspect(res.clip, e, usage[res.clip.ID])

		change := ledger.Change{Entity: r.entity(res.clip), Action: "relink", Before: res.clip.Path, After: res.target}
		clip := res.clip
		err = r.env.apply(change, func() error { return r.env.Mutator.ReplaceClip(ctx, clip.ID, res.target) })
		switch {
		case fatal(err):
			return nil, err
		case err != nil:
			r.env.Log.Warn("relink failed", logger.String("clip", clip.DisplayName()), logger.Err(err))
			res.status, res.err = relinkFailed, err
		case r.env.DryRun():
			res.status = relinkPlanned
		default:
			res.status = relinkApplied
		}
		results = append(results, res)
	}
	return results, nil
}

var transformHints = []string{"zoom", "pan", "position", "rotation", "scale"}

// inspect checks framing, resolution and aspect expectations of a matched clip.
func (r *relinker) inspect(clip resolve.MediaItem, e pack.MappingEntry, placed []resolve.TimelineItem) []finding {
	var out []finding

	fields := map[string]string{}
	for k, v := range clip.Properties {
		lk := strings.ToLower(k)
		for _, h := range transformHints {
			if strings.Contains(lk, h) {
				fields[k] = v
				break
			}
		}
	}
	for _, it := range placed {
		for k, v := range it.Transform {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		out = append(out, finding{
			category: "appearance",
			detail:   "clip may carry transforms; verify framing after relink: " + clip.DisplayName(),
			data:     fields,
		})
	}

	res := clip.Resolution
	if res == "" {
		res = clip.Properties["Resolution"]
	}
	if e.ExpectedResolution != "" && res != "" && !strings.EqualFold(e.ExpectedResolution, res) {
		out = append(out, finding{
			category: "resolution",
			detail:   fmt.Sprintf("clip resolution %s differs from expected %s", res, e.ExpectedResolution),
		})
	}
	if e.ExpectedAspect != nil && res != "" {
		if w, h, err := pack.ParseResolution(res); err == nil && h > 0 {
			aspect := float64(w) / float64(h)
			if math.Abs(aspect-*e.ExpectedAspect) > r.mapping.Tolerance() {
				out = append(out, finding{
					category: "aspect",
					detail: fmt.Sprintf("clip aspect %s differs from expected %s",
						strconv.FormatFloat(aspect, 'f', 2, 64), strconv.FormatFloat(*e.ExpectedAspect, 'f', -1, 64)),
				})
			}
		}
	}
	return out
}

// clipUsage indexes timeline items by media id.
func clipUsage(timelines ...*resolve.Timeline) map[string][]resolve.TimelineItem {
	usage := map[string][]resolve.TimelineItem{}
	for _, tl := range timelines {
		if tl == nil {
			continue
		}
		for _, kind := range []string{"video", "audio"} {
			for _, tr := range tl.Tracks(kind) {
				for _, it := range tr.Items {
					if it.MediaID != "" {
						usage[it.MediaID] = append(usage[it.MediaID], it)
					}
				}
			}
		}
	}
	return usage
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
