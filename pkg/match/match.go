// Package match scores media names against each other and refuses to pick a
// candidate that does not reach the caller's threshold.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Strategy selects the scoring function.
type Strategy string

const (
	// Token compares normalized token sets (Jaccard), exact names score 1.
	Token Strategy = "token"
	// Similarity is one minus the normalized Levenshtein distance.
	Similarity Strategy = "similarity"
)

// DefaultThreshold is used when neither pack nor config supplies one.
const DefaultThreshold = 0.6

// StrategyError reports an unknown strategy or an out-of-range threshold.
type StrategyError struct {
	Strategy  string
	Threshold float64
	Reason    string
}

func (e *StrategyError) Error() string {
	if e.Reason != "" {
		return "match: " + e.Reason
	}
	return fmt.Sprintf("match: unknown strategy %q (expected token or similarity)", e.Strategy)
}

// ParseStrategy maps a name to a Strategy. Matching is case-insensitive.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Token:
		return Token, nil
	case Similarity:
		return Similarity, nil
	}
	return "", &StrategyError{Strategy: s}
}

// CheckThreshold rejects NaN and values outside [0,1].
func CheckThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return &StrategyError{Threshold: threshold, Reason: fmt.Sprintf("threshold %v outside [0,1]", threshold)}
	}
	return nil
}

// Candidate is one scored candidate name.
type Candidate struct {
	Name     string   `json:"name"`
	Index    int      `json:"index"`
	Score    float64  `json:"score"`
	Strategy Strategy `json:"strategy"`
	Accepted bool     `json:"accepted"`
}

// Result ranks every candidate for one reference.
type Result struct {
	Reference  string      `json:"reference"`
	Strategy   Strategy    `json:"strategy"`
	Threshold  float64     `json:"threshold"`
	Candidates []Candidate `json:"candidates"`
}

// Best returns the highest-ranked accepted candidate, or nil when nothing
// reached the threshold.
func (r *Result) Best() *Candidate {
	if r == nil || len(r.Candidates) == 0 || !r.Candidates[0].Accepted {
		return nil
	}
	return &r.Candidates[0]
}

// Matched reports whether any candidate was accepted.
func (r *Result) Matched() bool { return r.Best() != nil }

// Match scores reference against every candidate. Candidates are ranked by
// descending score with ties kept in input order.
func Match(reference string, candidates []string, strategy Strategy, threshold float64) (*Result, error) {
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	if err := CheckThreshold(threshold); err != nil {
		return nil, err
	}

	ref := Tokens(reference)
	res := &Result{
		Reference:  reference,
		Strategy:   strategy,
		Threshold:  threshold,
		Candidates: make([]Candidate, len(candidates)),
	}
	for i, name := range candidates {
		score := scoreTokens(ref, Tokens(name), strategy)
		res.Candidates[i] = Candidate{
			Name:     name,
			Index:    i,
			Score:    score,
			Strategy: strategy,
			Accepted: score >= threshold,
		}
	}
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Score > res.Candidates[j].Score
	})
	return res, nil
}

// Score compares two names with the given strategy.
func Score(a, b string, strategy Strategy) (float64, error) {
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return 0, err
	}
	return scoreTokens(Tokens(a), Tokens(b), strategy), nil
}

func scoreTokens(a, b []string, strategy Strategy) float64 {
	if strategy == Similarity {
		return similarity(strings.Join(a, " "), strings.Join(b, " "))
	}
	return jaccard(a, b)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if strings.Join(a, " ") == strings.Join(b, " ") {
		return 1
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return clamp(1 - float64(d)/float64(longest))
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
