package match

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"logo_v1.png", "logo v1 png"},
		{"Logo-V1.PNG", "logo v1 png"},
		{"Café Intro.mov", "cafe intro mov"},
		{"STRASSE_ß.tiff", "strasse ss tiff"},
		{"ｆｕｌｌｗｉｄｔｈ.mp4", "fullwidth mp4"},
		{".hidden", "hidden"},
		{"archive.backup2024", "archive backup2024"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestExtensionIsATokenOfItsOwn(t *testing.T) {
	// {logo, v1, png} against {logo, v1, final, mov}: two shared of five.
	got, err := Score("logo_v1.png", "logo_v1_final.mov", Token)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got, 1e-9)

	got, err = Score("logo_v1.png", "logo_v1.mov", Token)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestMatchRefusesToGuessAtDefaultThreshold(t *testing.T) {
	res, err := Match("logo_v1.png", []string{"logo_v1_final.mov"}, Token, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.InDelta(t, 0.4, res.Candidates[0].Score, 1e-9)
	assert.False(t, res.Candidates[0].Accepted)
	assert.Nil(t, res.Best())
	assert.False(t, res.Matched())

	res, err = Match("logo_v1.png", []string{"logo_v1_final.mov"}, Token, 0.4)
	require.NoError(t, err)
	require.NotNil(t, res.Best())
	assert.Equal(t, "logo_v1_final.mov", res.Best().Name)
}

func TestExactNameScoresOne(t *testing.T) {
	for _, s := range []Strategy{Token, Similarity} {
		got, err := Score("Hero Shot.mov", "hero_shot.MOV", s)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got, s)
	}
}

func TestEmptyInputs(t *testing.T) {
	for _, s := range []Strategy{Token, Similarity} {
		both, _ := Score("", "", s)
		assert.Equal(t, 1.0, both, s)
		one, _ := Score("", "abc", s)
		assert.Equal(t, 0.0, one, s)
	}
}

func TestSimilarityStrategy(t *testing.T) {
	// "kitten" vs "sitting": distance 3 over 7 runes.
	got, err := Score("kitten", "sitting", Similarity)
	require.NoError(t, err)
	assert.InDelta(t, 1-3.0/7.0, got, 1e-9)

	// No transposition: "ab" -> "ba" costs two substitutions.
	got, err = Score("ab", "ba", Similarity)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestScoresAreSymmetricAndBounded(t *testing.T) {
	names := []string{"logo_v1.png", "LOGO v2.png", "endcard_15s.mov", "", "Café.mov", "a", "lower third final FINAL.mov"}
	for _, s := range []Strategy{Token, Similarity} {
		for _, a := range names {
			for _, b := range names {
				ab, err := Score(a, b, s)
				require.NoError(t, err)
				ba, err := Score(b, a, s)
				require.NoError(t, err)
				assert.Equal(t, ab, ba, "%s(%q,%q)", s, a, b)
				assert.True(t, ab >= 0 && ab <= 1, "score %v out of range", ab)
			}
		}
	}
}

func TestAcceptanceIsMonotonicInThreshold(t *testing.T) {
	candidates := []string{"logo_v2.png", "logo.png", "bumper.mov", "logo_v1_final.mov"}
	prev := -1
	for _, th := range []float64{1, 0.9, 0.75, 0.5, 0.25, 0} {
		res, err := Match("logo_v1.png", candidates, Token, th)
		require.NoError(t, err)
		accepted := 0
		for _, c := range res.Candidates {
			if c.Accepted {
				accepted++
			}
		}
		assert.GreaterOrEqual(t, accepted, prev, "threshold %v", th)
		prev = accepted
	}
	assert.Equal(t, len(candidates), prev)
}

func TestRankingIsStableOnTies(t *testing.T) {
	res, err := Match("intro", []string{"outro.mov", "intro_b.mov", "intro_a.mov", "intro.mov"}, Token, 0.5)
	require.NoError(t, err)
	var order []int
	for _, c := range res.Candidates {
		order = append(order, c.Index)
	}
	assert.Equal(t, []int{3, 1, 2, 0}, order)
	assert.Equal(t, "intro.mov", res.Best().Name)
}

func TestInvalidStrategyAndThreshold(t *testing.T) {
	var se *StrategyError

	_, err := Match("a", []string{"b"}, Strategy("phonetic"), 0.5)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "phonetic", se.Strategy)

	for _, th := range []float64{-0.1, 1.01, math.NaN(), math.Inf(1)} {
		_, err := Match("a", []string{"b"}, Token, th)
		require.True(t, errors.As(err, &se), "threshold %v", th)
	}

	_, err = ParseStrategy("Similarity")
	assert.NoError(t, err)
	_, err = Score("a", "b", "")
	assert.Error(t, err)
}

func TestStrategySpellingDoesNotChangeScoring(t *testing.T) {
	want, err := Score("logo", "lgoo", Similarity)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, want, 1e-9)

	for _, spelling := range []Strategy{"Similarity", " SIMILARITY "} {
		got, err := Score("logo", "lgoo", spelling)
		require.NoError(t, err)
		assert.Equal(t, want, got, spelling)

		res, err := Match("logo", []string{"lgoo"}, spelling, 0.5)
		require.NoError(t, err)
		assert.Equal(t, Similarity, res.Strategy)
		assert.Equal(t, Similarity, res.Candidates[0].Strategy)
		assert.True(t, res.Matched())
	}
}

func TestFirstPattern(t *testing.T) {
	p, err := FirstPattern("ACME_logo_old.png", []string{`^foo`, `logo_old`})
	require.NoError(t, err)
	assert.Equal(t, "logo_old", p)

	p, err = FirstPattern("x", []string{`y`})
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = FirstPattern("x", []string{`(`})
	assert.Error(t, err)
}
