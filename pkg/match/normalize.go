package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a media name into its comparison form: compatibility
// decomposition, combining marks removed, Unicode case folding, and tokens
// joined by single spaces. A file extension stays as its own token, so
// "logo_v1.png" and "logo_v1.mov" are different names.
func Normalize(name string) string {
	return strings.Join(Tokens(name), " ")
}

// Tokens splits a normalized name on every rune that is not a letter or digit.
func Tokens(name string) []string {
	s := fold(name)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Casers and transform chains carry state, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}
