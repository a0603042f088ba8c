package match

import (
	"fmt"
	"regexp"
)

// FirstPattern returns the first case-insensitive regular expression that
// matches target, or "" when none does.
func FirstPattern(target string, patterns []string) (string, error) {
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return "", fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if re.MatchString(target) {
			return p, nil
		}
	}
	return "", nil
}
