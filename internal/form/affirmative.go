package form

import "strings"

var affirmativeWords = []string{"yes", "y", "true", "1", "on", "checked", "check", "selected", "select"}

// Affirmative reports whether s contains any affirmative token. Matching is
// by substring on the lower-cased, trimmed input, so "yes please" and
// "Checked" are affirmative.
func Affirmative(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, w := range affirmativeWords {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// YesNo collapses a free-text answer to "yes" or "no".
func YesNo(s string) string {
	if Affirmative(s) {
		return "yes"
	}
	return "no"
}
