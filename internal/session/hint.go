package session

import (
	"strings"
	"unicode"
)

// Hint masks every letter of a word but the first of each part, keeping
// spaces, hyphens and apostrophes so the shape of the word stays visible.
func Hint(word string) string {
	var b strings.Builder
	first := true
	for _, r := range strings.TrimSpace(word) {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			b.WriteRune(r)
			first = true
		case first:
			b.WriteRune(r)
			first = false
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
