package approval

import (
	"strings"
	"unicode"
)

// MatchesPattern reports whether text matches the glob pattern as a whole,
// ignoring case. "*" matches any run of characters, including none, and "?"
// matches exactly one character. There is no escaping.
func MatchesPattern(text, pattern string) bool {
	return globMatch([]rune(foldCase(text)), []rune(foldCase(pattern)))
}

// globMatch is the iterative wildcard matcher: on mismatch it backtracks to
// the most recent star and lets it absorb one more character.
func globMatch(text, pattern []rune) bool {
	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(text) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == text[ti]):
			ti++
			pi++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = ti
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

func foldCase(s string) string {
	return strings.Map(unicode.ToLower, s)
}
