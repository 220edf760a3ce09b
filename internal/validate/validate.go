package validate

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTermLen bounds the search term in runes.
const MaxTermLen = 100

// Term trims a search term and truncates it to MaxTermLen runes.
func Term(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxTermLen {
		return s
	}
	return string([]rune(s)[:MaxTermLen])
}

// Page coerces a pagination value: absent or unparsable yields def,
// non-positive values clamp to 1. ok reports whether s was used as given.
func Page(s string, def int) (n int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, false
	}
	if n < 1 {
		return 1, false
	}
	return n, true
}
