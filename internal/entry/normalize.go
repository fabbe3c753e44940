package entry

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// ParseCategory resolves a category name case-insensitively, ignoring
// surrounding and repeated whitespace. ok is false for unknown names.
func ParseCategory(s string) (Category, bool) {
	norm := strings.ToLower(whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " "))
	for _, c := range Categories {
		if strings.ToLower(string(c)) == norm {
			return c, true
		}
	}
	return "", false
}

// NormalizeDescription trims and collapses internal whitespace.
func NormalizeDescription(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// ValidDate reports whether s is a real calendar day in YYYY-MM-DD form.
func ValidDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return false
	}
	// time.Parse accepts only real days, but guard against layout drift.
	return t.Format(DateLayout) == s
}
