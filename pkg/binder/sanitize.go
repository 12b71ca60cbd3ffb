package binder

import (
	"strings"
	"unicode"
)

// sanitizeStringValue trims surrounding whitespace and drops control
// characters other than tab and newlines.
func sanitizeStringValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.IndexFunc(s, isStrippedControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
}

func isStrippedControl(r rune) bool {
	return unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r'
}
