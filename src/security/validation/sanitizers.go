package validation

import (
	"strings"
	"unicode"
)

// StripUnprintable removes non-printable characters, allowing common
// whitespace like space, tab, newline, and carriage return. Applied to
// free-form notes and names before they are persisted.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
