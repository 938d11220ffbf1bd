package http

import (
	"regexp"
	"strings"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidSlug reports whether s is safe to use as a device or flow
// identifier in file paths and URLs.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// SanitizeWaID strips characters that cannot appear in a provider
// account id. Keeps digits, letters, '@', '.', '+', '-'.
func SanitizeWaID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r == '@', r == '.', r == '+', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
