package usecases

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper decomposes to NFD and drops combining marks, so
// "Mañana" and "manana" normalize to the same string.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds free-typed input for keyword matching: trim, lower
// case, strip accents.
func Normalize(text string) string {
	folded := strings.ToLower(strings.TrimSpace(text))
	stripped, _, err := transform.String(accentStripper, folded)
	if err != nil {
		return folded
	}
	return stripped
}

// keywordRule maps a normalized substring to an option id. Rules are
// scanned in declaration order; the first hit wins.
type keywordRule struct {
	substr string
	id     string
}

func matchKeyword(rules []keywordRule, normalized string) (string, bool) {
	for _, r := range rules {
		if strings.Contains(normalized, r.substr) {
			return r.id, true
		}
	}
	return "", false
}
