package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	lowercaser   = cases.Lower(language.Und)
)

// NormalizeEmail trims, NFC-normalises, and lowercases an e-mail address so that
// addresses typed with different casing or composition compare equal.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	return lowercaser.String(norm.NFC.String(email))
}

// CleanText strips HTML markup from free-form user input, normalises it to NFC,
// and truncates it to limit runes. A limit of zero leaves the length unbounded.
func CleanText(input string, limit int) string {
	input = strictPolicy.Sanitize(input)
	input = norm.NFC.String(strings.TrimSpace(input))
	if limit > 0 {
		runes := []rune(input)
		if len(runes) > limit {
			input = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return input
}
