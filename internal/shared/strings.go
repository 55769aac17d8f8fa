package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName collapses whitespace and applies NFC so names compare and
// sort consistently regardless of how the client composed them.
func NormalizeName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lowercases and trims an email address for matching.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
