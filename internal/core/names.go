package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes, drops combining marks, and recomposes, so that
// "José" and "Jose" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName canonicalizes a display name for comparison: trimmed,
// lower-cased, diacritics removed. Empty input normalizes to "".
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks, name)
	if err != nil {
		return name
	}
	return out
}

// SameName reports whether two display names refer to the same owner despite
// casing or accent differences. An empty name never matches anything.
func SameName(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}
