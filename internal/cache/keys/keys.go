package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Prefix namespaces every catalog search entry.
const Prefix = "libsrch:v1"

// SearchKey is the cache key for one catalog search. An empty subRegion is
// the region-wide search. The ISBN is normalized so hyphenated and bare
// forms share an entry.
func SearchKey(isbn, region, subRegion string) string {
	isbnNorm := NormalizeISBN(isbn)
	regionSafe := sanitizeForKey(strings.TrimSpace(region))
	sub := sanitizeForKey(strings.TrimSpace(subRegion))
	if sub == "" {
		sub = "-"
	}

	sum := xxhash.Sum64String(isbnNorm + "|" + regionSafe + "|" + sub)

	return fmt.Sprintf("%s:%s:%s:%s:h=%016x", Prefix, sanitizeForKey(isbnNorm), regionSafe, sub, sum)
}

// NormalizeISBN drops separators and upper-cases a trailing check digit.
func NormalizeISBN(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		}
	}
	return b.String()
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// ':' is the segment separator; everything else collapses to '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
