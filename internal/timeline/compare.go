package timeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/strata/internal/models"
)

// compareItems orders newest first. Ties are broken by source: items without
// a source go last, the rest in reverse natural order of their source name.
func compareItems(a, b models.Item) int {
	switch {
	case a.Timestamp > b.Timestamp:
		return -1
	case a.Timestamp < b.Timestamp:
		return 1
	}
	switch {
	case a.Source == "" && b.Source == "":
		return 0
	case a.Source == "":
		return 1
	case b.Source == "":
		return -1
	}
	return compareNatural(b.Source, a.Source)
}

// compareNatural compares strings case-insensitively, treating runs of
// digits as numbers, so "src2" < "src10".
func compareNatural(a, b string) int {
	for a != "" && b != "" {
		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)

		if isDigit(ra) && isDigit(rb) {
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c
			}
			a, b = restA, restB
			continue
		}

		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		a = a[sa:]
		b = b[sb:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two ASCII digit strings by value.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
