// Package textkey derives comparison keys and slugs from user-entered text.
package textkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fold returns a case-folded, NFKC-normalised form of value suitable for
// case-insensitive matching of Cyrillic and Latin text alike. Whitespace runs collapse to one space.
func Fold(value string) string {
	return strings.Join(strings.Fields(cases.Fold().String(norm.NFKC.String(value))), " ")
}

// CategoryKey lower-cases name and joins whitespace-separated words with hyphens.
// Punctuation and accents are kept, so "Crème brûlée" and "Creme brulee" stay distinct.
func CategoryKey(name string) string {
	lowered := cases.Lower(language.Und).String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(lowered), "-")
}

// Slugify keeps unicode letters and digits, lower-cased, and collapses every
// other run of characters into a single hyphen.
func Slugify(value string) string {
	lowered := cases.Lower(language.Und).String(norm.NFKC.String(value))
	var builder strings.Builder
	pendingHyphen := false
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingHyphen && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingHyphen = false
			builder.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return builder.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE pattern matching fragment anywhere; use with ESCAPE '\'.
func ContainsPattern(fragment string) string {
	return "%" + likeEscaper.Replace(fragment) + "%"
}

// PrefixPattern builds a LIKE pattern matching values starting with prefix; use with ESCAPE '\'.
func PrefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
