package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenDisplayName derives a human readable label from a field name.
// "id" becomes "ID"; camelCase, snake_case and kebab-case names are split
// into title-cased words ("lastUpdated" -> "Last Updated").
func GenDisplayName(name string) string {
	if name == "id" {
		return "ID"
	}
	// Casers carry state and are not shared between goroutines.
	caser := cases.Title(language.English, cases.NoLower)
	words := splitWords(name)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

func splitWords(name string) []string {
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && len(current) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		case unicode.IsDigit(r) && len(current) > 0 && !unicode.IsDigit(runes[i-1]):
			flush()
		}
		current = append(current, r)
	}
	flush()
	return words
}
