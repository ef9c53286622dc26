package placeholder

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casing selects how a raw binding value is rendered.
type Casing int

const (
	Pascal Casing = iota
	Camel
	Kebab
	Snake
	Screaming
)

func (c Casing) String() string {
	switch c {
	case Pascal:
		return "PascalCase"
	case Camel:
		return "camelCase"
	case Kebab:
		return "kebab-case"
	case Snake:
		return "snake_case"
	case Screaming:
		return "SCREAMING_SNAKE_CASE"
	default:
		return "unknown"
	}
}

// Apply renders value in the given casing, optionally pluralizing the last
// word first.
func Apply(value string, casing Casing, plural bool) string {
	words := SplitWords(value)
	if len(words) == 0 {
		return ""
	}
	if plural {
		words[len(words)-1] = Pluralize(words[len(words)-1])
	}
	// Casers keep internal state and must not be shared across goroutines.
	titleCaser := cases.Title(language.Und, cases.NoLower)
	lowerCaser := cases.Lower(language.Und)
	upperCaser := cases.Upper(language.Und)
	switch casing {
	case Camel:
		out := lowerCaser.String(words[0])
		for _, w := range words[1:] {
			out += titleCaser.String(w)
		}
		return out
	case Kebab:
		return lowerCaser.String(strings.Join(words, "-"))
	case Snake:
		return lowerCaser.String(strings.Join(words, "_"))
	case Screaming:
		return upperCaser.String(strings.Join(words, "_"))
	default:
		var sb strings.Builder
		for _, w := range words {
			sb.WriteString(titleCaser.String(w))
		}
		return sb.String()
	}
}

// Pluralize appends "es" after s, x, z, ch and sh and "s" otherwise. There is
// no irregular-plural dictionary: "Person" becomes "Persons".
func Pluralize(word string) string {
	if word == "" {
		return word
	}
	lower := strings.ToLower(word)
	for _, suffix := range []string{"s", "x", "z", "ch", "sh"} {
		if strings.HasSuffix(lower, suffix) {
			return word + "es"
		}
	}
	return word + "s"
}

// SplitWords breaks value on separators and case boundaries:
// "OrderItem", "order_item", "order-item" and "order item" all yield
// [order item] (preserving the original letters). Acronym runs stay together,
// so "HTTPServer" yields [HTTP Server].
func SplitWords(value string) []string {
	var words []string
	for _, chunk := range strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words = append(words, splitCaseBoundaries(chunk)...)
	}
	return words
}

func splitCaseBoundaries(chunk string) []string {
	runes := []rune(chunk)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			boundary = true
		case unicode.IsDigit(prev) && unicode.IsUpper(cur):
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			boundary = true
		}
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}
