// Package placeholder instantiates template text from a binding of raw values.
//
// Two token forms are recognized: {{Name}} and {name}. The casing of the
// substituted text follows the token's own shape (ResourceName renders
// PascalCase, resourceName camelCase, RESOURCE_NAME screaming snake case) and
// the suffixes Plural, Kebab and Snake select derived forms. Derived forms are
// always computed from the single raw value in the binding.
package placeholder

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnresolvedPlaceholder is wrapped by *UnresolvedError.
var ErrUnresolvedPlaceholder = errors.New("placeholder: unresolved placeholder")

// UnresolvedError names the first token that could not be resolved plus every
// distinct unresolved token in scan order.
type UnresolvedError struct {
	Token   string
	Missing []string
}

func (e *UnresolvedError) Error() string {
	if len(e.Missing) > 1 {
		return fmt.Sprintf("placeholder: unresolved placeholder %s (all missing: %s)", e.Token, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("placeholder: unresolved placeholder %s", e.Token)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedPlaceholder }

// Binding maps logical names (e.g. ResourceName) to raw values (e.g. Order).
type Binding map[string]string

// Token is a placeholder occurrence inside a template.
type Token struct {
	// Raw is the literal text, braces included.
	Raw string
	// Name is the identifier between the braces.
	Name string
	// Double is true for the {{Name}} form.
	Double bool
	Start  int
	End    int
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_]*)\s*\}\}|\{([A-Za-z][A-Za-z0-9_]*)\}`)

// Tokens returns every placeholder in template in scan order. A single-brace
// group preceded by '$' is string interpolation in the generated language and
// is skipped; the {{Name}} form is always a token.
func Tokens(template string) []Token {
	matches := tokenPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		if m[2] < 0 && start > 0 && template[start-1] == '$' {
			continue
		}
		tok := Token{Raw: template[start:end], Start: start, End: end}
		if m[2] >= 0 {
			tok.Name = template[m[2]:m[3]]
			tok.Double = true
		} else {
			tok.Name = template[m[4]:m[5]]
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Names returns the distinct token names in template in scan order.
func Names(template string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, tok := range Tokens(template) {
		if _, ok := seen[tok.Name]; ok {
			continue
		}
		seen[tok.Name] = struct{}{}
		names = append(names, tok.Name)
	}
	return names
}

// Resolve substitutes every token in template. It fails with an
// *UnresolvedError rather than leaving literal token text in the output.
func Resolve(template string, binding Binding) (string, error) {
	tokens := Tokens(template)
	if len(tokens) == 0 {
		return template, nil
	}
	index := binding.index()
	var (
		sb      strings.Builder
		last    int
		missing []string
		seen    = map[string]struct{}{}
	)
	for _, tok := range tokens {
		value, ok := index.lookup(tok.Name)
		if !ok {
			if _, dup := seen[tok.Name]; !dup {
				seen[tok.Name] = struct{}{}
				missing = append(missing, tok.Name)
			}
			continue
		}
		sb.WriteString(template[last:tok.Start])
		sb.WriteString(value)
		last = tok.End
	}
	if len(missing) > 0 {
		return "", &UnresolvedError{Token: missing[0], Missing: missing}
	}
	sb.WriteString(template[last:])
	return sb.String(), nil
}

// Check reports the unresolved tokens of template without rendering it.
func Check(template string, binding Binding) error {
	_, err := Resolve(template, binding)
	return err
}

// Lookup renders a single token name (without braces) against the binding,
// e.g. Lookup("resourceNamePlural") for {ResourceName: "Box"} is "boxes".
func (b Binding) Lookup(name string) (string, bool) {
	return b.index().lookup(name)
}

// Derived returns the common derived forms of every binding entry keyed by the
// token name that renders them.
func (b Binding) Derived() map[string]string {
	out := make(map[string]string, len(b)*6)
	for key, raw := range b {
		words := SplitWords(key)
		if len(words) == 0 {
			continue
		}
		pascal := Apply(key, Pascal, false)
		camel := Apply(key, Camel, false)
		out[pascal] = Apply(raw, Pascal, false)
		out[camel] = Apply(raw, Camel, false)
		out[pascal+"Plural"] = Apply(raw, Pascal, true)
		out[camel+"Plural"] = Apply(raw, Camel, true)
		out[camel+"Kebab"] = Apply(raw, Kebab, false)
		out[Apply(key, Screaming, false)] = Apply(raw, Screaming, false)
	}
	return out
}

type bindingIndex map[string]string

// index normalizes binding keys for case-insensitive lookup. Keys are visited
// in sorted order so that colliding keys resolve deterministically.
func (b Binding) index() bindingIndex {
	keys := make([]string, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	idx := make(bindingIndex, len(keys))
	for _, key := range keys {
		norm := normalizeKey(key)
		if norm == "" {
			continue
		}
		if _, exists := idx[norm]; exists {
			continue
		}
		idx[norm] = b[key]
	}
	return idx
}

func (idx bindingIndex) lookup(name string) (string, bool) {
	f := parseForm(name)
	raw, ok := idx.raw(f.key)
	if !ok {
		return "", false
	}
	return Apply(raw, f.casing, f.plural), true
}

func (idx bindingIndex) raw(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if v, ok := idx[key]; ok {
		return v, true
	}
	// "resource" and "resourcename" name the same binding.
	if strings.HasSuffix(key, "name") && len(key) > len("name") {
		if v, ok := idx[strings.TrimSuffix(key, "name")]; ok {
			return v, true
		}
	}
	if v, ok := idx[key+"name"]; ok {
		return v, true
	}
	return "", false
}

type form struct {
	key    string
	casing Casing
	plural bool
}

var suffixes = []struct {
	suffix string
	apply  func(*form)
}{
	{"plural", func(f *form) { f.plural = true }},
	{"kebab", func(f *form) { f.casing = Kebab }},
	{"snake", func(f *form) { f.casing = Snake }},
}

func parseForm(name string) form {
	f := form{casing: shapeCasing(name)}
	key := normalizeKey(name)
	for stripped := true; stripped; {
		stripped = false
		for _, s := range suffixes {
			if strings.HasSuffix(key, s.suffix) && len(key) > len(s.suffix) {
				key = strings.TrimSuffix(key, s.suffix)
				s.apply(&f)
				stripped = true
			}
		}
	}
	f.key = key
	return f
}

func shapeCasing(name string) Casing {
	letters, upper := 0, 0
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters > 1 && letters == upper {
		return Screaming
	}
	if first, _ := utf8.DecodeRuneInString(name); unicode.IsUpper(first) {
		return Pascal
	}
	return Camel
}

func normalizeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}
