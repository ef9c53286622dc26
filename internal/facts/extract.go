package facts

import (
	"path"
	"regexp"
	"strings"
)

var (
	reESImport     = regexp.MustCompile(`(?m)^\s*(?:import|export)\s[^;'"]*?\bfrom\s+["']([^"']+)["']`)
	reSideEffect   = regexp.MustCompile(`(?m)^\s*import\s+["']([^"']+)["']`)
	reRequire      = regexp.MustCompile(`require\(\s*["']([^"']+)["']\s*\)`)
	reDynamic      = regexp.MustCompile(`\bimport\(\s*["']([^"']+)["']\s*\)`)
	reGoImportOne  = regexp.MustCompile(`(?m)^import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	reGoImportList = regexp.MustCompile(`(?ms)^import\s*\((.*?)\)`)
	reQuoted       = regexp.MustCompile(`"([^"]+)"`)

	reESExport = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:abstract\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)
	reGoExport = regexp.MustCompile(`(?m)^(?:func\s+(?:\([^)]*\)\s*)?|type\s+|var\s+|const\s+)([A-Z]\w*)`)
)

var patterns = map[string]*regexp.Regexp{
	PatternSecret:        regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_-]?key|access[_-]?token|private[_-]?key)\w*["']?\s*[:=]\s*["'][^"'\s]{6,}["']`),
	PatternErrorHandling: regexp.MustCompile(`\btry\s*\{|\.catch\s*\(|\bif\s+err\s*!=\s*nil\b`),
	PatternCatchAll:      regexp.MustCompile(`catch\s*(?:\(\s*\w*\s*(?::\s*\w+\s*)?\))?\s*\{\s*\}`),
	PatternDocComment:    regexp.MustCompile(`(?m)^\s*/\*\*|^//\s+[A-Z]\w*\s`),
	PatternValidation:    regexp.MustCompile(`\b[vV]alidate\w*\s*\(|\.safeParse\s*\(|\bJoi\.|\bz\.object\s*\(|@Is[A-Z]\w*\(|\bvalidationResult\s*\(|\.parse\s*\(\s*req\.`),
	PatternDataAccess:    regexp.MustCompile(`\bprisma\.\w+\.\w+\s*\(|\.query\s*\(|\bknex\s*\(|\bgetRepository\s*\(|\bdb\.(?:Query|Exec|QueryRow)\w*\s*\(`),
	PatternSQLConcat:     regexp.MustCompile("(?i)[\"'`]\\s*(?:SELECT|INSERT|UPDATE|DELETE)\\b[^\"'`]*[\"'`]\\s*\\+|`[^`]*\\b(?:SELECT|INSERT|UPDATE|DELETE)\\b[^`]*\\$\\{"),
}

// PatternNames returns the names of the built-in source patterns.
func PatternNames() []string {
	return []string{
		PatternCatchAll,
		PatternDataAccess,
		PatternDocComment,
		PatternErrorHandling,
		PatternSecret,
		PatternSQLConcat,
		PatternValidation,
	}
}

// Extract analyzes source text. Extra patterns are counted alongside the
// built-in ones and override built-ins with the same name.
func Extract(filePath string, content []byte, extra map[string]*regexp.Regexp) File {
	text := string(content)
	f := File{
		Path:     filePath,
		Lines:    countLines(text),
		Test:     IsTestFile(filePath),
		Patterns: map[string]int{},
	}
	if strings.HasSuffix(filePath, ".go") {
		f.Imports = goImports(text)
		f.Symbols = submatches(reGoExport, text, 1)
	} else {
		f.Imports = esImports(text)
		f.Symbols = submatches(reESExport, text, 1)
	}
	for name, re := range patterns {
		if _, overridden := extra[name]; overridden {
			continue
		}
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			f.Patterns[name] = n
		}
	}
	for name, re := range extra {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			f.Patterns[name] = n
		}
	}
	return f
}

// IsTestFile reports whether a path names a test file.
func IsTestFile(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return true
	case strings.Contains(base, ".test.") || strings.Contains(base, ".spec."):
		return true
	case strings.Contains(p, "/__tests__/"):
		return true
	}
	return false
}

func esImports(text string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{reESImport, reSideEffect, reRequire, reDynamic} {
		out = append(out, submatches(re, text, 1)...)
	}
	return dedupe(out)
}

func goImports(text string) []string {
	out := submatches(reGoImportOne, text, 1)
	for _, block := range submatches(reGoImportList, text, 1) {
		out = append(out, submatches(reQuoted, block, 1)...)
	}
	return dedupe(out)
}

func submatches(re *regexp.Regexp, text string, group int) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > group && m[group] != "" {
			out = append(out, m[group])
		}
	}
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
