package rules

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/spec"
)

// DefaultMaxFileLines is used when the facts carry no maxFileLines value.
const DefaultMaxFileLines = 300

// Built-in rule ids.
const (
	RuleDependencyDirection    = "dependency-direction"
	RuleNoCircularDependencies = "no-circular-dependencies"
	RuleLayerDependencies      = "layer-dependencies"
	RuleMaxFileLength          = "max-file-length"
	RuleNoHardcodedSecrets     = "no-hardcoded-secrets"
	RuleNoBusinessLogic        = "no-business-logic"
	RuleInputValidation        = "input-validation"
	RuleExplicitErrorHandling  = "explicit-error-handling"
	RuleNoCatchAll             = "no-catch-all"
	RuleSQLInjectionPrevention = "sql-injection-prevention"
	RulePublicAPIDocumentation = "public-api-documentation"
	RuleUnitTestCoverage       = "unit-test-coverage"
	RuleNamingSuffix           = "naming-suffix"
	RuleNoDatabaseImports      = "no-database-imports"
	RuleNoHTTPImports          = "no-http-imports"
)

// HTTPModules lists imports that tie code to an HTTP framework.
var HTTPModules = []string{
	"express",
	"koa",
	"fastify",
	"hapi",
	"@hapi/hapi",
	"@nestjs/platform-express",
	"net/http",
	"github.com/gin-gonic/gin",
	"github.com/labstack/echo/v4",
}

// AssertedValuePrefix prefixes host-supplied boolean facts that decide a rule
// without a predicate, e.g. rule.dto-returns = true.
const AssertedValuePrefix = "rule."

// Builtin returns a table holding every built-in predicate.
func Builtin() *Table {
	t := NewTable()
	t.MustRegister(RuleDependencyDirection, dependencyDirection)
	t.MustRegister(RuleNoCircularDependencies, noCircularDependencies)
	t.MustRegister(RuleLayerDependencies, layerDependencies)
	t.MustRegister(RuleMaxFileLength, maxFileLength)
	t.MustRegister(RuleNoHardcodedSecrets, patternAbsent(facts.PatternSecret, "hard-coded credential"))
	t.MustRegister(RuleNoBusinessLogic, patternAbsent(facts.PatternDataAccess, "direct data access"))
	t.MustRegister(RuleInputValidation, patternPresent(facts.PatternValidation, "input validation"))
	t.MustRegister(RuleExplicitErrorHandling, patternPresent(facts.PatternErrorHandling, "error handling"))
	t.MustRegister(RuleNoCatchAll, patternAbsent(facts.PatternCatchAll, "empty catch block"))
	t.MustRegister(RuleSQLInjectionPrevention, patternAbsent(facts.PatternSQLConcat, "SQL built by string concatenation"))
	t.MustRegister(RulePublicAPIDocumentation, publicAPIDocumentation)
	t.MustRegister(RuleUnitTestCoverage, unitTestCoverage)
	t.MustRegister(RuleNamingSuffix, namingSuffix)
	t.MustRegister(RuleNoDatabaseImports, noDatabaseImports)
	t.MustRegister(RuleNoHTTPImports, importsAbsent(HTTPModules, "HTTP framework"))
	return t
}

func hasFacts(in Input) bool {
	return len(in.Facts.Layers()) > 0 || len(in.Facts.Edges()) > 0
}

// scopedEdges returns the edges originating in the rule's layer.
func scopedEdges(in Input) []depcheck.Edge {
	edges := in.Facts.Edges()
	if in.Rule.Layer == spec.WildcardLayer {
		return edges
	}
	var out []depcheck.Edge
	for _, e := range edges {
		if e.From == in.Rule.Layer {
			out = append(out, e)
		}
	}
	return out
}

// sources returns the non-test files in scope. Wildcard rules only consider
// files assigned to a layer.
func sources(in Input) []facts.File {
	var out []facts.File
	for _, f := range in.Files() {
		if f.Test || f.Layer == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func scopeLabel(in Input) string {
	if in.Rule.Layer == spec.WildcardLayer {
		return "any layer"
	}
	return "layer " + in.Rule.Layer
}

func dependencyDirection(in Input) Outcome {
	if in.Spec.Base.DependencyFlow != spec.FlowUnidirectional {
		return Pass("dependency flow is %s", in.Spec.Base.DependencyFlow)
	}
	if !hasFacts(in) {
		return Unevaluable("facts describe no layers or edges")
	}
	report := depcheck.CheckGraph(in.Spec, scopedEdges(in))
	var evidence []string
	for _, v := range report.ByKind(depcheck.KindDirection) {
		evidence = append(evidence, v.String())
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d edge(s) point against %s", len(evidence), strings.Join(in.Spec.Base.Layers, " -> "))
	}
	return Pass("%d edge(s) follow the layer order", len(report.Edges))
}

func noCircularDependencies(in Input) Outcome {
	if !hasFacts(in) {
		return Unevaluable("facts describe no layers or edges")
	}
	var evidence []string
	for _, cycle := range depcheck.Cycles(in.Facts.Edges()) {
		if in.Rule.Layer != spec.WildcardLayer && !contains(cycle, in.Rule.Layer) {
			continue
		}
		evidence = append(evidence, strings.Join(cycle, " <-> "))
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d import cycle(s) found", len(evidence))
	}
	return Pass("no import cycles")
}

func layerDependencies(in Input) Outcome {
	if !hasFacts(in) {
		return Unevaluable("facts describe no layers or edges")
	}
	report := depcheck.CheckGraph(in.Spec, scopedEdges(in))
	var evidence []string
	for _, v := range report.Violations {
		if v.Kind == depcheck.KindForbidden || v.Kind == depcheck.KindNotAllowed {
			evidence = append(evidence, v.String())
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d import(s) break the allow-lists of %s", len(evidence), scopeLabel(in))
	}
	return Pass("%d edge(s) respect the allow-lists", len(report.Edges))
}

func maxFileLength(in Input) Outcome {
	files := sources(in)
	if len(files) == 0 {
		return Unevaluable("no source files in %s", scopeLabel(in))
	}
	limit := DefaultMaxFileLines
	if v, ok := in.Facts.Value(facts.ValueMaxFileLines); ok {
		if n, ok := toInt(v); ok && n > 0 {
			limit = n
		}
	}
	var evidence []string
	for _, f := range files {
		if f.Lines > limit {
			evidence = append(evidence, fmt.Sprintf("%s (%d lines)", f.Path, f.Lines))
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d file(s) exceed %d lines", len(evidence), limit)
	}
	return Pass("%d file(s) within %d lines", len(files), limit)
}

func patternAbsent(pattern, what string) Predicate {
	return func(in Input) Outcome {
		files := sources(in)
		if len(files) == 0 {
			return Unevaluable("no source files in %s", scopeLabel(in))
		}
		var evidence []string
		for _, f := range files {
			if n := f.Count(pattern); n > 0 {
				evidence = append(evidence, fmt.Sprintf("%s (%d)", f.Path, n))
			}
		}
		if len(evidence) > 0 {
			return Fail(evidence, "%s found in %d file(s)", what, len(evidence))
		}
		return Pass("no %s in %d file(s)", what, len(files))
	}
}

func patternPresent(pattern, what string) Predicate {
	return func(in Input) Outcome {
		files := sources(in)
		if len(files) == 0 {
			return Unevaluable("no source files in %s", scopeLabel(in))
		}
		var evidence []string
		for _, f := range files {
			if f.Count(pattern) == 0 {
				evidence = append(evidence, f.Path)
			}
		}
		if len(evidence) > 0 {
			return Fail(evidence, "%d file(s) lack %s", len(evidence), what)
		}
		return Pass("%s present in %d file(s)", what, len(files))
	}
}

func publicAPIDocumentation(in Input) Outcome {
	files := sources(in)
	if len(files) == 0 {
		return Unevaluable("no source files in %s", scopeLabel(in))
	}
	var evidence []string
	for _, f := range files {
		if undocumented := len(f.Symbols) - f.Count(facts.PatternDocComment); undocumented > 0 {
			evidence = append(evidence, fmt.Sprintf("%s (%d of %d exports undocumented)", f.Path, undocumented, len(f.Symbols)))
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d file(s) export undocumented symbols", len(evidence))
	}
	return Pass("exports documented in %d file(s)", len(files))
}

func unitTestCoverage(in Input) Outcome {
	files := sources(in)
	if len(files) == 0 {
		return Unevaluable("no source files in %s", scopeLabel(in))
	}
	var tests []facts.File
	for _, f := range in.Facts.Files(spec.WildcardLayer) {
		if f.Test {
			tests = append(tests, f)
		}
	}
	var evidence []string
	for _, f := range files {
		if !hasTest(f, tests) {
			evidence = append(evidence, f.Path)
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d file(s) have no test", len(evidence))
	}
	return Pass("%d file(s) have tests", len(files))
}

func hasTest(src facts.File, tests []facts.File) bool {
	stem := src.Stem()
	for _, t := range tests {
		ts := t.Stem()
		if strings.HasPrefix(ts, stem+".") || strings.HasPrefix(ts, stem+"_") {
			return true
		}
	}
	return false
}

func namingSuffix(in Input) Outcome {
	files := sources(in)
	if len(files) == 0 {
		return Unevaluable("no source files in %s", scopeLabel(in))
	}
	var evidence []string
	for _, f := range files {
		if !followsNaming(in.Spec, f) {
			evidence = append(evidence, f.Path)
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "%d file(s) do not follow the layer naming pattern", len(evidence))
	}
	return Pass("%d file(s) follow the layer naming pattern", len(files))
}

func followsNaming(s spec.ArchitectureSpec, f facts.File) bool {
	if tpl, ok := s.Templates[f.Layer]; ok {
		if glob := facts.GlobForPattern(tpl.FileNamePattern); glob != "" {
			match, _ := doublestar.Match(glob, f.Path)
			return match
		}
	}
	return strings.Contains(strings.ToLower(path.Base(f.Path)), strings.ToLower(f.Layer))
}

func noDatabaseImports(in Input) Outcome {
	if !hasFacts(in) {
		return Unevaluable("facts describe no layers or edges")
	}
	var evidence []string
	for _, e := range scopedEdges(in) {
		if e.To == "database" {
			evidence = append(evidence, e.String())
		}
	}
	for _, f := range sources(in) {
		for _, imp := range f.Imports {
			if facts.DefaultCategories[imp] == "database" {
				evidence = append(evidence, fmt.Sprintf("%s imports %s", f.Path, imp))
			}
		}
	}
	if len(evidence) > 0 {
		return Fail(evidence, "database access imported from %s", scopeLabel(in))
	}
	return Pass("no database imports in %s", scopeLabel(in))
}

func importsAbsent(modules []string, what string) Predicate {
	return func(in Input) Outcome {
		files := sources(in)
		if len(files) == 0 {
			return Unevaluable("no source files in %s", scopeLabel(in))
		}
		var evidence []string
		for _, f := range files {
			for _, imp := range f.Imports {
				if matchesModule(imp, modules) {
					evidence = append(evidence, fmt.Sprintf("%s imports %s", f.Path, imp))
				}
			}
		}
		if len(evidence) > 0 {
			return Fail(evidence, "%s imported in %s", what, scopeLabel(in))
		}
		return Pass("no %s imports in %s", what, scopeLabel(in))
	}
}

func matchesModule(imp string, modules []string) bool {
	for _, m := range modules {
		if imp == m || strings.HasPrefix(imp, m+"/") {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
