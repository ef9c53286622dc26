package rules

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/spec"
)

func csrSpec(required, forbidden []spec.Rule) spec.ArchitectureSpec {
	return spec.ArchitectureSpec{
		ID:   "controller-service-repository",
		Name: "Controller Service Repository",
		Base: spec.Base{Layers: []string{"controller", "service", "repository"}, DependencyFlow: spec.FlowUnidirectional},
		Layers: []spec.LayerSpec{
			{Name: "controller", Dependencies: spec.Dependencies{CanImport: []string{"service"}, CannotImport: []string{"repository", "database"}}},
			{Name: "service", Dependencies: spec.Dependencies{CanImport: []string{"repository"}, CannotImport: []string{"controller"}}},
			{Name: "repository", Dependencies: spec.Dependencies{CanImport: []string{"database"}}},
		},
		Templates: map[string]spec.LayerTemplate{
			"controller": {FileNamePattern: "{resource}.controller.ts", Template: "x"},
		},
		Rules: spec.Rules{Required: required, Forbidden: forbidden},
	}
}

func rule(id, layer string, sev spec.Severity) spec.Rule {
	return spec.Rule{ID: id, Layer: layer, Rule: id, Severity: sev}
}

func statuses(results []Result) []Status {
	out := make([]Status, 0, len(results))
	for _, r := range results {
		out = append(out, r.Status)
	}
	return out
}

func cleanProject() *facts.Set {
	set := facts.NewSet(
		facts.File{Path: "src/order.controller.ts", Layer: "controller", Lines: 40, Imports: []string{"express", "./order.service"}, Symbols: []string{"OrderController"}, Patterns: map[string]int{facts.PatternValidation: 2, facts.PatternErrorHandling: 1, facts.PatternDocComment: 1}},
		facts.File{Path: "src/order.service.ts", Layer: "service", Lines: 60, Patterns: map[string]int{facts.PatternErrorHandling: 1}},
		facts.File{Path: "src/order.repository.ts", Layer: "repository", Lines: 80, Imports: []string{"@prisma/client"}, Patterns: map[string]int{facts.PatternDataAccess: 3, facts.PatternErrorHandling: 1}},
		facts.File{Path: "src/order.controller.test.ts", Test: true, Lines: 20},
	)
	set.AddEdge("controller", "service")
	set.AddEdge("service", "repository")
	set.AddEdge("repository", "database")
	return set
}

func TestEvaluateOneResultPerRuleInOrder(t *testing.T) {
	s := csrSpec(
		[]spec.Rule{
			rule(RuleInputValidation, "controller", spec.SeverityError),
			rule("interface-dependencies", "*", spec.SeverityWarning),
			rule(RuleDependencyDirection, "*", spec.SeverityError),
		},
		[]spec.Rule{
			rule(RuleNoBusinessLogic, "controller", spec.SeverityError),
			{Layer: "service", Rule: "no id here", Severity: spec.SeverityInfo},
			rule(RuleNoHTTPImports, "service", spec.SeverityError),
		},
	)
	results := Evaluate(s, cleanProject())
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	gotIDs := make([]string, 0, len(results))
	for _, r := range results {
		gotIDs = append(gotIDs, r.RuleID)
	}
	wantIDs := []string{RuleInputValidation, "interface-dependencies", RuleDependencyDirection, RuleNoBusinessLogic, "", RuleNoHTTPImports}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	want := []Status{StatusPass, StatusUnevaluable, StatusPass, StatusPass, StatusUnevaluable, StatusPass}
	if diff := cmp.Diff(want, statuses(results)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if results[3].Kind != KindForbidden || results[0].Kind != KindRequired {
		t.Fatalf("unexpected kinds: %+v", results)
	}
}

func TestEvaluateDetectsFailures(t *testing.T) {
	set := cleanProject()
	set.AddFile(facts.File{Path: "src/invoice.controller.ts", Layer: "controller", Lines: 400, Imports: []string{"pg"}, Patterns: map[string]int{facts.PatternDataAccess: 1, facts.PatternSecret: 1}})
	set.AddFile(facts.File{Path: "src/billing.ts", Layer: "service", Lines: 10, Imports: []string{"express"}})
	set.AddEdge("repository", "controller")
	set.AddEdge("controller", "repository")
	s := csrSpec(
		[]spec.Rule{
			rule(RuleInputValidation, "controller", spec.SeverityError),
			rule(RuleMaxFileLength, "*", spec.SeverityWarning),
			rule(RuleDependencyDirection, "*", spec.SeverityError),
			rule(RuleNoCircularDependencies, "*", spec.SeverityError),
			rule(RuleLayerDependencies, "controller", spec.SeverityError),
			rule(RuleNamingSuffix, "controller", spec.SeverityInfo),
		},
		[]spec.Rule{
			rule(RuleNoBusinessLogic, "controller", spec.SeverityError),
			rule(RuleNoHardcodedSecrets, "*", spec.SeverityError),
			rule(RuleNoHTTPImports, "service", spec.SeverityError),
			rule(RuleNoDatabaseImports, "controller", spec.SeverityError),
		},
	)
	results := Evaluate(s, set)
	for _, r := range results {
		if r.Status != StatusFail && r.RuleID != RuleNamingSuffix {
			t.Fatalf("expected %s to fail, got %s (%s)", r.RuleID, r.Status, r.Detail)
		}
	}
	if results[5].Status != StatusPass {
		t.Fatalf("controller files follow naming, got %s: %v", results[5].Status, results[5].Evidence)
	}
	if !strings.Contains(strings.Join(results[1].Evidence, ","), "src/invoice.controller.ts (400 lines)") {
		t.Fatalf("unexpected evidence: %v", results[1].Evidence)
	}
	sum := Summarize(results)
	if sum.Total != 10 || sum.Failed != 9 || sum.Passed != 1 || sum.BySeverity[spec.SeverityError] != 8 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n := len(Failed(results, spec.SeverityError)); n != 8 {
		t.Fatalf("expected 8 error failures, got %d", n)
	}
	if n := len(Failed(results, spec.SeverityInfo)); n != 9 {
		t.Fatalf("expected 9 failures at info and above, got %d", n)
	}
}

func TestEvaluateRecoversFromPanics(t *testing.T) {
	table := NewTable()
	table.MustRegister("explodes", func(Input) Outcome { panic("boom") })
	table.MustRegister("fine", func(Input) Outcome { return Pass("ok") })
	s := csrSpec([]spec.Rule{rule("explodes", "*", spec.SeverityError), rule("fine", "*", spec.SeverityError)}, nil)
	results := table.Evaluate(s, nil)
	if diff := cmp.Diff([]Status{StatusUnevaluable, StatusPass}, statuses(results)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if !strings.Contains(results[0].Detail, "boom") {
		t.Fatalf("expected panic detail, got %q", results[0].Detail)
	}
}

func TestEvaluateWithoutFactsIsUnevaluable(t *testing.T) {
	s := csrSpec([]spec.Rule{rule(RuleInputValidation, "controller", spec.SeverityError), rule(RuleDependencyDirection, "*", spec.SeverityError)}, nil)
	results := Evaluate(s, facts.NewSet())
	if diff := cmp.Diff([]Status{StatusUnevaluable, StatusUnevaluable}, statuses(results)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
}

func TestAssertedHostFacts(t *testing.T) {
	set := facts.NewSet()
	set.SetValue(AssertedValuePrefix+"dto-returns", false)
	set.SetValue(AssertedValuePrefix+"transaction-boundaries", true)
	s := csrSpec([]spec.Rule{
		rule("dto-returns", "repository", spec.SeverityWarning),
		rule("transaction-boundaries", "service", spec.SeverityWarning),
	}, nil)
	if diff := cmp.Diff([]Status{StatusFail, StatusPass}, statuses(Evaluate(s, set))); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
}

func TestUnitTestCoverage(t *testing.T) {
	s := csrSpec([]spec.Rule{rule(RuleUnitTestCoverage, "controller", spec.SeverityWarning), rule(RuleUnitTestCoverage, "service", spec.SeverityWarning)}, nil)
	results := Evaluate(s, cleanProject())
	if diff := cmp.Diff([]Status{StatusPass, StatusFail}, statuses(results)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
}

func TestTableRegister(t *testing.T) {
	table := Builtin()
	if err := table.Register(RuleMaxFileLength, func(Input) Outcome { return Pass("") }); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := table.Register("", nil); err == nil {
		t.Fatalf("expected empty id to fail")
	}
	if _, ok := table.Lookup(RuleNoHTTPImports); !ok {
		t.Fatalf("expected built-in predicate")
	}
	if len(table.IDs()) != 15 {
		t.Fatalf("expected 15 built-in predicates, got %d", len(table.IDs()))
	}
}
