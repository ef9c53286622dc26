package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

func sampleCheck() Check {
	results := []rules.Result{
		{RuleID: "layer-dependencies", Layer: "*", Kind: rules.KindRequired, Rule: "Respect layer boundaries", Severity: spec.SeverityError, Status: rules.StatusFail, Detail: "1 forbidden edge", Evidence: []string{"controller -> repository"}},
		{RuleID: "max-file-length", Layer: "*", Kind: rules.KindRequired, Rule: "Keep files short", Severity: spec.SeverityWarning, Status: rules.StatusFail, Detail: "src/big.ts has 700 lines"},
		{RuleID: "input-validation", Layer: "controller", Kind: rules.KindRequired, Rule: "Validate input", Severity: spec.SeverityError, Status: rules.StatusPass},
		{RuleID: "dto-returns", Layer: "service", Kind: rules.KindRequired, Rule: "Return DTOs", Severity: spec.SeverityError, Status: rules.StatusUnevaluable},
	}
	graph := depcheck.Report{
		SpecID:     "csr",
		Edges:      []depcheck.Edge{{From: "controller", To: "repository"}},
		Violations: []depcheck.Violation{{From: "controller", To: "repository", Kind: depcheck.KindNotAllowed, Message: "controller cannot import repository"}},
	}
	return NewCheck("csr", "src", results, graph)
}

func TestWriteCheckText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCheck(&buf, sampleCheck(), FormatText); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"FAIL", "WARN", "PASS", "N/A",
		"layer-dependencies",
		"controller -> repository",
		"4 rule(s)",
		"2 failed",
		"1 unevaluable",
		"1 dependency violation(s)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCheckJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCheck(&buf, sampleCheck(), FormatJSON); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded struct {
		SpecID  string        `json:"specId"`
		Summary rules.Summary `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if decoded.SpecID != "csr" || decoded.Summary.Failed != 2 || decoded.Summary.BySeverity[spec.SeverityWarning] != 1 {
		t.Fatalf("unexpected decoded check: %+v", decoded)
	}
}

func TestFailingThreshold(t *testing.T) {
	c := sampleCheck()
	if !c.Failing(spec.SeverityError) {
		t.Fatalf("expected failing at error")
	}
	c.Results = c.Results[1:]
	c.Graph.Violations = nil
	if c.Failing(spec.SeverityError) {
		t.Fatalf("warning-only failure should pass an error threshold")
	}
	if !c.Failing(spec.SeverityWarning) {
		t.Fatalf("warning failure should fail a warning threshold")
	}
}

func TestWritePlan(t *testing.T) {
	steps := []planner.PlannedStep{
		{Order: 1, Layer: "dto", Description: "Create the DTO interfaces for Order"},
		{Order: 2, Layer: "controller", Description: "Create /orders controller endpoints", Violations: []depcheck.Violation{{From: "controller", To: "repository", Kind: depcheck.KindNotAllowed}}},
	}
	var buf bytes.Buffer
	if err := WritePlan(&buf, "add-crud-endpoint", steps, FormatText); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "- [ ] 2. [controller] Create /orders controller endpoints (blocked)") {
		t.Fatalf("unexpected plan:\n%s", buf.String())
	}

	buf.Reset()
	if err := WritePlan(&buf, "add-crud-endpoint", steps, FormatJSON); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if !strings.Contains(buf.String(), `"task": "add-crud-endpoint"`) {
		t.Fatalf("unexpected json plan:\n%s", buf.String())
	}
}

func TestSpecDetail(t *testing.T) {
	s := spec.ArchitectureSpec{
		ID:   "csr",
		Name: "Controller Service Repository",
		Base: spec.Base{Layers: []string{"controller", "service"}, DependencyFlow: spec.FlowUnidirectional},
		Options: map[string]spec.Option{
			"servicePattern": {Choices: []string{"class", "functional"}, Default: "class"},
		},
		Layers: []spec.LayerSpec{
			{Name: "controller", Purpose: "HTTP handling", Dependencies: spec.Dependencies{CanImport: []string{"service"}, CannotImport: []string{"database"}}},
			{Name: "service"},
		},
		Templates: map[string]spec.LayerTemplate{
			"service": {FileNamePattern: "{resourceName}.service.ts", Template: "x", DataAccessVariants: map[string]string{"prisma": "y"}},
		},
		Rules:         spec.Rules{Required: []spec.Rule{{ID: "r1", Rule: "Handle errors", Layer: "controller", Severity: spec.SeverityError}}},
		TaskTemplates: []spec.TaskTemplate{{ID: "add-crud-endpoint", Steps: []spec.TaskStep{{Order: 1}}}},
	}
	out := SpecDetail(s)
	for _, want := range []string{
		"controller → service",
		"can import:    service",
		"cannot import: database",
		"servicePattern: class | functional (default class)",
		"variants: prisma",
		"must     error   [controller] Handle errors",
		"add-crud-endpoint (1 step(s))",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("detail missing %q:\n%s", want, out)
		}
	}
}
