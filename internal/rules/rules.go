// Package rules evaluates an architecture's required and forbidden rules
// against facts about a codebase.
//
// Rules are matched to predicates by id through a Table. A rule without a
// registered predicate is reported as unevaluable, never as passing. Every
// rule is always evaluated; a failing or panicking predicate never stops the
// batch.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/spec"
)

// Status is the outcome of evaluating one rule.
type Status string

const (
	StatusPass        Status = "pass"
	StatusFail        Status = "fail"
	StatusUnevaluable Status = "unevaluable"
)

// Kind records which rule set a rule came from.
type Kind string

const (
	KindRequired  Kind = "required"
	KindForbidden Kind = "forbidden"
)

// Facts is the fact-provider capability the evaluator consumes.
type Facts interface {
	Layers() []string
	Files(layer string) []facts.File
	Edges() []depcheck.Edge
	Value(key string) (any, bool)
}

// Input is handed to a predicate.
type Input struct {
	Spec  spec.ArchitectureSpec
	Rule  spec.Rule
	Kind  Kind
	Facts Facts
}

// Layers returns the layers the rule is scoped to: the rule's layer, or
// every layer of the spec for the wildcard.
func (in Input) Layers() []string {
	if in.Rule.Layer != spec.WildcardLayer {
		return []string{in.Rule.Layer}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, name := range append(append([]string(nil), in.Spec.Base.Layers...), in.Spec.LayerNames()...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Files returns the files in scope for the rule.
func (in Input) Files() []facts.File {
	if in.Rule.Layer == spec.WildcardLayer {
		return in.Facts.Files(spec.WildcardLayer)
	}
	return in.Facts.Files(in.Rule.Layer)
}

// Outcome is what a predicate returns.
type Outcome struct {
	Status   Status
	Detail   string
	Evidence []string
}

// Pass reports a satisfied rule.
func Pass(format string, args ...any) Outcome {
	return Outcome{Status: StatusPass, Detail: fmt.Sprintf(format, args...)}
}

// Fail reports a broken rule with the offending locations.
func Fail(evidence []string, format string, args ...any) Outcome {
	return Outcome{Status: StatusFail, Detail: fmt.Sprintf(format, args...), Evidence: evidence}
}

// Unevaluable reports that the facts cannot decide the rule.
func Unevaluable(format string, args ...any) Outcome {
	return Outcome{Status: StatusUnevaluable, Detail: fmt.Sprintf(format, args...)}
}

// Predicate decides one rule.
type Predicate func(Input) Outcome

// Table maps rule ids to predicates.
type Table struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{predicates: map[string]Predicate{}}
}

// Register installs a predicate. Returns an error if the id already exists.
func (t *Table) Register(id string, p Predicate) error {
	if id == "" {
		return fmt.Errorf("rules: id is required")
	}
	if p == nil {
		return fmt.Errorf("rules: predicate is required for %s", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.predicates[id]; exists {
		return fmt.Errorf("rules: %s already registered", id)
	}
	t.predicates[id] = p
	return nil
}

// MustRegister panics if registration fails.
func (t *Table) MustRegister(id string, p Predicate) {
	if err := t.Register(id, p); err != nil {
		panic(err)
	}
}

// Lookup returns the predicate for a rule id.
func (t *Table) Lookup(id string) (Predicate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.predicates[id]
	return p, ok
}

// IDs returns the registered rule ids in sorted order.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.predicates))
	for id := range t.predicates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Result is the evaluation of one rule.
type Result struct {
	RuleID   string        `json:"ruleId"`
	Layer    string        `json:"layer"`
	Kind     Kind          `json:"kind"`
	Rule     string        `json:"rule"`
	Severity spec.Severity `json:"severity"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail"`
	Evidence []string      `json:"evidence,omitempty"`
}

// Evaluate runs every rule of s against f using the built-in predicates.
func Evaluate(s spec.ArchitectureSpec, f Facts) []Result {
	return Builtin().Evaluate(s, f)
}

// Evaluate returns exactly one result per rule, required rules first, each
// set in declaration order.
func (t *Table) Evaluate(s spec.ArchitectureSpec, f Facts) []Result {
	if f == nil {
		f = facts.NewSet()
	}
	results := make([]Result, 0, len(s.Rules.Required)+len(s.Rules.Forbidden))
	for _, rule := range s.Rules.Required {
		results = append(results, t.evaluate(s, rule, KindRequired, f))
	}
	for _, rule := range s.Rules.Forbidden {
		results = append(results, t.evaluate(s, rule, KindForbidden, f))
	}
	return results
}

func (t *Table) evaluate(s spec.ArchitectureSpec, rule spec.Rule, kind Kind, f Facts) (res Result) {
	res = Result{
		RuleID:   rule.ID,
		Layer:    rule.Layer,
		Kind:     kind,
		Rule:     rule.Rule,
		Severity: rule.Severity,
	}
	if rule.ID == "" {
		res.Status = StatusUnevaluable
		res.Detail = "rule has no id"
		return res
	}
	predicate, ok := t.Lookup(rule.ID)
	if !ok {
		if v, found := f.Value(AssertedValuePrefix + rule.ID); found {
			if holds, isBool := v.(bool); isBool {
				res.Status = StatusFail
				res.Detail = "asserted by host facts"
				if holds {
					res.Status = StatusPass
				}
				return res
			}
		}
		res.Status = StatusUnevaluable
		res.Detail = fmt.Sprintf("no predicate registered for %s", rule.ID)
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusUnevaluable
			res.Detail = fmt.Sprintf("predicate %s panicked: %v", rule.ID, r)
			res.Evidence = nil
		}
	}()
	out := predicate(Input{Spec: s, Rule: rule, Kind: kind, Facts: f})
	if out.Status == "" {
		out.Status = StatusUnevaluable
	}
	res.Status = out.Status
	res.Detail = out.Detail
	res.Evidence = out.Evidence
	return res
}

// Summary aggregates results.
type Summary struct {
	Total       int                   `json:"total"`
	Passed      int                   `json:"passed"`
	Failed      int                   `json:"failed"`
	Unevaluable int                   `json:"unevaluable"`
	BySeverity  map[spec.Severity]int `json:"failedBySeverity,omitempty"`
}

// Summarize counts results by status and failed results by severity.
func Summarize(results []Result) Summary {
	sum := Summary{Total: len(results), BySeverity: map[spec.Severity]int{}}
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			sum.Passed++
		case StatusFail:
			sum.Failed++
			sum.BySeverity[r.Severity]++
		default:
			sum.Unevaluable++
		}
	}
	return sum
}

// Failed returns the failed results whose severity is at least min.
func Failed(results []Result, min spec.Severity) []Result {
	var out []Result
	for _, r := range results {
		if r.Status == StatusFail && r.Severity.Rank() >= min.Rank() {
			out = append(out, r)
		}
	}
	return out
}
