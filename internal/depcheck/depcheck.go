package depcheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/archspec/internal/spec"
)

// Kind classifies a violation.
type Kind string

const (
	KindUnknownLayer Kind = "unknown-layer"
	KindNotAllowed   Kind = "not-allowed"
	KindForbidden    Kind = "explicitly-forbidden"
	KindDirection    Kind = "dependency-direction"
)

// Edge is a proposed import of To by From.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (e Edge) String() string { return e.From + " -> " + e.To }

// Violation describes one broken dependency constraint.
type Violation struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	From    string `json:"from" yaml:"from"`
	To      string `json:"to" yaml:"to"`
	Message string `json:"message" yaml:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s -> %s: %s", v.Kind, v.From, v.To, v.Message)
}

// CheckImport evaluates a single edge. It returns nil when the import is
// allowed, otherwise one violation per broken invariant.
func CheckImport(s spec.ArchitectureSpec, from, to string) []Violation {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return []Violation{{
			Kind:    KindUnknownLayer,
			From:    from,
			To:      to,
			Message: "edge endpoints must be non-empty",
		}}
	}
	layer, ok := s.Layer(from)
	if !ok {
		return []Violation{{
			Kind:    KindUnknownLayer,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("layer %s is not declared by %s", from, s.ID),
		}}
	}
	if from == to {
		return nil
	}
	var out []Violation
	switch {
	case layer.Dependencies.Forbids(to):
		out = append(out, Violation{
			Kind:    KindForbidden,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("%s must not import %s", from, to),
		})
	case !layer.Dependencies.Allows(to):
		out = append(out, Violation{
			Kind:    KindNotAllowed,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("%s is not in the allow-list of %s", to, from),
		})
	}
	if s.Base.DependencyFlow == spec.FlowUnidirectional {
		fromIdx, toIdx := s.LayerIndex(from), s.LayerIndex(to)
		if fromIdx >= 0 && toIdx >= 0 && toIdx < fromIdx {
			out = append(out, Violation{
				Kind:    KindDirection,
				From:    from,
				To:      to,
				Message: fmt.Sprintf("dependencies flow %s; %s may not import the earlier layer %s", strings.Join(s.Base.Layers, " -> "), from, to),
			})
		}
	}
	return out
}

// FirstViolation returns the first violation CheckImport reports, or nil.
// Allow-list violations come before direction violations.
func FirstViolation(s spec.ArchitectureSpec, from, to string) *Violation {
	violations := CheckImport(s, from, to)
	if len(violations) == 0 {
		return nil
	}
	return &violations[0]
}

// Allowed reports whether the edge passes every check.
func Allowed(s spec.ArchitectureSpec, from, to string) bool {
	return len(CheckImport(s, from, to)) == 0
}

// Report is the outcome of checking a batch of edges.
type Report struct {
	SpecID     string      `json:"specId"`
	Edges      []Edge      `json:"edges"`
	Violations []Violation `json:"violations"`
	Cycles     [][]string  `json:"cycles,omitempty"`
}

// OK reports whether no violations were found.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// ByKind returns the violations of a given kind.
func (r Report) ByKind(kind Kind) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// ForLayer returns the violations originating in layer.
func (r Report) ForLayer(layer string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.From == layer {
			out = append(out, v)
		}
	}
	return out
}

// CheckGraph evaluates every edge and returns all violations. Duplicate edges
// are collapsed and edges are processed in sorted order so the report is
// deterministic for any input ordering.
func CheckGraph(s spec.ArchitectureSpec, edges []Edge) Report {
	unique := Normalize(edges)
	report := Report{SpecID: s.ID, Edges: unique}
	for _, edge := range unique {
		report.Violations = append(report.Violations, CheckImport(s, edge.From, edge.To)...)
	}
	report.Cycles = Cycles(unique)
	return report
}

// Normalize trims, de-duplicates and sorts edges.
func Normalize(edges []Edge) []Edge {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[Edge]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		e = Edge{From: strings.TrimSpace(e.From), To: strings.TrimSpace(e.To)}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
