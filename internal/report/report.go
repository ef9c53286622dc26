// Package report renders check results, plans and specs for terminals and
// machine consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/archspec/internal/depcheck"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// Check is the combined outcome of archspec check.
type Check struct {
	SpecID  string          `json:"specId"`
	Root    string          `json:"root,omitempty"`
	Results []rules.Result  `json:"results"`
	Summary rules.Summary   `json:"summary"`
	Graph   depcheck.Report `json:"dependencies"`
}

// NewCheck assembles a Check and its summary.
func NewCheck(specID, root string, results []rules.Result, graph depcheck.Report) Check {
	return Check{SpecID: specID, Root: root, Results: results, Summary: rules.Summarize(results), Graph: graph}
}

// Failing reports whether any rule at or above min failed or any dependency
// violation was found.
func (c Check) Failing(min spec.Severity) bool {
	return len(rules.Failed(c.Results, min)) > 0 || !c.Graph.OK()
}

// WriteJSON encodes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteCheck renders c in the requested format.
func WriteCheck(w io.Writer, c Check, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, c)
	}
	var sb strings.Builder
	title := fmt.Sprintf("%s · %s", c.SpecID, c.Root)
	if c.Root == "" {
		title = c.SpecID
	}
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n\n")
	for _, r := range c.Results {
		sb.WriteString(resultLine(r))
		sb.WriteString("\n")
		if r.Status == rules.StatusFail {
			for _, ev := range r.Evidence {
				sb.WriteString(detailStyle.Render("      " + ev))
				sb.WriteString("\n")
			}
		}
	}
	if len(c.Graph.Violations) > 0 || len(c.Graph.Cycles) > 0 {
		sb.WriteString("\n")
		sb.WriteString(headerStyle.Render(fmt.Sprintf("Dependencies (%d edge(s))", len(c.Graph.Edges))))
		sb.WriteString("\n")
		for _, v := range c.Graph.Violations {
			sb.WriteString(failStyle.Render("  ✗ "))
			sb.WriteString(v.String())
			sb.WriteString("\n")
		}
		for _, cycle := range c.Graph.Cycles {
			sb.WriteString(warnStyle.Render("  ↻ "))
			sb.WriteString(strings.Join(cycle, " <-> "))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(summaryStyle.Render(summaryLine(c.Summary, len(c.Graph.Violations))))
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func resultLine(r rules.Result) string {
	var label string
	switch r.Status {
	case rules.StatusPass:
		label = passStyle.Render("PASS")
	case rules.StatusFail:
		if r.Severity == spec.SeverityError {
			label = failStyle.Render("FAIL")
		} else {
			label = warnStyle.Render("WARN")
		}
	default:
		label = skipStyle.Render("N/A ")
	}
	id := r.RuleID
	if id == "" {
		id = "(unnamed)"
	}
	line := fmt.Sprintf("%s %-7s %-28s [%s] %s", label, r.Severity, id, r.Layer, r.Rule)
	if r.Detail != "" {
		line += detailStyle.Render(" · " + r.Detail)
	}
	return line
}

func summaryLine(sum rules.Summary, violations int) string {
	parts := []string{
		fmt.Sprintf("%d rule(s)", sum.Total),
		fmt.Sprintf("%d passed", sum.Passed),
		fmt.Sprintf("%d failed", sum.Failed),
		fmt.Sprintf("%d unevaluable", sum.Unevaluable),
		fmt.Sprintf("%d dependency violation(s)", violations),
	}
	return strings.Join(parts, " · ")
}

// WritePlan renders planned steps as a checklist or JSON.
func WritePlan(w io.Writer, taskID string, steps []planner.PlannedStep, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, struct {
			Task  string                `json:"task"`
			Steps []planner.PlannedStep `json:"steps"`
		}{taskID, steps})
	}
	out := headerStyle.Render(taskID) + "\n\n" + planner.Checklist(steps)
	_, err := io.WriteString(w, out)
	return err
}

// SpecDetail renders a human-readable description of s.
func SpecDetail(s spec.ArchitectureSpec) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(s.Name))
	sb.WriteString(detailStyle.Render(fmt.Sprintf("  (%s)", s.ID)))
	sb.WriteString("\n")
	if s.Description != "" {
		sb.WriteString(s.Description + "\n")
	}
	fmt.Fprintf(&sb, "\nFlow: %s (%s)\n", strings.Join(s.Base.Layers, " → "), s.Base.DependencyFlow)

	section := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(headerStyle.Render(title))
		sb.WriteString("\n")
	}
	section("Layers")
	for _, layer := range s.Layers {
		fmt.Fprintf(&sb, "  %s", layer.Name)
		if layer.Purpose != "" {
			sb.WriteString(detailStyle.Render(" · " + layer.Purpose))
		}
		sb.WriteString("\n")
		if len(layer.Dependencies.CanImport) > 0 {
			fmt.Fprintf(&sb, "    can import:    %s\n", strings.Join(layer.Dependencies.CanImport, ", "))
		}
		if len(layer.Dependencies.CannotImport) > 0 {
			fmt.Fprintf(&sb, "    cannot import: %s\n", strings.Join(layer.Dependencies.CannotImport, ", "))
		}
	}
	if len(s.Options) > 0 {
		section("Options")
		keys := make([]string, 0, len(s.Options))
		for key := range s.Options {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			opt := s.Options[key]
			fmt.Fprintf(&sb, "  %s: %s (default %s)\n", key, strings.Join(opt.Choices, " | "), opt.Default)
		}
	}
	if len(s.Templates) > 0 {
		section("Templates")
		keys := make([]string, 0, len(s.Templates))
		for key := range s.Templates {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			tpl := s.Templates[key]
			line := fmt.Sprintf("  %s → %s", key, tpl.FileNamePattern)
			if len(tpl.DataAccessVariants) > 0 {
				variants := make([]string, 0, len(tpl.DataAccessVariants))
				for v := range tpl.DataAccessVariants {
					variants = append(variants, v)
				}
				sort.Strings(variants)
				line += detailStyle.Render(" · variants: " + strings.Join(variants, ", "))
			}
			sb.WriteString(line + "\n")
		}
	}
	if rs := s.Rules.AllRules(); len(rs) > 0 {
		section("Rules")
		for _, r := range s.Rules.Required {
			fmt.Fprintf(&sb, "  must     %-7s [%s] %s\n", r.Severity, r.Layer, r.Rule)
		}
		for _, r := range s.Rules.Forbidden {
			fmt.Fprintf(&sb, "  must not %-7s [%s] %s\n", r.Severity, r.Layer, r.Rule)
		}
	}
	if len(s.TaskTemplates) > 0 {
		section("Tasks")
		for _, task := range s.TaskTemplates {
			fmt.Fprintf(&sb, "  %s (%d step(s))", task.ID, len(task.Steps))
			if task.Description != "" {
				sb.WriteString(detailStyle.Render(" · " + task.Description))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
