package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/archspec/internal/report"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleActive  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type section int

const (
	sectionOverview section = iota
	sectionRules
	sectionTasks
	sectionGuidance
	sectionCount
)

func (s section) String() string {
	switch s {
	case sectionOverview:
		return "Overview"
	case sectionRules:
		return "Rules"
	case sectionTasks:
		return "Tasks"
	case sectionGuidance:
		return "Guidance"
	}
	return "?"
}

type specView struct {
	app      *App
	spec     spec.ArchitectureSpec
	results  []rules.Result
	loaded   bool
	section  section
	viewport viewport.Model
}

func newSpecView(app *App) *specView {
	return &specView{app: app, viewport: viewport.New(60, 20)}
}

// SetSpec swaps the displayed spec and resets scrolling.
func (v *specView) SetSpec(s spec.ArchitectureSpec, results []rules.Result) {
	v.spec = s
	v.results = results
	v.loaded = true
	v.refresh()
}

func (v *specView) SetSize(width, height int) {
	v.viewport.Width = width
	v.viewport.Height = height
	v.refresh()
}

func (v *specView) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "right", "l":
			v.section = (v.section + 1) % sectionCount
			v.refresh()
			return nil
		case "left", "h":
			v.section = (v.section + sectionCount - 1) % sectionCount
			v.refresh()
			return nil
		case "1", "2", "3", "4":
			v.section = section(key.String()[0] - '1')
			v.refresh()
			return nil
		}
	}
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return cmd
}

func (v *specView) refresh() {
	v.viewport.SetContent(v.content())
	v.viewport.GotoTop()
}

func (v *specView) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, v.renderTabs(), v.viewport.View())
}

func (v *specView) renderTabs() string {
	tabs := make([]string, 0, sectionCount)
	for s := sectionOverview; s < sectionCount; s++ {
		label := fmt.Sprintf(" %d %s ", s+1, s)
		if s == v.section {
			tabs = append(tabs, labelStyleActive.Underline(true).Render(label))
		} else {
			tabs = append(tabs, labelStyleSkipped.Render(label))
		}
	}
	return strings.Join(tabs, " ") + "\n"
}

func (v *specView) content() string {
	if !v.loaded {
		return detailTextStyle.Render("Select an architecture to inspect it.")
	}
	switch v.section {
	case sectionRules:
		return v.renderRules()
	case sectionTasks:
		return v.renderTasks()
	case sectionGuidance:
		return v.renderGuidance()
	}
	return report.SpecDetail(v.spec)
}

type ruleLabel struct {
	text  string
	style lipgloss.Style
}

func (v *specView) labelFor(idx int, r spec.Rule) ruleLabel {
	if idx >= len(v.results) {
		switch r.Severity {
		case spec.SeverityError:
			return ruleLabel{"error  ", labelStyleBlocked}
		case spec.SeverityWarning:
			return ruleLabel{"warning", labelStyleGate}
		}
		return ruleLabel{"info   ", labelStyleDefault}
	}
	switch v.results[idx].Status {
	case rules.StatusPass:
		return ruleLabel{"pass   ", labelStyleReady}
	case rules.StatusFail:
		if r.Severity == spec.SeverityError {
			return ruleLabel{"fail   ", labelStyleBlocked}
		}
		return ruleLabel{"warn   ", labelStyleGate}
	}
	return ruleLabel{"n/a    ", labelStyleSkipped}
}

func (v *specView) renderRules() string {
	var lines []string
	idx := 0
	write := func(title string, list []spec.Rule) {
		if len(list) == 0 {
			return
		}
		lines = append(lines, labelStyleActive.Render(title))
		for _, r := range list {
			label := v.labelFor(idx, r)
			line := fmt.Sprintf("%s [%s] %s", label.style.Render(label.text), r.Layer, r.Rule)
			lines = append(lines, line)
			if idx < len(v.results) && v.results[idx].Detail != "" {
				lines = append(lines, detailTextStyle.Render("        "+v.results[idx].Detail))
			}
			idx++
		}
		lines = append(lines, "")
	}
	write("Required", v.spec.Rules.Required)
	write("Forbidden", v.spec.Rules.Forbidden)
	if len(v.results) > 0 {
		sum := rules.Summarize(v.results)
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("%d passed · %d failed · %d unevaluable", sum.Passed, sum.Failed, sum.Unevaluable)))
	}
	if len(lines) == 0 {
		return detailTextStyle.Render("No rules declared.")
	}
	return strings.Join(lines, "\n")
}

func (v *specView) renderTasks() string {
	if len(v.spec.TaskTemplates) == 0 {
		return detailTextStyle.Render("No task templates declared.")
	}
	var lines []string
	for _, task := range v.spec.TaskTemplates {
		lines = append(lines, labelStyleActive.Render(task.ID))
		if task.Description != "" {
			lines = append(lines, detailTextStyle.Render(task.Description))
		}
		for _, step := range task.Steps {
			layer := labelStyleDefault.Render(fmt.Sprintf("[%s]", step.Layer))
			if _, ok := v.spec.Layer(step.Layer); ok {
				layer = labelStyleReady.Render(fmt.Sprintf("[%s]", step.Layer))
			}
			lines = append(lines, fmt.Sprintf("  %d. %s %s", step.Order, layer, step.Description))
		}
		for _, c := range task.Constraints {
			lines = append(lines, detailTextStyle.Render("  · "+c))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (v *specView) renderGuidance() string {
	var lines []string
	for _, c := range v.spec.Rules.Conventions {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyleGate.Render(string(c.Aspect)), c.Description))
		for _, ex := range c.Examples {
			lines = append(lines, detailTextStyle.Render("    e.g. "+ex))
		}
	}
	if g := v.spec.AIGuidance; g != nil {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		for _, m := range g.Memories {
			lines = append(lines, "• "+m)
		}
		for _, c := range g.Conventions {
			lines = append(lines, "• "+c)
		}
		for _, ap := range g.AntiPatterns {
			lines = append(lines, labelStyleBlocked.Render("✗ ")+ap)
		}
		keys := make([]string, 0, len(g.PreferredLibraries))
		for k := range g.PreferredLibraries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, detailTextStyle.Render(fmt.Sprintf("%s: %s", k, g.PreferredLibraries[k])))
		}
	}
	if len(lines) == 0 {
		return detailTextStyle.Render("No guidance declared.")
	}
	return strings.Join(lines, "\n")
}
