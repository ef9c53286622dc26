package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/archspec/internal/catalog"
	"github.com/kingrea/archspec/internal/facts"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

func newTestApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	reg, err := registry.Load(context.Background(), []registry.Source{catalog.Builtin()})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	app := NewApp(reg, opts...)
	send(app, tea.WindowSizeMsg{Width: 140, Height: 48})
	return app
}

func send(app *App, msg tea.Msg) tea.Cmd {
	_, cmd := app.Update(msg)
	return cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBrowserSelectsFirstSpec(t *testing.T) {
	app := newTestApp(t)
	if app.Selected() != "controller-service-repository" {
		t.Fatalf("expected first spec selected, got %q", app.Selected())
	}
	view := app.View()
	for _, want := range []string{"ARCHITECTURES", "1 Overview", "Flow:"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBrowserMovesSelection(t *testing.T) {
	app := newTestApp(t)
	send(app, tea.KeyMsg{Type: tea.KeyDown})
	if app.Selected() != "queue-architecture" {
		t.Fatalf("expected queue-architecture after down, got %q", app.Selected())
	}
	if app.detail.spec.ID != "queue-architecture" {
		t.Fatalf("detail pane not updated: %s", app.detail.spec.ID)
	}
}

func TestDetailSections(t *testing.T) {
	app := newTestApp(t)
	send(app, tea.KeyMsg{Type: tea.KeyTab})
	if app.focus != focusDetail {
		t.Fatalf("tab should focus the detail pane")
	}
	send(app, tea.KeyMsg{Type: tea.KeyRight})
	if app.detail.section != sectionRules {
		t.Fatalf("expected rules section, got %s", app.detail.section)
	}
	if content := app.detail.content(); !strings.Contains(content, "Required") || !strings.Contains(content, "Forbidden") {
		t.Fatalf("rules section incomplete:\n%s", content)
	}
	send(app, keyRunes("3"))
	if content := app.detail.content(); !strings.Contains(content, "add-crud-endpoint") {
		t.Fatalf("tasks section missing task:\n%s", content)
	}
	send(app, tea.KeyMsg{Type: tea.KeyLeft})
	send(app, tea.KeyMsg{Type: tea.KeyLeft})
	send(app, tea.KeyMsg{Type: tea.KeyLeft})
	if app.detail.section != sectionGuidance {
		t.Fatalf("left should wrap around, got %s", app.detail.section)
	}
	send(app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.focus != focusList {
		t.Fatalf("esc should return to the list")
	}
}

func TestBrowserEvaluatesRulesWithFacts(t *testing.T) {
	set := facts.NewSet()
	set.AddEdge("controller", "repository")
	app := newTestApp(t, WithFacts(func(spec.ArchitectureSpec) (rules.Facts, error) { return set, nil }))
	if len(app.detail.results) == 0 {
		t.Fatalf("expected rule results with facts")
	}
	var failed bool
	for _, r := range app.detail.results {
		if r.RuleID == "layer-dependencies" && r.Status == rules.StatusFail {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("controller -> repository should fail layer-dependencies: %+v", app.detail.results)
	}
	app.detail.section = sectionRules
	if content := app.detail.content(); !strings.Contains(content, "fail") || !strings.Contains(content, "unevaluable") {
		t.Fatalf("rules section should carry statuses:\n%s", content)
	}
}

func TestQuitKeys(t *testing.T) {
	app := newTestApp(t)
	cmd := send(app, keyRunes("q"))
	if cmd == nil {
		t.Fatalf("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected QuitMsg")
	}
}
