// internal/tui/app.go
//
// This is the spec browser behind `archspec browse`.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/rules"
	"github.com/kingrea/archspec/internal/spec"
)

type focus int

const (
	focusList focus = iota
	focusDetail
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// FactsFunc provides the facts a spec's rules are evaluated against. Layer
// assignment depends on the spec, so facts are gathered per spec.
type FactsFunc func(s spec.ArchitectureSpec) (rules.Facts, error)

// WithFacts evaluates each selected spec's rules so the rules tab shows
// pass/fail status.
func WithFacts(fn FactsFunc) AppOption {
	return func(a *App) { a.facts = fn }
}

// WithRuleTable replaces the built-in predicates used with WithFacts.
func WithRuleTable(t *rules.Table) AppOption {
	return func(a *App) {
		if t != nil {
			a.table = t
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	registry *registry.Registry
	facts    FactsFunc
	table    *rules.Table
	logger   *zap.Logger

	specList list.Model
	detail   *specView
	focus    focus
	selected string

	width  int
	height int
}

// specItem implements list.Item for one registered spec.
type specItem struct {
	id    string
	title string
	desc  string
}

func (i specItem) Title() string       { return i.title }
func (i specItem) Description() string { return i.desc }
func (i specItem) FilterValue() string { return i.id + " " + i.title }

// NewApp creates a browser over every spec in reg.
func NewApp(reg *registry.Registry, opts ...AppOption) *App {
	app := &App{
		registry: reg,
		table:    rules.Builtin(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}

	specList := list.New(buildSpecItems(reg), list.NewDefaultDelegate(), 0, 0)
	specList.Title = "⬡ ARCHITECTURES"
	specList.SetShowStatusBar(false)
	specList.SetFilteringEnabled(true)
	app.specList = specList
	app.detail = newSpecView(app)
	app.syncSelection()
	return app
}

func buildSpecItems(reg *registry.Registry) []list.Item {
	specs := reg.Specs()
	items := make([]list.Item, 0, len(specs))
	for _, s := range specs {
		desc := fmt.Sprintf("%s · %d rule(s)", strings.Join(s.Base.Layers, " → "), len(s.Rules.AllRules()))
		items = append(items, specItem{id: s.ID, title: s.Name, desc: desc})
	}
	return items
}

// Selected returns the id of the spec shown in the detail pane.
func (a *App) Selected() string {
	return a.selected
}

func (a *App) syncSelection() {
	item, ok := a.specList.SelectedItem().(specItem)
	if !ok || item.id == a.selected {
		return
	}
	s, err := a.registry.Get(item.id)
	if err != nil {
		a.logger.Warn("selected spec vanished", zap.String("spec", item.id), zap.Error(err))
		return
	}
	a.selected = item.id
	var results []rules.Result
	if a.facts != nil {
		f, err := a.facts(s)
		if err != nil {
			a.logger.Warn("gather facts", zap.String("spec", item.id), zap.Error(err))
		} else {
			results = a.table.Evaluate(s, f)
		}
	}
	a.detail.SetSpec(s, results)
	a.logger.Debug("spec selected", zap.String("spec", item.id))
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		left, right := a.columns()
		a.specList.SetSize(max(20, left-4), max(5, msg.Height-6))
		a.detail.SetSize(max(20, right-4), max(5, msg.Height-8))
		return a, nil

	case tea.KeyMsg:
		filtering := a.specList.FilterState() == list.Filtering
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if !filtering {
				return a, tea.Quit
			}
		case "tab":
			if !filtering {
				if a.focus == focusList {
					a.focus = focusDetail
				} else {
					a.focus = focusList
				}
				return a, nil
			}
		case "enter":
			if a.focus == focusList && !filtering {
				a.focus = focusDetail
				return a, nil
			}
		case "esc":
			if a.focus == focusDetail {
				a.focus = focusList
				return a, nil
			}
		}
	}

	var cmd tea.Cmd
	if a.focus == focusList {
		a.specList, cmd = a.specList.Update(msg)
		a.syncSelection()
		return a, cmd
	}
	return a, a.detail.Update(msg)
}

func (a *App) columns() (int, int) {
	width := a.width
	if width <= 0 {
		width = 100
	}
	left := max(28, width/3)
	right := width - left
	if right < 30 {
		right = 30
	}
	return left, right
}

// View renders the list on the left and the selected spec on the right.
func (a *App) View() string {
	left, right := a.columns()
	borderColor := func(f focus) lipgloss.Color {
		if a.focus == f {
			return lipgloss.Color("#5B8DEF")
		}
		return lipgloss.Color("#444444")
	}

	var listContent string
	if len(a.specList.Items()) == 0 {
		listContent = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No architectures registered.")
	} else {
		listContent = a.specList.View()
	}
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor(focusList)).
		Padding(0, 1).
		Width(max(20, left-2)).
		Render(listContent)
	rightBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor(focusDetail)).
		Padding(0, 1).
		Width(max(20, right-2)).
		Render(a.detail.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render("tab switch pane · ←/→ sections · ↑/↓ scroll · / filter · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// Run starts the browser in the alternate screen and blocks until the user
// quits.
func Run(app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
