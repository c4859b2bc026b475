package window

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "245", Dark: "240"}).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	numberStyle   = lipgloss.NewStyle().Faint(true)
	modeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "75"})
	faint         = lipgloss.NewStyle().Faint(true)
)

type quitKeys struct {
	Quit key.Binding
}

var keys = quitKeys{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// actionMsg carries one controller action into the program.
type actionMsg Action

// closedMsg reports that the action feed ended.
type closedMsg struct{}

// Model renders a Controller's state in the terminal.
type Model struct {
	actions  <-chan Action
	state    State
	pageSize int
	last     ActionKind
	count    int
}

// NewModel creates a view of c showing pageSize candidates at a time.
func NewModel(c *Controller, pageSize int) Model {
	if pageSize <= 0 {
		pageSize = 9
	}
	return Model{actions: c.Actions(), state: c.State(), pageSize: pageSize}
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		a, ok := <-m.actions
		if !ok {
			return closedMsg{}
		}
		return actionMsg(a)
	}
}

func (m Model) Init() tea.Cmd { return m.wait() }

// Update applies actions from the controller and handles quitting.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case actionMsg:
		m.state = msg.State
		m.last = msg.Kind
		m.count++
		return m, m.wait()
	case closedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View draws the window, or a one-line status while it is hidden.
func (m Model) View() string {
	s := m.state
	status := faint.Render(fmt.Sprintf("[%s] %d calls, last %s, at (%d,%d)",
		modeStyle.Render(s.ModeLabel), m.count, m.last, s.Rect.Left, s.Rect.Bottom))
	if !s.Visible {
		return status + "\n" + faint.Render("hidden") + "\n"
	}

	items, start := s.Page(m.pageSize)
	var b strings.Builder
	for i, text := range items {
		n := start + i
		line := numberStyle.Render(fmt.Sprintf("%d ", i+1)) + text
		if int32(n) == s.Selection {
			line = selectedStyle.Render(fmt.Sprintf("%d %s", i+1, text))
		}
		b.WriteString(line)
		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	if len(items) == 0 {
		b.WriteString(faint.Render("(no candidates)"))
	} else if len(s.Candidates) > m.pageSize {
		b.WriteString("\n" + faint.Render(fmt.Sprintf("%d/%d", s.Selection+1, len(s.Candidates))))
	}
	return status + "\n" + frameStyle.Render(b.String()) + "\n"
}
