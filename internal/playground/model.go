package playground

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	dmp "github.com/sergi/go-diff/diffmatchpatch"

	"kanaime/internal/ime"
	"kanaime/internal/metrics"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	modeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "75"})
	compStyle     = lipgloss.NewStyle().Underline(true)
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	insertStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "114"}).Underline(true)
	deleteStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"}).Strikethrough(true)
	faint         = lipgloss.NewStyle().Faint(true)
)

// KeyMap holds the playground's own bindings. Every other key goes to the
// input method first.
type KeyMap struct {
	Quit, Toggle, Copy, Clear key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Toggle: key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "toggle mode")),
		Copy:   key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy text")),
		Clear:  key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
	}
}

// Options configures a Model.
type Options struct {
	Engine ime.ConversionEngine
	Window ime.CandidateWindow
	Modes  *ime.ModeContext

	// Width wraps the document; zero means 80.
	Width int

	// Copy writes to the clipboard; defaults to atotto/clipboard.
	Copy func(string) error

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Model is the playground program.
type Model struct {
	ctx    context.Context
	orch   *ime.Orchestrator
	sess   *ime.Session
	doc    *Document
	keys   KeyMap
	copy   func(string) error
	log    *slog.Logger
	diff   []dmp.Diff
	status string
}

// New creates a playground and pushes the current mode to the window.
func New(ctx context.Context, opts Options) (*Model, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	doc := NewDocument(opts.Width)
	orch, err := ime.NewOrchestrator(ime.Options{
		Engine:     opts.Engine,
		Window:     opts.Window,
		Host:       doc,
		Modes:      opts.Modes,
		Translator: Translator,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := orch.Activate(ctx); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	return &Model{
		ctx:  ctx,
		orch: orch,
		sess: ime.NewSession("playground"),
		doc:  doc,
		keys: DefaultKeyMap(),
		copy: opts.Copy,
		log:  opts.Logger,
	}, nil
}

// Document returns the edited document.
func (m *Model) Document() *Document {
	return m.doc
}

// Session returns the composition session.
func (m *Model) Session() *ime.Session {
	return m.sess
}

// Run runs the program until the user quits or ctx ends.
func Run(ctx context.Context, m *Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, m.keys.Quit):
		if m.sess.Composing() {
			if err := m.orch.OnCompositionTerminated(m.ctx, m.sess); err != nil {
				m.log.Warn("failed to end composition", "error", err)
			}
		}
		return m, tea.Quit
	case key.Matches(km, m.keys.Toggle):
		if err := m.orch.ToggleMode(m.ctx, m.sess); err != nil {
			m.status = "toggle failed: " + err.Error()
		}
		return m, nil
	case key.Matches(km, m.keys.Copy):
		if err := m.copy(m.doc.Text()); err != nil {
			m.status = "copy failed: " + err.Error()
		} else {
			m.status = "copied"
		}
		return m, nil
	case key.Matches(km, m.keys.Clear):
		if !m.sess.Composing() {
			m.doc.Clear()
			m.diff = nil
		}
		return m, nil
	}

	m.HandleKey(km)
	return m, nil
}

// HandleKey offers a key to the input method and, when it is not consumed,
// applies it to the document as a plain text field would.
func (m *Model) HandleKey(km tea.KeyMsg) {
	before := m.doc.Text()
	m.status = ""

	ev, ok := KeyEvent(km)
	if ok && m.orch.HandleKey(m.ctx, m.sess, ev) {
		m.record(before)
		return
	}

	switch km.Type {
	case tea.KeyBackspace:
		m.doc.Backspace()
	case tea.KeyEnter:
		m.doc.Type("\n")
	case tea.KeyTab:
		m.doc.Type("\t")
	case tea.KeySpace:
		m.doc.Type(" ")
	case tea.KeyRunes:
		m.doc.Type(string(km.Runes))
	}
	m.record(before)
}

func (m *Model) record(before string) {
	after := m.doc.Text()
	if after == before {
		return
	}
	d := dmp.New()
	m.diff = d.DiffCleanupSemantic(d.DiffMain(before, after, false))
}

// LastChange renders what the last key did to the committed text.
func (m *Model) LastChange() string {
	var b strings.Builder
	for _, df := range m.diff {
		switch df.Type {
		case dmp.DiffInsert:
			b.WriteString(insertStyle.Render(df.Text))
		case dmp.DiffDelete:
			b.WriteString(deleteStyle.Render(df.Text))
		case dmp.DiffEqual:
			r := []rune(df.Text)
			if len(r) > 12 {
				r = append([]rune("…"), r[len(r)-12:]...)
			}
			b.WriteString(faint.Render(string(r)))
		}
	}
	return b.String()
}

func (m *Model) View() string {
	var b strings.Builder
	mode := m.orch.Modes().Mode()
	b.WriteString(titleStyle.Render("kanaime playground") + "  " +
		modeStyle.Render("["+mode.Label()+"]") + " " + faint.Render(mode.String()) + "\n\n")

	b.WriteString(m.doc.Text())
	if comp := m.doc.Composition(); comp != "" {
		b.WriteString(compStyle.Render(comp))
	}
	b.WriteString(cursorStyle.Render(" "))
	b.WriteString("\n\n")

	if m.sess.Composing() && !m.sess.Candidates.Empty() {
		for i, text := range m.sess.Candidates.Texts {
			if i >= 9 {
				b.WriteString(faint.Render(fmt.Sprintf("  … %d more", m.sess.Candidates.Len()-9)) + "\n")
				break
			}
			line := fmt.Sprintf("%d %s", i+1, text)
			if i == m.sess.SelectionIndex {
				line = selectedStyle.Render(line)
			}
			b.WriteString("  " + line + "\n")
		}
		b.WriteString(faint.Render("  raw: "+m.sess.RawInput) + "\n\n")
	}

	if len(m.diff) > 0 {
		b.WriteString(faint.Render("last change: ") + m.LastChange() + "\n")
	}
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	help := []string{}
	for _, k := range []key.Binding{m.keys.Toggle, m.keys.Copy, m.keys.Clear, m.keys.Quit} {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(faint.Render(strings.Join(help, " · ")) + "\n")
	return b.String()
}
