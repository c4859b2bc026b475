// Package window is the candidate window server side: a Controller that
// keeps the window state the front end drives over IPC, and a terminal
// view that renders it.
package window

import (
	"context"
	"log/slog"
	"sync"

	"kanaime/internal/ime"
)

// ActionKind names the window call that changed the state.
type ActionKind int

const (
	ActionShow ActionKind = iota
	ActionHide
	ActionMove
	ActionCandidates
	ActionSelect
	ActionMode
)

func (k ActionKind) String() string {
	switch k {
	case ActionShow:
		return "show"
	case ActionHide:
		return "hide"
	case ActionMove:
		return "move"
	case ActionCandidates:
		return "candidates"
	case ActionSelect:
		return "select"
	case ActionMode:
		return "mode"
	default:
		return "unknown"
	}
}

// State is what the window displays.
type State struct {
	Visible    bool
	Rect       ime.Rect
	Candidates []string
	Selection  int32
	ModeLabel  string
}

// Page returns the page of candidates holding the selection and the index
// of its first item.
func (s State) Page(size int) ([]string, int) {
	if size <= 0 || len(s.Candidates) == 0 {
		return s.Candidates, 0
	}
	sel := int(s.Selection)
	if sel < 0 || sel >= len(s.Candidates) {
		sel = 0
	}
	start := sel / size * size
	end := min(start+size, len(s.Candidates))
	return s.Candidates[start:end], start
}

// Action is one state change with the state after it.
type Action struct {
	Kind  ActionKind
	State State
}

// Controller applies window calls. Every change is published on Actions;
// a reader that falls behind misses intermediate actions but the last
// state is always available from State.
type Controller struct {
	mu      sync.Mutex
	state   State
	actions chan Action
	log     *slog.Logger
}

var _ ime.CandidateWindow = (*Controller)(nil)

// NewController creates a hidden, empty window. buffer sizes the action
// channel.
func NewController(buffer int, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:   State{ModeLabel: ime.ModeLatin.Label()},
		actions: make(chan Action, buffer),
		log:     logger,
	}
}

// Actions returns the change feed.
func (c *Controller) Actions() <-chan Action {
	return c.actions
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Candidates = append([]string(nil), c.state.Candidates...)
	return s
}

func (c *Controller) apply(kind ActionKind, f func(*State)) {
	c.mu.Lock()
	f(&c.state)
	a := Action{Kind: kind, State: c.snapshot()}
	c.mu.Unlock()

	select {
	case c.actions <- a:
	default:
		c.log.Debug("window action dropped", "action", kind.String())
	}
}

func (c *Controller) Show(context.Context) error {
	c.apply(ActionShow, func(s *State) { s.Visible = true })
	return nil
}

func (c *Controller) Hide(context.Context) error {
	c.apply(ActionHide, func(s *State) { s.Visible = false })
	return nil
}

func (c *Controller) SetPosition(_ context.Context, r ime.Rect) error {
	c.apply(ActionMove, func(s *State) { s.Rect = r })
	return nil
}

// SetCandidates replaces the list and moves the selection to the first
// item.
func (c *Controller) SetCandidates(_ context.Context, texts []string) error {
	c.apply(ActionCandidates, func(s *State) {
		s.Candidates = append([]string(nil), texts...)
		s.Selection = 0
	})
	return nil
}

// SetSelection highlights index. Out of range indexes are clamped to the
// list.
func (c *Controller) SetSelection(_ context.Context, index int32) error {
	c.apply(ActionSelect, func(s *State) {
		n := int32(len(s.Candidates))
		switch {
		case n == 0 || index < 0:
			index = 0
		case index >= n:
			index = n - 1
		}
		s.Selection = index
	})
	return nil
}

func (c *Controller) SetInputMode(_ context.Context, label string) error {
	c.apply(ActionMode, func(s *State) { s.ModeLabel = label })
	return nil
}
