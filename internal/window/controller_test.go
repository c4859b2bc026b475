package window

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/ime"
)

func drain(c *Controller) []Action {
	var out []Action
	for {
		select {
		case a := <-c.Actions():
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestControllerAppliesCalls(t *testing.T) {
	c := NewController(16, nil)
	ctx := context.Background()

	require.NoError(t, c.SetPosition(ctx, ime.Rect{Top: 10, Left: 20, Bottom: 30, Right: 40}))
	require.NoError(t, c.Show(ctx))
	require.NoError(t, c.SetCandidates(ctx, []string{"漢字", "感じ", "かんじ"}))
	require.NoError(t, c.SetSelection(ctx, 2))
	require.NoError(t, c.SetInputMode(ctx, "あ"))

	st := c.State()
	assert.True(t, st.Visible)
	assert.Equal(t, ime.Rect{Top: 10, Left: 20, Bottom: 30, Right: 40}, st.Rect)
	assert.Equal(t, []string{"漢字", "感じ", "かんじ"}, st.Candidates)
	assert.Equal(t, int32(2), st.Selection)
	assert.Equal(t, "あ", st.ModeLabel)

	var kinds []ActionKind
	for _, a := range drain(c) {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []ActionKind{ActionMove, ActionShow, ActionCandidates, ActionSelect, ActionMode}, kinds)

	require.NoError(t, c.Hide(ctx))
	assert.False(t, c.State().Visible)
}

func TestControllerSelectionClamped(t *testing.T) {
	tests := []struct {
		name  string
		cands []string
		index int32
		want  int32
	}{
		{"in range", []string{"a", "b"}, 1, 1},
		{"past end", []string{"a", "b"}, 5, 1},
		{"negative", []string{"a", "b"}, -1, 0},
		{"empty list", nil, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(8, nil)
			ctx := context.Background()
			require.NoError(t, c.SetCandidates(ctx, tt.cands))
			require.NoError(t, c.SetSelection(ctx, tt.index))
			assert.Equal(t, tt.want, c.State().Selection)
		})
	}
}

func TestControllerNewCandidatesResetSelection(t *testing.T) {
	c := NewController(8, nil)
	ctx := context.Background()
	require.NoError(t, c.SetCandidates(ctx, []string{"a", "b", "c"}))
	require.NoError(t, c.SetSelection(ctx, 2))
	require.NoError(t, c.SetCandidates(ctx, []string{"d"}))
	assert.Equal(t, int32(0), c.State().Selection)
}

func TestControllerDoesNotBlockWhenFeedIsFull(t *testing.T) {
	c := NewController(1, nil)
	ctx := context.Background()
	require.NoError(t, c.Show(ctx))
	require.NoError(t, c.Hide(ctx))
	require.NoError(t, c.Show(ctx))

	actions := drain(c)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionShow, actions[0].Kind)
	assert.True(t, c.State().Visible)
}

func TestStateIsACopy(t *testing.T) {
	c := NewController(8, nil)
	require.NoError(t, c.SetCandidates(context.Background(), []string{"a"}))
	st := c.State()
	st.Candidates[0] = "z"
	assert.Equal(t, []string{"a"}, c.State().Candidates)
}

func TestStatePage(t *testing.T) {
	st := State{Candidates: []string{"1", "2", "3", "4", "5"}, Selection: 3}

	items, start := st.Page(2)
	assert.Equal(t, []string{"3", "4"}, items)
	assert.Equal(t, 2, start)

	st.Selection = 4
	items, start = st.Page(2)
	assert.Equal(t, []string{"5"}, items)
	assert.Equal(t, 4, start)

	items, start = st.Page(0)
	assert.Len(t, items, 5)
	assert.Equal(t, 0, start)
}

func TestModelRendersActions(t *testing.T) {
	c := NewController(8, nil)
	m := NewModel(c, 2)
	assert.Contains(t, m.View(), "hidden")

	ctx := context.Background()
	require.NoError(t, c.SetCandidates(ctx, []string{"漢字", "感じ", "幹事"}))
	require.NoError(t, c.Show(ctx))

	var model tea.Model = m
	for _, a := range drain(c) {
		model, _ = model.Update(actionMsg(a))
	}
	view := model.View()
	assert.Contains(t, view, "漢字")
	assert.Contains(t, view, "感じ")
	assert.NotContains(t, view, "幹事")
	assert.Contains(t, view, "1/3")

	_, cmd := model.Update(closedMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
