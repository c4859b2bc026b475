package ime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/logging"
)

type rig struct {
	t     *testing.T
	o     *Orchestrator
	eng   *fakeEngine
	win   *fakeWindow
	host  *fakeHost
	store *memModeStore
	sess  *Session
}

func newRig(t *testing.T, mode InputMode) *rig {
	t.Helper()
	r := &rig{
		t:     t,
		eng:   &fakeEngine{},
		win:   &fakeWindow{},
		host:  &fakeHost{},
		store: &memModeStore{},
		sess:  NewSession("notepad:1"),
	}
	o, err := NewOrchestrator(Options{
		Engine: r.eng,
		Window: r.win,
		Host:   r.host,
		Modes:  NewModeContext(mode, r.store),
		Logger: logging.NewWithWriter(&logging.Config{Level: logging.LevelDebug}, io.Discard).Logger,
	})
	require.NoError(t, err)
	r.o = o
	return r
}

func (r *rig) press(code uint32, mods Modifiers) bool {
	return r.o.HandleKey(context.Background(), r.sess, NewKeyEvent(code, mods))
}

func (r *rig) typeLetters(s string) {
	r.t.Helper()
	for _, c := range s {
		require.True(r.t, r.press(letter(c), 0), "letter %q not consumed", c)
	}
}

func letter(c rune) uint32 {
	return VKA + uint32(c-'a')
}

func (r *rig) resetCalls() {
	r.eng.calls = nil
	r.win.calls = nil
	r.host.calls = nil
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	_, err := NewOrchestrator(Options{Engine: &fakeEngine{}})
	assert.Error(t, err)
}

func TestFirstInputStartsComposition(t *testing.T) {
	r := newRig(t, ModeKana)

	require.True(t, r.press(VKA, 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Equal(t, "start_composition", r.host.calls[0])
	assert.Equal(t, []string{"append_text:a"}, r.eng.calls)
	assert.True(t, r.win.visible)
	assert.Equal(t, Rect{Top: 10, Left: 20, Bottom: 30, Right: 21}, r.win.pos)
	assert.Equal(t, []string{"A", "a", "[a]"}, r.win.candidates)
	assert.Equal(t, "A", r.host.comp)
	assert.Equal(t, "a", r.sess.RawInput)
	assert.Equal(t, "A", r.sess.Preview)
}

func TestLatinModePassesKeysThrough(t *testing.T) {
	r := newRig(t, ModeLatin)

	assert.False(t, r.press(VKA, 0))
	assert.False(t, r.press(VK0+5, 0))
	assert.Equal(t, StateIdle, r.sess.State)
	assert.Empty(t, r.eng.calls)
	assert.Empty(t, r.host.calls)
}

func TestControlChordsAreNotHandled(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	r.resetCalls()

	assert.False(t, r.press(VKA, ModControl))
	assert.Empty(t, r.eng.calls)
	assert.Equal(t, "ab", r.sess.RawInput)
}

func TestUnknownKeyIsNotHandled(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")

	assert.False(t, r.press(0x70, 0)) // F1
	assert.Equal(t, StateComposing, r.sess.State)
}

func TestNumberStartsComposition(t *testing.T) {
	r := newRig(t, ModeKana)

	require.True(t, r.press(VK0+7, 0))
	assert.Equal(t, []string{"append_text:7"}, r.eng.calls)
	assert.Equal(t, "7", r.sess.RawInput)
}

func TestKanaModeNormalizesPunctuation(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")

	require.True(t, r.press(0xBC, 0)) // ','
	assert.Equal(t, "append_text:、", r.eng.calls[len(r.eng.calls)-1])
	assert.Equal(t, "a,", r.sess.RawInput, "raw input keeps the typed character")
}

func TestBackspaceOnLastGlyphEndsComposition(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")

	require.True(t, r.press(VKBack, 0))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.False(t, r.win.visible)
	assert.Empty(t, r.win.candidates)
	assert.Nil(t, r.host.open)
	assert.Equal(t, "", r.host.doc)
	assert.True(t, r.sess.Empty())
	assert.Equal(t, 0, r.sess.SelectionIndex)
	assert.True(t, r.sess.Candidates.Empty())
	assert.Contains(t, r.eng.calls, "clear_text")
}

func TestBackspaceKeepsComposing(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("abc")

	require.True(t, r.press(VKBack, 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Equal(t, "ab", r.sess.RawInput)
	assert.Equal(t, "AB", r.host.comp)
	assert.True(t, r.win.visible)
}

func TestBackspaceWithPartialSelectionKeepsEngineInput(t *testing.T) {
	r := newRig(t, ModeKana)
	r.eng.split = 1
	r.typeLetters("abc")
	require.Equal(t, "A", r.sess.Preview)

	require.True(t, r.press(VKBack, 0))

	assert.Equal(t, "A", r.sess.Preview)
	assert.Equal(t, "b", r.sess.Suffix)
	assert.Equal(t, "ab", r.sess.RawInput, "the suffix stays in the raw input")
	assert.Equal(t, string(r.eng.input), r.sess.RawInput)
}

func TestAppendThenRemoveRestoresRawInput(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ka")
	before := r.sess.RawInput

	r.typeLetters("n")
	require.True(t, r.press(VKBack, 0))

	assert.Equal(t, before, r.sess.RawInput)
}

func TestEnterCommitsWithoutSuffix(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")

	require.True(t, r.press(VKReturn, 0))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.Equal(t, "AB", r.host.doc)
	assert.Nil(t, r.host.open)
	assert.False(t, r.win.visible)
	assert.Equal(t, 0, r.sess.SelectionIndex)
	assert.True(t, r.sess.Candidates.Empty())
	assert.Empty(t, r.eng.input)
}

func TestEnterWithSuffixShrinks(t *testing.T) {
	r := newRig(t, ModeKana)
	r.eng.split = 2
	r.typeLetters("abcd")
	require.Equal(t, "AB", r.sess.Preview)
	require.Equal(t, "cd", r.sess.Suffix)

	require.True(t, r.press(VKReturn, 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Equal(t, "AB", r.host.doc, "corresponding characters are committed")
	assert.Equal(t, "CD", r.host.comp)
	assert.Equal(t, "cd", r.sess.RawInput)
	assert.Equal(t, 2, r.sess.Committed)
	assert.Equal(t, 0, r.sess.SelectionIndex)
	assert.NotNil(t, r.host.open)

	require.True(t, r.press(VKReturn, 0))
	assert.Equal(t, "ABCD", r.host.doc)
	assert.Equal(t, StateIdle, r.sess.State)
}

func TestSelectionNeverLeavesBounds(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")

	for i := 0; i < 10; i++ {
		require.True(t, r.press(VKDown, 0))
		assert.LessOrEqual(t, r.sess.SelectionIndex, r.sess.Candidates.Len()-1)
	}
	assert.Equal(t, 2, r.sess.SelectionIndex)
	assert.Equal(t, int32(2), r.win.selection)
	assert.Equal(t, "[a]", r.host.comp)
	assert.Equal(t, StatePreviewing, r.sess.State)

	for i := 0; i < 10; i++ {
		require.True(t, r.press(VKUp, 0))
		assert.GreaterOrEqual(t, r.sess.SelectionIndex, 0)
	}
	assert.Equal(t, 0, r.sess.SelectionIndex)
	assert.Equal(t, "A", r.host.comp)
}

func TestSpaceAndTabMoveSelection(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")

	require.True(t, r.press(VKSpace, 0))
	assert.Equal(t, 1, r.sess.SelectionIndex)
	require.True(t, r.press(VKTab, 0))
	assert.Equal(t, 2, r.sess.SelectionIndex)
}

func TestInputWhilePreviewingShrinks(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	require.True(t, r.press(VKSpace, 0))
	require.Equal(t, StatePreviewing, r.sess.State)
	require.Equal(t, "ab", r.sess.Preview)

	require.True(t, r.press(letter('i'), 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Equal(t, 0, r.sess.SelectionIndex)
	assert.Equal(t, "ab", r.host.doc)
	assert.Equal(t, "I", r.host.comp)
	assert.Equal(t, "i", r.sess.RawInput)
	assert.Equal(t, []string{"I", "i", "[i]"}, r.win.candidates)
}

func TestEnterWhilePreviewingCommitsSelection(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	require.True(t, r.press(VKSpace, 0))
	require.True(t, r.press(VKSpace, 0))

	require.True(t, r.press(VKReturn, 0))

	assert.Equal(t, "[ab]", r.host.doc)
	assert.Equal(t, StateIdle, r.sess.State)
}

func TestFunctionKeysRenderVariants(t *testing.T) {
	tests := []struct {
		name string
		key  uint32
		want string
	}{
		{"F9 full-width latin", VKF9, "ａｂ"},
		{"F10 half-width latin", VKF10, "ab"},
		{"F6 hiragana", VKF6, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, ModeKana)
			r.typeLetters("ab")

			require.True(t, r.press(tt.key, 0))
			assert.Equal(t, StatePreviewing, r.sess.State)
			assert.Equal(t, tt.want, r.host.comp)

			require.True(t, r.press(VKReturn, 0))
			assert.Equal(t, tt.want, r.host.doc)
		})
	}
}

func TestVariantThenInputConsumesWholeInput(t *testing.T) {
	r := newRig(t, ModeKana)
	r.eng.split = 1
	r.typeLetters("ab")
	require.True(t, r.press(VKF10, 0))

	require.True(t, r.press(letter('c'), 0))

	assert.Equal(t, "ab", r.host.doc)
	assert.Equal(t, "c", r.sess.RawInput)
	assert.Equal(t, []rune("c"), r.eng.input)
}

func TestToggleWhileComposingSwitchesToLatin(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")

	require.True(t, r.press(VKOEMAttn, 0))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.True(t, r.sess.Empty())
	assert.Equal(t, ModeLatin, r.o.Modes().Mode())
	require.NotNil(t, r.store.saved)
	assert.Equal(t, ModeLatin, *r.store.saved)
	assert.Equal(t, ModeLatin, r.host.mode)
	assert.Equal(t, "A", r.win.label)
	assert.False(t, r.win.visible)
}

func TestToggleWhileIdleFlipsMode(t *testing.T) {
	r := newRig(t, ModeLatin)

	require.True(t, r.press(VKOEMCopy, 0))
	assert.Equal(t, ModeKana, r.o.Modes().Mode())
	assert.Equal(t, "あ", r.win.label)
	assert.Equal(t, ModeKana, r.host.mode)
	assert.Empty(t, r.eng.calls, "nothing to end while idle")

	require.NoError(t, r.o.ToggleMode(context.Background(), r.sess))
	assert.Equal(t, ModeLatin, r.o.Modes().Mode())
	assert.Equal(t, 2, r.store.saves)
}

func TestModeIsRestoredFromStore(t *testing.T) {
	kana := ModeKana
	ctx := NewModeContext(ModeLatin, &memModeStore{saved: &kana})
	assert.Equal(t, ModeKana, ctx.Mode())
}

func TestLeftRightAreNoOps(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	r.resetCalls()

	require.True(t, r.press(VKLeft, 0))
	require.True(t, r.press(VKRight, 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Empty(t, r.eng.calls)
	assert.Empty(t, r.host.calls)
}

func TestPrecedingTextIsSentAsContext(t *testing.T) {
	r := newRig(t, ModeKana)
	r.host.preceding = "今日は"

	r.typeLetters("a")
	assert.Equal(t, "今日は", r.eng.context)
	assert.Equal(t, []string{"set_context", "append_text:a"}, r.eng.calls)
}

func TestRPCFailureAbortsBatch(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("a")
	r.eng.fail = map[string]error{"append_text:b": errors.New("pipe closed")}

	assert.False(t, r.press(letter('b'), 0))

	assert.Equal(t, StateComposing, r.sess.State)
	assert.Equal(t, "a", r.sess.RawInput)
	assert.Equal(t, "A", r.host.comp)
}

func TestRPCFailureOnFirstKeyLeavesIdle(t *testing.T) {
	tests := []struct {
		name string
		eng  map[string]error
		win  map[string]error
	}{
		{"show", nil, map[string]error{"show": errors.New("window not running")}},
		{"set_position", nil, map[string]error{"set_position": errors.New("window not running")}},
		{"append_text", map[string]error{"append_text:a": errors.New("pipe closed")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, ModeKana)
			r.eng.fail = tt.eng
			r.win.fail = tt.win

			assert.False(t, r.press(VKA, 0))
			assert.Equal(t, StateIdle, r.sess.State)
			assert.True(t, r.sess.Empty())
			assert.False(t, r.sess.Composing(), "the session keeps no range")
			assert.Nil(t, r.host.open, "the host range is closed again")
			assert.Empty(t, r.eng.input)

			r.eng.fail, r.win.fail = nil, nil
			r.typeLetters("b")
			require.True(t, r.press(VKReturn, 0))
			assert.Equal(t, "B", r.host.doc)
		})
	}
}

func TestAppendFailureAfterShrinkKeepsSessionInStep(t *testing.T) {
	r := newRig(t, ModeKana)
	r.eng.split = 1
	r.typeLetters("ab")
	require.True(t, r.press(VKDown, 0))
	require.True(t, r.press(VKUp, 0))
	require.Equal(t, StatePreviewing, r.sess.State)
	require.Equal(t, "A", r.sess.Preview)
	require.Equal(t, "b", r.sess.Suffix)
	r.eng.fail = map[string]error{"append_text:c": errors.New("pipe closed")}

	assert.False(t, r.press(letter('c'), 0))

	assert.Equal(t, "A", r.host.doc, "the prefix is committed once")
	assert.Equal(t, "b", r.sess.RawInput)
	assert.Equal(t, string(r.eng.input), r.sess.RawInput)
	assert.Equal(t, "B", r.sess.Preview)
	assert.Equal(t, "B", r.host.comp, "the remainder is shown again")
	assert.Equal(t, []string{"B", "b", "[b]"}, r.win.candidates)

	r.eng.fail = nil
	require.True(t, r.press(VKReturn, 0))
	assert.Equal(t, StateIdle, r.sess.State)
	assert.Equal(t, "AB", r.host.doc)
}

func TestAppendFailureAfterShrinkOfWholeInputEnds(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	require.True(t, r.press(VKSpace, 0))
	r.eng.fail = map[string]error{"append_text:c": errors.New("pipe closed")}

	assert.False(t, r.press(letter('c'), 0))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.True(t, r.sess.Empty())
	assert.Nil(t, r.host.open)
	assert.Equal(t, "ab", r.host.doc)
	assert.False(t, r.win.visible)
}

// TestRPCFailureMidBatch fails one call inside a multi-call action and
// checks that the session still matches the engine, that nothing is
// committed twice, and that the next composition starts clean.
func TestRPCFailureMidBatch(t *testing.T) {
	pipe := errors.New("pipe closed")
	tests := []struct {
		name  string
		split int
		typed string
		setup []uint32
		key   uint32
		eng   map[string]error
		win   map[string]error
		want  string
		mode  InputMode
	}{
		{"shrink: shrink_text", 1, "ab", []uint32{VKDown, VKUp}, letter('c'),
			map[string]error{"shrink_text": pipe}, nil, "AB", ModeKana},
		{"shrink: append_text", 1, "ab", []uint32{VKDown, VKUp}, letter('c'),
			map[string]error{"append_text:c": pipe}, nil, "AB", ModeKana},
		{"shrink: set_candidates", 1, "ab", []uint32{VKDown, VKUp}, letter('c'),
			nil, map[string]error{"set_candidates": pipe}, "ABC", ModeKana},
		{"shrink: set_selection", 1, "ab", []uint32{VKDown, VKUp}, letter('c'),
			nil, map[string]error{"set_selection": pipe}, "ABC", ModeKana},
		{"backspace end: remove_text", 0, "a", nil, VKBack,
			map[string]error{"remove_text": pipe}, nil, "A", ModeKana},
		{"backspace end: clear_text", 0, "a", nil, VKBack,
			map[string]error{"clear_text": pipe}, nil, "", ModeKana},
		{"backspace end: hide", 0, "a", nil, VKBack,
			nil, map[string]error{"hide": pipe}, "", ModeKana},
		{"escape: remove_text", 0, "ab", nil, VKEscape,
			map[string]error{"remove_text": pipe}, nil, "AB", ModeKana},
		{"escape: set_candidates", 0, "ab", nil, VKEscape,
			nil, map[string]error{"set_candidates": pipe}, "A", ModeKana},
		{"escape: clear_text", 0, "ab", nil, VKEscape,
			map[string]error{"clear_text": pipe}, nil, "A", ModeKana},
		{"mode switch: clear_text", 0, "ab", nil, VKOEMAttn,
			map[string]error{"clear_text": pipe}, nil, "AB", ModeKana},
		{"mode switch: set_input_mode", 0, "ab", nil, VKOEMAttn,
			nil, map[string]error{"set_input_mode": pipe}, "AB", ModeLatin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, ModeKana)
			r.eng.split = tt.split
			r.typeLetters(tt.typed)
			for _, k := range tt.setup {
				require.True(t, r.press(k, 0))
			}
			r.eng.fail, r.win.fail = tt.eng, tt.win

			assert.False(t, r.press(tt.key, 0))

			if c, ok := r.sess.Selected(); ok {
				assert.LessOrEqual(t, int(c.CorrespondingCount), len([]rune(r.sess.RawInput)),
					"the selection never covers more than the raw input")
			}
			if r.sess.State == StateIdle {
				assert.True(t, r.sess.Empty())
				assert.False(t, r.sess.Composing())
				assert.Nil(t, r.host.open)
			} else {
				assert.False(t, r.sess.Empty())
				assert.True(t, r.sess.Composing())
				assert.Equal(t, string(r.eng.input), r.sess.RawInput)
			}

			r.eng.fail, r.win.fail = nil, nil
			for i := 0; i < 5 && r.sess.State != StateIdle; i++ {
				require.True(t, r.press(VKReturn, 0))
			}
			require.Equal(t, StateIdle, r.sess.State)
			assert.Equal(t, tt.want, r.host.doc)
			assert.Equal(t, tt.mode, r.o.Modes().Mode())

			if tt.mode == ModeKana {
				r.typeLetters("z")
				assert.Equal(t, "z", string(r.eng.input), "the next composition starts clean")
				require.True(t, r.press(VKReturn, 0))
				assert.Equal(t, tt.want+"Z", r.host.doc)
			}
		})
	}
}

// syllableEngine removes the second kana of "kya" the way the composer
// does, leaving the literal き in the engine input.
type syllableEngine struct{ *fakeEngine }

func (e syllableEngine) RemoveText(context.Context) (Candidates, error) {
	if err := e.call("remove_text"); err != nil {
		return Candidates{}, err
	}
	e.input = []rune("き")
	return e.candidates(), nil
}

func TestVariantsAfterSyllableSplit(t *testing.T) {
	r := newRig(t, ModeKana)
	o, err := NewOrchestrator(Options{
		Engine: syllableEngine{r.eng},
		Window: r.win,
		Host:   r.host,
		Modes:  r.o.Modes(),
	})
	require.NoError(t, err)
	r.o = o
	r.typeLetters("kya")

	require.True(t, r.press(VKBack, 0))
	assert.Equal(t, "k", r.sess.RawInput, "raw input is cut to the engine's input length")
	assert.Equal(t, "き", r.host.comp)

	require.True(t, r.press(VKF6, 0))
	assert.Equal(t, "き", r.host.comp, "kana variants follow the reading")
	require.True(t, r.press(VKF10, 0))
	assert.Equal(t, "k", r.host.comp, "latin variants follow the raw input")

	require.True(t, r.press(VKReturn, 0))
	assert.Equal(t, "k", r.host.doc)
}

func TestReentrantStepIsRejected(t *testing.T) {
	r := newRig(t, ModeKana)
	require.NoError(t, r.o.modes.acquire())
	defer r.o.modes.release()

	_, err := r.o.Dispatch(context.Background(), r.sess, Input('a'))
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, r.press(VKA, 0))
	assert.Empty(t, r.eng.calls)
}

func TestCompositionTerminatedByHost(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("ab")
	r.host.open = nil
	r.resetCalls()

	require.NoError(t, r.o.OnCompositionTerminated(context.Background(), r.sess))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.True(t, r.sess.Empty())
	assert.False(t, r.win.visible)
	assert.Equal(t, []string{"clear_text"}, r.eng.calls)
	assert.NotContains(t, r.host.calls, "end_composition")

	require.True(t, r.press(letter('c'), 0))
	assert.Equal(t, StateComposing, r.sess.State)
}

func TestActivatePushesMode(t *testing.T) {
	r := newRig(t, ModeKana)

	require.NoError(t, r.o.Activate(context.Background()))
	assert.Equal(t, ModeKana, r.host.mode)
	assert.Equal(t, "あ", r.win.label)
}

func TestEscapeRemovesAndEnds(t *testing.T) {
	r := newRig(t, ModeKana)
	r.typeLetters("abc")

	require.True(t, r.press(VKEscape, 0))

	assert.Equal(t, StateIdle, r.sess.State)
	assert.Equal(t, "AB", r.host.doc)
	assert.False(t, r.win.visible)
}

func TestRecovererCatchesPanics(t *testing.T) {
	r := newRig(t, ModeKana)
	r.o.recoverer = &logging.Recoverer{Dir: t.TempDir(), Logger: r.o.log}
	r.o.engine = panicEngine{r.eng}

	assert.False(t, r.press(VKA, 0))
	var pe *logging.PanicError
	_, err := r.o.Dispatch(context.Background(), r.sess, Input('b'))
	assert.True(t, errors.As(err, &pe))
	assert.NoError(t, r.o.modes.acquire(), "lock released after panic")
	r.o.modes.release()
}

type panicEngine struct{ *fakeEngine }

func (panicEngine) AppendText(context.Context, string) (Candidates, error) {
	panic("engine exploded")
}
