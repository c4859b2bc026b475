//go:build linux

package ime

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/logging"
)

type emitted struct {
	path   dbus.ObjectPath
	signal string
	values []interface{}
}

type fakeBus struct {
	signals  []emitted
	exported map[string]interface{}
}

func (b *fakeBus) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	b.signals = append(b.signals, emitted{path, name, values})
	return nil
}

func (b *fakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	if b.exported == nil {
		b.exported = make(map[string]interface{})
	}
	key := string(path) + " " + iface
	if v == nil {
		delete(b.exported, key)
		return nil
	}
	b.exported[key] = v
	return nil
}

// texts returns the text argument of every signal named name.
func (b *fakeBus) texts(name string) []string {
	var out []string
	for _, s := range b.signals {
		if s.signal == IBusEngineInterface+"."+name {
			out = append(out, textFromVariant(s.values[0].(dbus.Variant)))
		}
	}
	return out
}

func newIBusRig(t *testing.T, mode InputMode) (*IBusFactory, *fakeBus, *fakeEngine, *fakeWindow) {
	t.Helper()
	bus := &fakeBus{}
	eng := &fakeEngine{}
	win := &fakeWindow{}
	f := NewIBusFactory(context.Background(), bus, IBusOptions{
		Engine: eng,
		Window: win,
		Modes:  NewModeContext(mode, nil),
		Logger: logging.NewWithWriter(&logging.Config{Level: logging.LevelDebug}, io.Discard).Logger,
	})
	return f, bus, eng, win
}

func createEngine(t *testing.T, f *IBusFactory) *IBusEngine {
	t.Helper()
	path, derr := f.CreateEngine(KanaimeEngineName)
	require.Nil(t, derr)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[path]
}

func TestKeysymEvent(t *testing.T) {
	tests := []struct {
		name   string
		keyval uint32
		state  uint32
		code   uint32
		mods   Modifiers
		ok     bool
	}{
		{"letter", 'k', 0, VKA + 10, 0, true},
		{"capital", 'K', ibusShiftMask, VKA + 10, ModShift, true},
		{"digit", '7', 0, VK0 + 7, 0, true},
		{"keypad", keysymKP0 + 2, 0, VKNumpad0 + 2, 0, true},
		{"symbol", '!', ibusShiftMask, keysymUnicodeOffset + '!', 0, true},
		{"unicode keysym", keysymUnicodeOffset + 0x3001, 0, keysymUnicodeOffset + 0x3001, 0, true},
		{"return", keysymReturn, 0, VKReturn, 0, true},
		{"space", ' ', 0, VKSpace, 0, true},
		{"f7", keysymF6 + 1, 0, VKF7, 0, true},
		{"zenkaku hankaku", keysymZenkakuHankaku, 0, VKOEMAttn, 0, true},
		{"control", 'c', ibusControlMask, VKA + 2, ModControl, true},
		{"alt", 'x', ibusMod1Mask, VKA + 23, ModAlt, true},
		{"release", 'k', ibusReleaseMask, 0, 0, false},
		{"shift key", 0xffe1, ibusShiftMask, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := KeysymEvent(tt.keyval, tt.state)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.code, ev.Code)
			assert.Equal(t, tt.mods, ev.Modifiers)
		})
	}
}

func TestKeysymTranslator(t *testing.T) {
	r, ok := KeysymTranslator.Translate(keysymUnicodeOffset+'、', 0)
	require.True(t, ok)
	assert.Equal(t, '、', r)

	assert.Equal(t, Input('、'), Classify(keysymUnicodeOffset+'、', 0, KeysymTranslator))
}

func TestIBusFactoryCreatesAndDestroysEngines(t *testing.T) {
	f, bus, _, _ := newIBusRig(t, ModeLatin)

	_, derr := f.CreateEngine("anthy")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.IBus.NoEngine", derr.Name)

	path, derr := f.CreateEngine(KanaimeEngineName)
	require.Nil(t, derr)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/1"), path)
	assert.Contains(t, bus.exported, string(path)+" "+IBusEngineInterface)
	assert.Contains(t, bus.exported, string(path)+" "+IBusServiceInterface)
	assert.Equal(t, 1, f.Engines())

	e := bus.exported[string(path)+" "+IBusEngineInterface].(*IBusEngine)
	require.Nil(t, e.Destroy())
	assert.Equal(t, 0, f.Engines())
	assert.Empty(t, bus.exported)
}

func TestIBusEngineComposesAndCommits(t *testing.T) {
	f, bus, eng, win := newIBusRig(t, ModeKana)
	e := createEngine(t, f)

	e.SetCursorLocation(100, 200, 2, 18)
	for _, c := range "ka" {
		consumed, derr := e.ProcessKeyEvent(uint32(c), 0, 0)
		require.Nil(t, derr)
		require.True(t, consumed)
	}
	assert.Equal(t, "ka", string(eng.input))
	assert.Equal(t, []string{"K", "KA"}, bus.texts("UpdatePreeditText"))
	assert.Equal(t, Rect{Top: 200, Left: 100, Bottom: 218, Right: 102}, win.pos)
	assert.True(t, win.visible)

	consumed, _ := e.ProcessKeyEvent('a', 0, ibusReleaseMask)
	assert.False(t, consumed, "releases pass through")

	consumed, _ = e.ProcessKeyEvent(keysymReturn, 0, 0)
	require.True(t, consumed)
	assert.Equal(t, []string{"KA"}, bus.texts("CommitText"))
	previews := bus.texts("UpdatePreeditText")
	assert.Equal(t, "", previews[len(previews)-1])
	assert.False(t, e.sess.Composing())
	assert.False(t, win.visible)
}

func TestIBusEnginePassesThroughInLatin(t *testing.T) {
	f, bus, eng, _ := newIBusRig(t, ModeLatin)
	e := createEngine(t, f)

	consumed, _ := e.ProcessKeyEvent('a', 0, 0)
	assert.False(t, consumed)
	consumed, _ = e.ProcessKeyEvent('c', 0, ibusControlMask)
	assert.False(t, consumed)
	assert.Empty(t, eng.input)
	assert.Empty(t, bus.texts("UpdatePreeditText"))
}

func TestIBusEngineFocusOutAbandonsComposition(t *testing.T) {
	f, bus, eng, _ := newIBusRig(t, ModeKana)
	e := createEngine(t, f)

	_, _ = e.ProcessKeyEvent('a', 0, 0)
	require.True(t, e.sess.Composing())

	require.Nil(t, e.FocusOut())
	assert.False(t, e.sess.Composing())
	assert.Empty(t, eng.input)
	assert.Empty(t, bus.texts("CommitText"), "the client commits the preedit itself")

	// A new composition starts cleanly.
	consumed, _ := e.ProcessKeyEvent('i', 0, 0)
	assert.True(t, consumed)
	assert.Equal(t, "I", e.host.preedit)
}

func TestIBusEngineModeProperty(t *testing.T) {
	f, bus, _, win := newIBusRig(t, ModeLatin)
	e := createEngine(t, f)

	require.Nil(t, e.FocusIn())
	var names []string
	for _, s := range bus.signals {
		names = append(names, s.signal)
	}
	assert.Contains(t, names, IBusEngineInterface+".RegisterProperties")
	assert.Contains(t, names, IBusEngineInterface+".UpdateProperty")
	assert.Equal(t, "A", win.label)

	require.Nil(t, e.PropertyActivate("other", 1))
	assert.Equal(t, ModeLatin, f.opts.Modes.Mode())

	require.Nil(t, e.PropertyActivate(modePropKey, 1))
	assert.Equal(t, ModeKana, f.opts.Modes.Mode())
	assert.Equal(t, "あ", win.label)
}

func TestIBusHostPrecedingText(t *testing.T) {
	f, _, eng, _ := newIBusRig(t, ModeKana)
	e := createEngine(t, f)

	require.Nil(t, e.SetSurroundingText(newIBusText("今日は晴れ"), 3, 3))
	_, _ = e.ProcessKeyEvent('a', 0, 0)
	assert.Equal(t, "今日は", eng.context)
}

func TestIBusHostShiftStart(t *testing.T) {
	bus := &fakeBus{}
	h := &ibusHost{conn: bus, path: "/e/1"}
	ctx := context.Background()

	r, err := h.StartComposition(ctx)
	require.NoError(t, err)
	require.NoError(t, h.SetText(ctx, r, "わたしは"))

	next, err := h.ShiftStart(ctx, r, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"わたし"}, bus.texts("CommitText"))
	assert.Equal(t, "は", h.preedit)

	assert.ErrorIs(t, h.SetText(ctx, r, "x"), ErrNoComposition)
	require.NoError(t, h.EndComposition(ctx, next))
	assert.Equal(t, []string{"わたし", "は"}, bus.texts("CommitText"))
	assert.ErrorIs(t, h.EndComposition(ctx, next), ErrNoComposition)
}

func TestIBusComponent(t *testing.T) {
	dir := t.TempDir()
	path, err := InstallIBusComponent(dir, "/opt/kanaime & co/kanaime-ibus")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<exec>/opt/kanaime &amp; co/kanaime-ibus --ibus</exec>")
	assert.Contains(t, string(data), "<name>"+KanaimeEngineName+"</name>")

	require.NoError(t, UninstallIBusComponent(dir))
	assert.NoFileExists(t, path)
	assert.NoError(t, UninstallIBusComponent(dir), "removing twice is not an error")
}
