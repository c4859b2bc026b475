//go:build linux

package ime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"

	"kanaime/internal/logging"
	"kanaime/internal/metrics"
)

// IBus D-Bus names
const (
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusServiceInterface = "org.freedesktop.IBus.Service"
	IBusFactoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")

	KanaimeBusName    = "org.freedesktop.IBus.Kanaime"
	KanaimeEngineName = "kanaime"
)

// IBus key event state masks
const (
	ibusShiftMask   uint32 = 1 << 0
	ibusControlMask uint32 = 1 << 2
	ibusMod1Mask    uint32 = 1 << 3 // Alt
	ibusMod4Mask    uint32 = 1 << 6 // Super
	ibusReleaseMask uint32 = 1 << 30
)

// X11 keysyms with a fixed virtual key.
const (
	keysymBackSpace      = 0xff08
	keysymTab            = 0xff09
	keysymReturn         = 0xff0d
	keysymEscape         = 0xff1b
	keysymZenkaku        = 0xff28
	keysymHankaku        = 0xff29
	keysymZenkakuHankaku = 0xff2a
	keysymLeft           = 0xff51
	keysymUp             = 0xff52
	keysymRight          = 0xff53
	keysymDown           = 0xff54
	keysymKPEnter        = 0xff8d
	keysymKP0            = 0xffb0
	keysymKP9            = 0xffb9
	keysymF6             = 0xffc3
	keysymF10            = 0xffc7
	keysymUnicodeOffset  = 0x01000000
)

const (
	preeditCommitOnFocus uint32 = 1
	propTypeNormal       uint32 = 0
	modePropKey                 = "InputMode"
)

var ibusKeysyms = map[uint32]uint32{
	keysymBackSpace:      VKBack,
	keysymTab:            VKTab,
	keysymReturn:         VKReturn,
	keysymKPEnter:        VKReturn,
	keysymEscape:         VKEscape,
	keysymLeft:           VKLeft,
	keysymUp:             VKUp,
	keysymRight:          VKRight,
	keysymDown:           VKDown,
	keysymZenkaku:        VKOEMAttn,
	keysymHankaku:        VKOEMAttn,
	keysymZenkakuHankaku: VKOEMAttn,
	0x20:                 VKSpace,
}

// KeysymTranslator resolves the key codes produced by KeysymEvent. Codes
// carrying a character use the X11 Unicode keysym range.
var KeysymTranslator KeyTranslator = KeyTranslatorFunc(func(code uint32, mods Modifiers) (rune, bool) {
	if code >= keysymUnicodeOffset {
		return rune(code - keysymUnicodeOffset), true
	}
	return USLayout.Translate(code, mods)
})

// KeysymEvent converts an IBus key event to a virtual key. It returns false
// for releases and keys without a virtual key.
func KeysymEvent(keyval, state uint32) (KeyEvent, bool) {
	if state&ibusReleaseMask != 0 {
		return KeyEvent{}, false
	}
	var mods Modifiers
	if state&ibusShiftMask != 0 {
		mods |= ModShift
	}
	if state&ibusControlMask != 0 {
		mods |= ModControl
	}
	if state&ibusMod1Mask != 0 {
		mods |= ModAlt
	}
	if state&ibusMod4Mask != 0 {
		mods |= ModMeta
	}

	if code, ok := ibusKeysyms[keyval]; ok {
		return NewKeyEvent(code, mods), true
	}
	switch {
	case keyval >= keysymF6 && keyval <= keysymF10:
		return NewKeyEvent(VKF6+keyval-keysymF6, mods), true
	case keyval >= keysymKP0 && keyval <= keysymKP9:
		return NewKeyEvent(VKNumpad0+keyval-keysymKP0, mods&^ModShift), true
	case keyval >= 'a' && keyval <= 'z':
		return NewKeyEvent(VKA+keyval-'a', mods), true
	case keyval >= 'A' && keyval <= 'Z':
		return NewKeyEvent(VKA+keyval-'A', mods|ModShift), true
	case keyval >= '0' && keyval <= '9':
		// The keysym already reflects Shift.
		return NewKeyEvent(VK0+keyval-'0', mods&^ModShift), true
	}
	if r := keyvalToRune(keyval); r != 0 {
		return NewKeyEvent(keysymUnicodeOffset+uint32(r), mods&^ModShift), true
	}
	return KeyEvent{}, false
}

// keyvalToRune converts an X11 keysym to the character it produces.
func keyvalToRune(keyval uint32) rune {
	switch {
	case keyval >= 0x20 && keyval <= 0x7e, keyval >= 0xa0 && keyval <= 0xff:
		return rune(keyval)
	case keyval > keysymUnicodeOffset && keyval <= keysymUnicodeOffset+utf8.MaxRune:
		return rune(keyval - keysymUnicodeOffset)
	}
	return 0
}

// ibusText is the IBusText serialization.
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	Attrs       dbus.Variant
}

type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attrs       []dbus.Variant
}

type ibusProperty struct {
	Name        string
	Attachments map[string]dbus.Variant
	Key         string
	Type        uint32
	Label       dbus.Variant
	Icon        string
	Tooltip     dbus.Variant
	Sensitive   bool
	Visible     bool
	State       uint32
	SubProps    dbus.Variant
	Symbol      dbus.Variant
}

type ibusPropList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Props       []dbus.Variant
}

func newIBusText(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		Attrs: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attrs:       []dbus.Variant{},
		}),
	})
}

func emptyPropList() dbus.Variant {
	return dbus.MakeVariant(ibusPropList{Name: "IBusPropList", Attachments: map[string]dbus.Variant{}, Props: []dbus.Variant{}})
}

func modeProperty(mode InputMode) dbus.Variant {
	return dbus.MakeVariant(ibusProperty{
		Name:        "IBusProperty",
		Attachments: map[string]dbus.Variant{},
		Key:         modePropKey,
		Type:        propTypeNormal,
		Label:       newIBusText(mode.Label()),
		Tooltip:     newIBusText("Toggle input mode"),
		Sensitive:   true,
		Visible:     true,
		SubProps:    emptyPropList(),
		Symbol:      newIBusText(mode.Label()),
	})
}

// textFromVariant extracts the string of a serialized IBusText.
func textFromVariant(v dbus.Variant) string {
	switch t := v.Value().(type) {
	case string:
		return t
	case ibusText:
		return t.Text
	case []interface{}:
		if len(t) >= 3 {
			s, _ := t[2].(string)
			return s
		}
	}
	return ""
}

// busConn is the part of *dbus.Conn the engine uses.
type busConn interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// ConnectIBus connects to the IBus daemon's private bus when ibus-daemon
// started the process, and to the session bus otherwise.
func ConnectIBus() (*dbus.Conn, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		conn, err := dbus.Connect(addr)
		if err != nil {
			return nil, fmt.Errorf("connect to ibus bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return conn, nil
}

// IBusOptions configures an IBusFactory. Every engine the factory creates
// shares the conversion engine, the window and the mode.
type IBusOptions struct {
	Engine    ConversionEngine
	Window    CandidateWindow
	Modes     *ModeContext
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Recoverer *logging.Recoverer
}

// IBusFactory implements org.freedesktop.IBus.Factory. IBus asks it for
// one engine per input context.
type IBusFactory struct {
	ctx  context.Context
	conn busConn
	opts IBusOptions
	log  *slog.Logger

	mu      sync.Mutex
	next    uint32
	engines map[dbus.ObjectPath]*IBusEngine
}

// NewIBusFactory creates a factory. ctx bounds every call the engines make.
func NewIBusFactory(ctx context.Context, conn busConn, opts IBusOptions) *IBusFactory {
	if opts.Logger == nil {
		opts.Logger = logging.Default().WithComponent("ibus").Logger
	}
	if opts.Modes == nil {
		opts.Modes = NewModeContext(ModeLatin, nil)
	}
	return &IBusFactory{
		ctx:     ctx,
		conn:    conn,
		opts:    opts,
		log:     opts.Logger,
		engines: make(map[dbus.ObjectPath]*IBusEngine),
	}
}

// Register exports the factory and claims the component bus name.
func Register(conn *dbus.Conn, f *IBusFactory) error {
	if err := conn.Export(f, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	reply, err := conn.RequestName(KanaimeBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", KanaimeBusName)
	}
	return nil
}

// CreateEngine creates and exports a new engine instance.
func (f *IBusFactory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != KanaimeEngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine", []interface{}{"unknown engine: " + name})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", f.next))

	e, err := newIBusEngine(f, path)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	if err := f.conn.Export(e, path, IBusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	if err := f.conn.Export(e, path, IBusServiceInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	f.engines[path] = e
	f.log.Info("engine created", "path", path)
	return path, nil
}

// Engines returns the number of live engines.
func (f *IBusFactory) Engines() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *IBusFactory) destroy(path dbus.ObjectPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.engines, path)
	_ = f.conn.Export(nil, path, IBusEngineInterface)
	_ = f.conn.Export(nil, path, IBusServiceInterface)
	f.log.Info("engine destroyed", "path", path)
}

// IBusEngine implements org.freedesktop.IBus.Engine for one input context.
type IBusEngine struct {
	factory *IBusFactory
	path    dbus.ObjectPath
	host    *ibusHost
	orch    *Orchestrator
	log     *slog.Logger

	mu   sync.Mutex
	sess *Session
}

func newIBusEngine(f *IBusFactory, path dbus.ObjectPath) (*IBusEngine, error) {
	host := &ibusHost{conn: f.conn, path: path}
	orch, err := NewOrchestrator(Options{
		Engine:     f.opts.Engine,
		Window:     f.opts.Window,
		Host:       host,
		Modes:      f.opts.Modes,
		Translator: KeysymTranslator,
		Logger:     f.log,
		Metrics:    f.opts.Metrics,
		Recoverer:  f.opts.Recoverer,
	})
	if err != nil {
		return nil, err
	}
	return &IBusEngine{
		factory: f,
		path:    path,
		host:    host,
		orch:    orch,
		log:     f.log.With("path", path),
		sess:    NewSession(string(path)),
	}, nil
}

// ProcessKeyEvent reports whether the key was consumed.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	ev, ok := KeysymEvent(keyval, state)
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orch.HandleKey(e.factory.ctx, e.sess, ev), nil
}

// FocusIn pushes the mode to the panel and the window.
func (e *IBusEngine) FocusIn() *dbus.Error {
	mode := e.factory.opts.Modes.Mode()
	if err := e.host.emit("RegisterProperties", dbus.MakeVariant(ibusPropList{
		Name:        "IBusPropList",
		Attachments: map[string]dbus.Variant{},
		Props:       []dbus.Variant{modeProperty(mode)},
	})); err != nil {
		e.log.Warn("failed to register properties", "error", err)
	}
	if err := e.orch.Activate(e.factory.ctx); err != nil {
		e.log.Warn("failed to activate", "error", err)
	}
	return nil
}

// FocusOut abandons the composition. IBus commits the preedit itself.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.terminate("focus_out")
	return nil
}

func (e *IBusEngine) Enable() *dbus.Error { return nil }

func (e *IBusEngine) Disable() *dbus.Error {
	e.terminate("disable")
	return nil
}

func (e *IBusEngine) Reset() *dbus.Error {
	e.terminate("reset")
	return nil
}

func (e *IBusEngine) terminate(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sess.Composing() && e.sess.Empty() {
		return
	}
	e.host.abandon()
	if err := e.orch.OnCompositionTerminated(e.factory.ctx, e.sess); err != nil {
		e.log.Warn("failed to end composition", "reason", reason, "error", err)
	}
}

func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error {
	e.log.Debug("capabilities", "caps", caps)
	return nil
}

func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error { return nil }

// SetCursorLocation records the caret so the window follows it.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	e.host.setCaret(Rect{Top: y, Left: x, Bottom: y + h, Right: x + w})
	return nil
}

// SetSurroundingText records the text around the caret for conversion
// context.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	e.host.setSurrounding(textFromVariant(text), cursorPos)
	return nil
}

// PropertyActivate toggles the mode when the panel indicator is clicked.
func (e *IBusEngine) PropertyActivate(name string, state uint32) *dbus.Error {
	if name != modePropKey {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.orch.ToggleMode(e.factory.ctx, e.sess); err != nil {
		e.log.Warn("failed to toggle mode", "error", err)
	}
	return nil
}

func (e *IBusEngine) PropertyShow(name string) *dbus.Error { return nil }
func (e *IBusEngine) PropertyHide(name string) *dbus.Error { return nil }

// The IBus lookup table is never shown; candidates live in the window.
func (e *IBusEngine) PageUp() *dbus.Error { return nil }
func (e *IBusEngine) PageDown() *dbus.Error { return nil }
func (e *IBusEngine) CursorUp() *dbus.Error { return nil }
func (e *IBusEngine) CursorDown() *dbus.Error { return nil }
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

// Destroy implements org.freedesktop.IBus.Service.
func (e *IBusEngine) Destroy() *dbus.Error {
	e.terminate("destroy")
	e.factory.destroy(e.path)
	return nil
}

// ibusRange identifies one open preedit.
type ibusRange uint64

// ibusHost renders the composition as IBus preedit text. The client owns
// the document, so only the preedit and the last reported caret and
// surrounding text are known here.
type ibusHost struct {
	conn busConn
	path dbus.ObjectPath

	mu          sync.Mutex
	open        ibusRange
	next        ibusRange
	preedit     string
	caret       Rect
	surrounding string
	cursor      uint32
}

var _ Host = (*ibusHost)(nil)

func (h *ibusHost) emit(signal string, values ...interface{}) error {
	return h.conn.Emit(h.path, IBusEngineInterface+"."+signal, values...)
}

func (h *ibusHost) check(r Range) error {
	id, ok := r.(ibusRange)
	if !ok || h.open == 0 || id != h.open {
		return ErrNoComposition
	}
	return nil
}

func (h *ibusHost) updatePreedit(text string) error {
	return h.emit("UpdatePreeditText", newIBusText(text),
		uint32(utf8.RuneCountInString(text)), text != "", preeditCommitOnFocus)
}

func (h *ibusHost) StartComposition(context.Context) (Range, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.open = h.next
	h.preedit = ""
	return h.open, nil
}

func (h *ibusHost) SetText(_ context.Context, r Range, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(r); err != nil {
		return err
	}
	h.preedit = text
	return h.updatePreedit(text)
}

func (h *ibusHost) ShiftStart(_ context.Context, r Range, n int) (Range, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(r); err != nil {
		return nil, err
	}
	text := []rune(h.preedit)
	n = min(max(n, 0), len(text))
	h.preedit = string(text[n:])
	if err := h.updatePreedit(h.preedit); err != nil {
		return nil, err
	}
	if n > 0 {
		if err := h.emit("CommitText", newIBusText(string(text[:n]))); err != nil {
			return nil, err
		}
	}
	h.next++
	h.open = h.next
	return h.open, nil
}

func (h *ibusHost) EndComposition(_ context.Context, r Range) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(r); err != nil {
		return err
	}
	text := h.preedit
	h.preedit = ""
	h.open = 0
	if err := h.updatePreedit(""); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return h.emit("CommitText", newIBusText(text))
}

func (h *ibusHost) SetModeIndicator(_ context.Context, mode InputMode) error {
	return h.emit("UpdateProperty", modeProperty(mode))
}

func (h *ibusHost) CaretRect(context.Context) (Rect, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caret, nil
}

func (h *ibusHost) PrecedingText(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text := []rune(h.surrounding)
	return string(text[:min(int(h.cursor), len(text))]), nil
}

// abandon forgets the preedit after the client dropped or committed it.
func (h *ibusHost) abandon() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = 0
	h.preedit = ""
}

func (h *ibusHost) setCaret(r Rect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caret = r
}

func (h *ibusHost) setSurrounding(text string, cursor uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.surrounding = text
	h.cursor = cursor
}
