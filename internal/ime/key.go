package ime

import "time"

// Windows virtual-key codes understood by the classifier. Other platforms
// translate their native key codes into these before classification.
const (
	VKBack     uint32 = 0x08
	VKTab      uint32 = 0x09
	VKReturn   uint32 = 0x0D
	VKShift    uint32 = 0x10
	VKControl  uint32 = 0x11
	VKEscape   uint32 = 0x1B
	VKSpace    uint32 = 0x20
	VKLeft     uint32 = 0x25
	VKUp       uint32 = 0x26
	VKRight    uint32 = 0x27
	VKDown     uint32 = 0x28
	VK0        uint32 = 0x30
	VK9        uint32 = 0x39
	VKA        uint32 = 0x41
	VKZ        uint32 = 0x5A
	VKNumpad0  uint32 = 0x60
	VKNumpad9  uint32 = 0x69
	VKF6       uint32 = 0x75
	VKF7       uint32 = 0x76
	VKF8       uint32 = 0x77
	VKF9       uint32 = 0x78
	VKF10      uint32 = 0x79
	VKOEMAttn  uint32 = 0xF3 // Zenkaku/Hankaku on JIS keyboards
	VKOEMCopy  uint32 = 0xF4 // Zenkaku/Hankaku, second scan code
)

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Command on macOS, Windows key on Windows
)

// Has reports whether all modifiers in m are held.
func (mods Modifiers) Has(m Modifiers) bool {
	return mods&m == m
}

// KeyEvent is a key press delivered by the host.
type KeyEvent struct {
	// Code is the virtual-key code (see the VK constants).
	Code uint32

	// Modifiers indicates which modifier keys are held.
	Modifiers Modifiers

	// Timestamp is when the key event occurred.
	// If zero, the current time is used.
	Timestamp time.Time
}

// NewKeyEvent creates a key event for the given code and modifiers.
func NewKeyEvent(code uint32, mods Modifiers) KeyEvent {
	return KeyEvent{Code: code, Modifiers: mods, Timestamp: time.Now()}
}

// KeyTranslator resolves a key code to the character the active keyboard
// layout produces for it. Hosts provide it; it returns false when the key
// produces no character.
type KeyTranslator interface {
	Translate(code uint32, mods Modifiers) (rune, bool)
}

// KeyTranslatorFunc adapts a function to KeyTranslator.
type KeyTranslatorFunc func(code uint32, mods Modifiers) (rune, bool)

// Translate calls f(code, mods).
func (f KeyTranslatorFunc) Translate(code uint32, mods Modifiers) (rune, bool) {
	return f(code, mods)
}

// usShifted maps US layout keys to their shifted characters.
var usShifted = map[uint32]rune{
	0x30: ')', 0x31: '!', 0x32: '@', 0x33: '#', 0x34: '$',
	0x35: '%', 0x36: '^', 0x37: '&', 0x38: '*', 0x39: '(',
	0xBA: ':', 0xBB: '+', 0xBC: '<', 0xBD: '_', 0xBE: '>',
	0xBF: '?', 0xC0: '~', 0xDB: '{', 0xDC: '|', 0xDD: '}', 0xDE: '"',
}

// usUnshifted maps US layout OEM keys to their characters.
var usUnshifted = map[uint32]rune{
	0xBA: ';', 0xBB: '=', 0xBC: ',', 0xBD: '-', 0xBE: '.',
	0xBF: '/', 0xC0: '`', 0xDB: '[', 0xDC: '\\', 0xDD: ']', 0xDE: '\'',
}

// USLayout is a KeyTranslator for the US keyboard layout. Hosts without
// access to the platform layout (tests, the playground) use it.
var USLayout KeyTranslator = KeyTranslatorFunc(func(code uint32, mods Modifiers) (rune, bool) {
	shift := mods.Has(ModShift)
	switch {
	case code >= VKA && code <= VKZ:
		if shift {
			return rune(code), true
		}
		return rune(code) + ('a' - 'A'), true
	case code >= VK0 && code <= VK9 && !shift:
		return rune(code), true
	case code >= VKNumpad0 && code <= VKNumpad9:
		return '0' + rune(code-VKNumpad0), true
	}
	if shift {
		r, ok := usShifted[code]
		return r, ok
	}
	r, ok := usUnshifted[code]
	return r, ok
})
