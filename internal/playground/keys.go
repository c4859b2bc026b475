package playground

import (
	tea "github.com/charmbracelet/bubbletea"

	"kanaime/internal/ime"
)

// runeBase offsets key codes that carry a character directly. Terminals
// report characters, not key positions, so symbols travel this way instead
// of through a keyboard layout.
const runeBase uint32 = 0x10000

// Translator resolves the key codes produced by KeyEvent.
var Translator ime.KeyTranslator = ime.KeyTranslatorFunc(func(code uint32, mods ime.Modifiers) (rune, bool) {
	if code >= runeBase {
		return rune(code - runeBase), true
	}
	return ime.USLayout.Translate(code, mods)
})

var namedKeys = map[tea.KeyType]uint32{
	tea.KeyBackspace: ime.VKBack,
	tea.KeyTab:       ime.VKTab,
	tea.KeyEnter:     ime.VKReturn,
	tea.KeySpace:     ime.VKSpace,
	tea.KeyEsc:       ime.VKEscape,
	tea.KeyLeft:      ime.VKLeft,
	tea.KeyUp:        ime.VKUp,
	tea.KeyRight:     ime.VKRight,
	tea.KeyDown:      ime.VKDown,
	tea.KeyF6:        ime.VKF6,
	tea.KeyF7:        ime.VKF7,
	tea.KeyF8:        ime.VKF8,
	tea.KeyF9:        ime.VKF9,
	tea.KeyF10:       ime.VKF10,
}

// KeyEvent converts a terminal key to the virtual key the input method
// classifies. It returns false for keys with no virtual key.
func KeyEvent(msg tea.KeyMsg) (ime.KeyEvent, bool) {
	var mods ime.Modifiers
	if msg.Alt {
		mods |= ime.ModAlt
	}
	if code, ok := namedKeys[msg.Type]; ok {
		return ime.NewKeyEvent(code, mods), true
	}
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return ime.KeyEvent{}, false
	}

	r := msg.Runes[0]
	switch {
	case r >= 'a' && r <= 'z':
		return ime.NewKeyEvent(ime.VKA+uint32(r-'a'), mods), true
	case r >= 'A' && r <= 'Z':
		return ime.NewKeyEvent(ime.VKA+uint32(r-'A'), mods|ime.ModShift), true
	case r >= '0' && r <= '9':
		return ime.NewKeyEvent(ime.VK0+uint32(r-'0'), mods), true
	case r == ' ':
		return ime.NewKeyEvent(ime.VKSpace, mods), true
	default:
		return ime.NewKeyEvent(runeBase+uint32(r), mods), true
	}
}
