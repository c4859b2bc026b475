package ime

import "fmt"

// ActionKind identifies a UserAction variant.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionInput
	ActionNumber
	ActionBackspace
	ActionEnter
	ActionEscape
	ActionSpace
	ActionTab
	ActionNavigation
	ActionFunction
	ActionToggleInputMode
)

var actionKindNames = [...]string{
	ActionUnknown:         "unknown",
	ActionInput:           "input",
	ActionNumber:          "number",
	ActionBackspace:       "backspace",
	ActionEnter:           "enter",
	ActionEscape:          "escape",
	ActionSpace:           "space",
	ActionTab:             "tab",
	ActionNavigation:      "navigation",
	ActionFunction:        "function",
	ActionToggleInputMode: "toggle_input_mode",
}

func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return "unknown"
}

// Navigation is an arrow key direction.
type Navigation int

const (
	NavUp Navigation = iota
	NavDown
	NavLeft
	NavRight
)

func (n Navigation) String() string {
	switch n {
	case NavUp:
		return "up"
	case NavDown:
		return "down"
	case NavLeft:
		return "left"
	case NavRight:
		return "right"
	default:
		return "unknown"
	}
}

// FunctionKey is one of the script conversion keys F6..F10.
type FunctionKey int

const (
	F6 FunctionKey = 6 + iota
	F7
	F8
	F9
	F10
)

func (f FunctionKey) String() string {
	return fmt.Sprintf("F%d", int(f))
}

// Variant returns the script variant the function key renders.
func (f FunctionKey) Variant() ScriptVariant {
	switch f {
	case F6:
		return VariantHiragana
	case F7:
		return VariantKatakana
	case F8:
		return VariantHalfWidthKatakana
	case F9:
		return VariantFullWidthLatin
	default:
		return VariantHalfWidthLatin
	}
}

// UserAction is the semantic meaning of one key event. Only the field
// matching Kind is set.
type UserAction struct {
	Kind     ActionKind
	Char     rune        // ActionInput
	Digit    int         // ActionNumber
	Nav      Navigation  // ActionNavigation
	Function FunctionKey // ActionFunction
}

// Text returns the text an Input or Number action appends.
func (a UserAction) Text() string {
	switch a.Kind {
	case ActionInput:
		return string(a.Char)
	case ActionNumber:
		return string(rune('0' + a.Digit))
	default:
		return ""
	}
}

func (a UserAction) String() string {
	switch a.Kind {
	case ActionInput:
		return fmt.Sprintf("input(%q)", a.Char)
	case ActionNumber:
		return fmt.Sprintf("number(%d)", a.Digit)
	case ActionNavigation:
		return "navigation(" + a.Nav.String() + ")"
	case ActionFunction:
		return "function(" + a.Function.String() + ")"
	default:
		return a.Kind.String()
	}
}

// Input returns an Input action for c.
func Input(c rune) UserAction { return UserAction{Kind: ActionInput, Char: c} }

// Number returns a Number action for digit d.
func Number(d int) UserAction { return UserAction{Kind: ActionNumber, Digit: d} }

// Navigate returns a Navigation action.
func Navigate(n Navigation) UserAction { return UserAction{Kind: ActionNavigation, Nav: n} }

// Function returns a Function action.
func Function(f FunctionKey) UserAction { return UserAction{Kind: ActionFunction, Function: f} }

// Simple returns an action without payload (Backspace, Enter, ...).
func Simple(k ActionKind) UserAction { return UserAction{Kind: k} }

// Classify maps a virtual-key code and modifier state to a UserAction.
// Digits are numbers only without Shift, so shifted digits fall through to
// the layout translator and come back as symbols. Keys without a fixed
// mapping are translated by tr; when tr is nil or yields nothing the result
// is ActionUnknown.
func Classify(code uint32, mods Modifiers, tr KeyTranslator) UserAction {
	switch code {
	case VKBack:
		return Simple(ActionBackspace)
	case VKTab:
		return Simple(ActionTab)
	case VKReturn:
		return Simple(ActionEnter)
	case VKSpace:
		return Simple(ActionSpace)
	case VKEscape:
		return Simple(ActionEscape)
	case VKLeft:
		return Navigate(NavLeft)
	case VKUp:
		return Navigate(NavUp)
	case VKRight:
		return Navigate(NavRight)
	case VKDown:
		return Navigate(NavDown)
	case VKF6, VKF7, VKF8, VKF9, VKF10:
		return Function(FunctionKey(6 + code - VKF6))
	case VKOEMAttn, VKOEMCopy:
		return Simple(ActionToggleInputMode)
	}

	if !mods.Has(ModShift) {
		switch {
		case code >= VK0 && code <= VK9:
			return Number(int(code - VK0))
		case code >= VKNumpad0 && code <= VKNumpad9:
			return Number(int(code - VKNumpad0))
		}
	}

	if tr == nil {
		return Simple(ActionUnknown)
	}
	r, ok := tr.Translate(code, mods)
	if !ok || r < 0x20 || r == 0x7F {
		return Simple(ActionUnknown)
	}
	return Input(r)
}
