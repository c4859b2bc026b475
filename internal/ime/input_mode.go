package ime

import "fmt"

// InputMode selects how typed characters are treated.
type InputMode int

const (
	// ModeLatin passes keys through to the host unchanged.
	ModeLatin InputMode = iota
	// ModeKana routes keys through composition and conversion.
	ModeKana
)

// String returns the string representation of the mode.
func (m InputMode) String() string {
	switch m {
	case ModeLatin:
		return "latin"
	case ModeKana:
		return "kana"
	default:
		return "unknown"
	}
}

// Label is the short indicator shown by the host and the candidate window.
func (m InputMode) Label() string {
	if m == ModeKana {
		return "あ"
	}
	return "A"
}

// Toggle returns the other mode.
func (m InputMode) Toggle() InputMode {
	if m == ModeKana {
		return ModeLatin
	}
	return ModeKana
}

// ParseInputMode parses a mode name as written in configuration files.
func ParseInputMode(s string) (InputMode, error) {
	switch s {
	case "latin", "Latin", "alphanumeric":
		return ModeLatin, nil
	case "kana", "Kana", "hiragana":
		return ModeKana, nil
	default:
		return ModeLatin, fmt.Errorf("unknown input mode: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m InputMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *InputMode) UnmarshalText(b []byte) error {
	mode, err := ParseInputMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
