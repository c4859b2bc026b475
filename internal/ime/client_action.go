package ime

import "fmt"

// ClientAction is one step of a decision, executed in order by the
// orchestrator. The concrete types below are the complete set.
type ClientAction interface {
	clientAction()
	Name() string
}

// StartComposition opens an editable range at the caret and shows the
// candidate window.
type StartComposition struct{}

// EndComposition commits the visible text, closes the range, hides and
// clears the window and resets the session.
type EndComposition struct{}

// AppendText adds typed text to the raw input and reconverts.
type AppendText struct{ Text string }

// RemoveText deletes the last raw input character and reconverts.
type RemoveText struct{}

// ShrinkText commits the selected candidate as a prefix, then appends Text
// to what remains.
type ShrinkText struct{ Text string }

// MoveCursor moves the cursor inside the composition. It is a no-op until
// the engine exposes interior cursor movement.
type MoveCursor struct{ Offset int }

// SetSelection moves the candidate cursor.
type SetSelection struct{ Selection Selection }

// SetTextWithType renders a script variant of the reading.
type SetTextWithType struct{ Variant ScriptVariant }

// SetIMEMode switches the input mode and clears the session.
type SetIMEMode struct{ Mode InputMode }

func (StartComposition) clientAction() {}
func (EndComposition) clientAction()   {}
func (AppendText) clientAction()       {}
func (RemoveText) clientAction()       {}
func (ShrinkText) clientAction()       {}
func (MoveCursor) clientAction()       {}
func (SetSelection) clientAction()     {}
func (SetTextWithType) clientAction()  {}
func (SetIMEMode) clientAction()       {}

func (StartComposition) Name() string { return "start_composition" }
func (EndComposition) Name() string   { return "end_composition" }
func (AppendText) Name() string       { return "append_text" }
func (RemoveText) Name() string       { return "remove_text" }
func (ShrinkText) Name() string       { return "shrink_text" }
func (MoveCursor) Name() string       { return "move_cursor" }
func (SetSelection) Name() string     { return "set_selection" }
func (SetTextWithType) Name() string  { return "set_text_with_type" }
func (SetIMEMode) Name() string       { return "set_ime_mode" }

// SelectionDir is how a SetSelection action moves the cursor.
type SelectionDir int

const (
	SelectUp SelectionDir = iota
	SelectDown
	SelectIndex
)

// Selection is a relative move or an absolute index.
type Selection struct {
	Dir   SelectionDir
	Index int // SelectIndex only
}

// Up moves the candidate cursor one up.
func Up() Selection { return Selection{Dir: SelectUp} }

// Down moves the candidate cursor one down.
func Down() Selection { return Selection{Dir: SelectDown} }

// At selects candidate i.
func At(i int) Selection { return Selection{Dir: SelectIndex, Index: i} }

// Apply returns the new selection index for a candidate list of length n.
// The result is clamped to [0, n-1] and never wraps; it is 0 when n is 0.
func (s Selection) Apply(current, n int) int {
	if n <= 0 {
		return 0
	}
	next := current
	switch s.Dir {
	case SelectUp:
		next = current - 1
	case SelectDown:
		next = current + 1
	case SelectIndex:
		next = s.Index
	}
	return clamp(next, 0, n-1)
}

func (s Selection) String() string {
	switch s.Dir {
	case SelectUp:
		return "up"
	case SelectDown:
		return "down"
	default:
		return fmt.Sprintf("index(%d)", s.Index)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScriptVariant is a direct rendering of the reading chosen with F6..F10.
type ScriptVariant int

const (
	VariantHiragana ScriptVariant = iota
	VariantKatakana
	VariantHalfWidthKatakana
	VariantFullWidthLatin
	VariantHalfWidthLatin
)

func (v ScriptVariant) String() string {
	switch v {
	case VariantHiragana:
		return "hiragana"
	case VariantKatakana:
		return "katakana"
	case VariantHalfWidthKatakana:
		return "halfwidth_katakana"
	case VariantFullWidthLatin:
		return "fullwidth_latin"
	case VariantHalfWidthLatin:
		return "halfwidth_latin"
	default:
		return "unknown"
	}
}
