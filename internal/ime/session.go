package ime

import "unicode/utf8"

// CompositionState is where a session is in the composition lifecycle.
type CompositionState int

const (
	StateIdle CompositionState = iota
	StateComposing
	StatePreviewing
	// StateSelecting is reserved; no decision produces it.
	StateSelecting
)

func (s CompositionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StatePreviewing:
		return "previewing"
	case StateSelecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Range is the host's editable composition range. The orchestrator never
// looks inside it; it only hands it back to the Host that created it.
type Range any

// Session is the in-progress composition of one focused text field.
// It is owned by a single caller and must not be shared between goroutines.
type Session struct {
	// FocusID identifies the text field for logging.
	FocusID string

	// RawInput is the keystroke history as typed, before normalization.
	RawInput string

	// Preview is the selected candidate's text.
	Preview string

	// Suffix is the unconverted remainder shown after Preview.
	Suffix string

	// SelectionIndex is the candidate cursor.
	SelectionIndex int

	// Candidates is the current conversion result.
	Candidates Candidates

	// State is the composition state.
	State CompositionState

	// Committed counts characters committed into the host by shrinking
	// during this composition.
	Committed int

	rng Range

	// variant is set while Preview holds a script variant of the whole
	// composition rather than a candidate.
	variant bool
}

// NewSession creates an idle session for a text field.
func NewSession(focusID string) *Session {
	return &Session{FocusID: focusID}
}

// Reset clears the session back to Idle.
func (s *Session) Reset() {
	focus := s.FocusID
	*s = Session{FocusID: focus}
}

// Display is the composed text shown in the host.
func (s *Session) Display() string {
	return s.Preview + s.Suffix
}

// Glyphs returns how many characters are visible in the composition.
func (s *Session) Glyphs() int {
	return utf8.RuneCountInString(s.Display())
}

// HasSuffix reports whether an unconverted remainder is shown.
func (s *Session) HasSuffix() bool {
	return s.Suffix != ""
}

// Empty reports whether nothing is being composed.
func (s *Session) Empty() bool {
	return s.Preview == "" && s.RawInput == "" && s.Suffix == ""
}

// Composing reports whether the host range is open.
func (s *Session) Composing() bool {
	return s.rng != nil
}

// Selected returns the candidate under the cursor.
func (s *Session) Selected() (Candidate, bool) {
	if s.Candidates.Empty() {
		return Candidate{}, false
	}
	return s.Candidates.At(s.SelectionIndex), true
}

// CorrespondingCount returns how many raw input characters the selected
// candidate consumes, capped at the raw input length.
func (s *Session) CorrespondingCount() int {
	c, ok := s.Selected()
	if !ok {
		return 0
	}
	return min(int(c.CorrespondingCount), utf8.RuneCountInString(s.RawInput))
}

// consumed returns how many raw characters committing Preview consumes.
func (s *Session) consumed() int {
	if s.variant {
		return utf8.RuneCountInString(s.RawInput)
	}
	return s.CorrespondingCount()
}

// inputLen is the engine's remaining input length: the widest span any
// candidate covers.
func (c Candidates) inputLen() int {
	n := int32(0)
	for _, cc := range c.CorrespondingCount {
		n = max(n, cc)
	}
	return int(n)
}

// Reading returns the native-script reading of the whole composition.
func (s *Session) Reading() string {
	c, ok := s.Selected()
	if !ok {
		return s.RawInput
	}
	return c.Hiragana + c.SubText
}

// setCandidates replaces the candidate set, clamps the cursor and derives
// Preview and Suffix from the selected candidate.
func (s *Session) setCandidates(c Candidates, selection int) {
	s.Candidates = c
	s.SelectionIndex = At(selection).Apply(0, c.Len())
	s.refresh()
}

func (s *Session) refresh() {
	s.variant = false
	c, ok := s.Selected()
	if !ok {
		s.SelectionIndex = 0
		s.Preview = ""
		s.Suffix = ""
		return
	}
	s.Preview = c.Text
	s.Suffix = c.SubText
}

// truncateRaw keeps the first n characters of RawInput.
func (s *Session) truncateRaw(n int) {
	s.RawInput = headRunes(s.RawInput, n)
}

// dropRaw removes the first n characters of RawInput.
func (s *Session) dropRaw(n int) {
	s.RawInput = s.RawInput[len(headRunes(s.RawInput, n)):]
}

func headRunes(str string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range str {
		if i == n {
			return str[:pos]
		}
		i++
	}
	return str
}
