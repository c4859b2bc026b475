package ime

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// fakeEngine is a deterministic engine. Every candidate covers the whole
// input except, once the input is longer than split, candidate 0 which
// converts only the first split characters and leaves the rest as suffix.
type fakeEngine struct {
	input   []rune
	split   int
	context string
	calls   []string
	fail    map[string]error
}

func (e *fakeEngine) call(name string) error {
	e.calls = append(e.calls, name)
	return e.fail[name]
}

func (e *fakeEngine) candidates() Candidates {
	if len(e.input) == 0 {
		return Candidates{}
	}
	s := string(e.input)
	n := int32(len(e.input))
	var c Candidates
	if e.split > 0 && len(e.input) > e.split {
		head := string(e.input[:e.split])
		c.Append(Candidate{
			Text:               strings.ToUpper(head),
			SubText:            string(e.input[e.split:]),
			Hiragana:           head,
			CorrespondingCount: int32(e.split),
		})
	}
	c.Append(Candidate{Text: strings.ToUpper(s), Hiragana: s, CorrespondingCount: n})
	c.Append(Candidate{Text: s, Hiragana: s, CorrespondingCount: n})
	c.Append(Candidate{Text: "[" + s + "]", Hiragana: s, CorrespondingCount: n})
	return c
}

func (e *fakeEngine) AppendText(_ context.Context, text string) (Candidates, error) {
	if err := e.call("append_text:" + text); err != nil {
		return Candidates{}, err
	}
	e.input = append(e.input, []rune(text)...)
	return e.candidates(), nil
}

func (e *fakeEngine) RemoveText(context.Context) (Candidates, error) {
	if err := e.call("remove_text"); err != nil {
		return Candidates{}, err
	}
	if len(e.input) > 0 {
		e.input = e.input[:len(e.input)-1]
	}
	return e.candidates(), nil
}

func (e *fakeEngine) ShrinkText(_ context.Context, offset int32) (Candidates, error) {
	if err := e.call("shrink_text"); err != nil {
		return Candidates{}, err
	}
	e.input = e.input[min(int(offset), len(e.input)):]
	return e.candidates(), nil
}

func (e *fakeEngine) ClearText(context.Context) error {
	if err := e.call("clear_text"); err != nil {
		return err
	}
	e.input = nil
	return nil
}

func (e *fakeEngine) SetContext(_ context.Context, preceding string) error {
	if err := e.call("set_context"); err != nil {
		return err
	}
	e.context = preceding
	return nil
}

type fakeWindow struct {
	visible    bool
	pos        Rect
	candidates []string
	selection  int32
	label      string
	calls      []string
	fail       map[string]error
}

func (w *fakeWindow) call(name string) error {
	w.calls = append(w.calls, name)
	return w.fail[name]
}

func (w *fakeWindow) Show(context.Context) error {
	if err := w.call("show"); err != nil {
		return err
	}
	w.visible = true
	return nil
}

func (w *fakeWindow) Hide(context.Context) error {
	if err := w.call("hide"); err != nil {
		return err
	}
	w.visible = false
	return nil
}

func (w *fakeWindow) SetPosition(_ context.Context, r Rect) error {
	if err := w.call("set_position"); err != nil {
		return err
	}
	w.pos = r
	return nil
}

func (w *fakeWindow) SetCandidates(_ context.Context, texts []string) error {
	if err := w.call("set_candidates"); err != nil {
		return err
	}
	w.candidates = append([]string(nil), texts...)
	return nil
}

func (w *fakeWindow) SetSelection(_ context.Context, index int32) error {
	if err := w.call("set_selection"); err != nil {
		return err
	}
	w.selection = index
	return nil
}

func (w *fakeWindow) SetInputMode(_ context.Context, label string) error {
	if err := w.call("set_input_mode"); err != nil {
		return err
	}
	w.label = label
	return nil
}

// fakeHost models a document with the composition at its end.
type fakeHost struct {
	doc       string
	comp      string
	open      *int
	nextID    int
	preceding string
	mode      InputMode
	calls     []string
	fail      map[string]error
}

var errStaleRange = errors.New("stale range")

func (h *fakeHost) call(name string) error {
	h.calls = append(h.calls, name)
	return h.fail[name]
}

func (h *fakeHost) check(r Range) error {
	id, ok := r.(*int)
	if !ok || h.open == nil || id != h.open {
		return errStaleRange
	}
	return nil
}

func (h *fakeHost) StartComposition(context.Context) (Range, error) {
	if err := h.call("start_composition"); err != nil {
		return nil, err
	}
	h.nextID++
	id := h.nextID
	h.open = &id
	h.comp = ""
	return h.open, nil
}

func (h *fakeHost) SetText(_ context.Context, r Range, text string) error {
	if err := h.call("set_text"); err != nil {
		return err
	}
	if err := h.check(r); err != nil {
		return err
	}
	h.comp = text
	return nil
}

func (h *fakeHost) ShiftStart(_ context.Context, r Range, n int) (Range, error) {
	if err := h.call("shift_start"); err != nil {
		return nil, err
	}
	if err := h.check(r); err != nil {
		return nil, err
	}
	head := string([]rune(h.comp)[:min(n, utf8.RuneCountInString(h.comp))])
	h.doc += head
	h.comp = h.comp[len(head):]
	h.nextID++
	id := h.nextID
	h.open = &id
	return h.open, nil
}

func (h *fakeHost) EndComposition(_ context.Context, r Range) error {
	if err := h.call("end_composition"); err != nil {
		return err
	}
	if err := h.check(r); err != nil {
		return err
	}
	h.doc += h.comp
	h.comp = ""
	h.open = nil
	return nil
}

func (h *fakeHost) SetModeIndicator(_ context.Context, mode InputMode) error {
	if err := h.call("set_mode_indicator"); err != nil {
		return err
	}
	h.mode = mode
	return nil
}

func (h *fakeHost) CaretRect(context.Context) (Rect, error) {
	return Rect{Top: 10, Left: 20, Bottom: 30, Right: 21}, nil
}

func (h *fakeHost) PrecedingText(context.Context) (string, error) {
	return h.preceding, nil
}

// memModeStore keeps the saved mode in memory.
type memModeStore struct {
	saved *InputMode
	saves int
}

func (s *memModeStore) LoadMode() (InputMode, error) {
	if s.saved == nil {
		return ModeLatin, errors.New("nothing saved")
	}
	return *s.saved, nil
}

func (s *memModeStore) SaveMode(mode InputMode) error {
	s.saves++
	s.saved = &mode
	return nil
}
