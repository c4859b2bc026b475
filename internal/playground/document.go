// Package playground is a terminal text field for trying the input method
// without a desktop host. Document plays the host; Model is the bubbletea
// program around it.
package playground

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"kanaime/internal/ime"
)

var errStaleRange = errors.New("playground: composition range is no longer open")

// rangeID identifies one open composition range.
type rangeID int

// Document is an in-memory text field with the caret at its end. It
// implements ime.Host.
type Document struct {
	mu     sync.Mutex
	text   []rune
	comp   string
	open   rangeID
	nextID rangeID
	mode   ime.InputMode
	width  int
}

var _ ime.Host = (*Document)(nil)

// NewDocument creates an empty document. width is used to place the caret
// rectangle; lines wrap at it.
func NewDocument(width int) *Document {
	if width <= 0 {
		width = 80
	}
	return &Document{width: width}
}

// Text returns the committed text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.text)
}

// Composition returns the text of the open range.
func (d *Document) Composition() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.comp
}

// Mode returns the mode last shown by the indicator.
func (d *Document) Mode() ime.InputMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Type inserts text typed while the input method did not consume a key.
func (d *Document) Type(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = append(d.text, []rune(text)...)
}

// Backspace deletes the last committed character.
func (d *Document) Backspace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.text); n > 0 {
		d.text = d.text[:n-1]
	}
}

// Clear empties the document.
func (d *Document) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = nil
}

func (d *Document) check(r ime.Range) error {
	id, ok := r.(rangeID)
	if !ok || d.open == 0 || id != d.open {
		return errStaleRange
	}
	return nil
}

func (d *Document) StartComposition(context.Context) (ime.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.open = d.nextID
	d.comp = ""
	return d.open, nil
}

func (d *Document) SetText(_ context.Context, r ime.Range, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(r); err != nil {
		return err
	}
	d.comp = text
	return nil
}

// ShiftStart commits the first n characters of the composition and opens
// a new range over the rest.
func (d *Document) ShiftStart(_ context.Context, r ime.Range, n int) (ime.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(r); err != nil {
		return nil, err
	}
	comp := []rune(d.comp)
	n = min(max(n, 0), len(comp))
	d.text = append(d.text, comp[:n]...)
	d.comp = string(comp[n:])
	d.nextID++
	d.open = d.nextID
	return d.open, nil
}

func (d *Document) EndComposition(_ context.Context, r ime.Range) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(r); err != nil {
		return err
	}
	d.text = append(d.text, []rune(d.comp)...)
	d.comp = ""
	d.open = 0
	return nil
}

func (d *Document) SetModeIndicator(_ context.Context, mode ime.InputMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
	return nil
}

// CaretRect returns a one-cell rectangle at the caret in character cells.
func (d *Document) CaretRect(context.Context) (ime.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	last := string(d.text)
	if i := strings.LastIndexByte(last, '\n'); i >= 0 {
		last = last[i+1:]
	}
	col := utf8.RuneCountInString(last) + utf8.RuneCountInString(d.comp)
	row := int32(strings.Count(string(d.text), "\n") + col/d.width)
	left := int32(col % d.width)
	return ime.Rect{Top: row, Left: left, Bottom: row + 1, Right: left + 1}, nil
}

func (d *Document) PrecedingText(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.ReplaceAll(string(d.text), "\n", "\r"), nil
}
