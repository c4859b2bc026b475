package ime

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrBusy is returned when an orchestration step is already running.
	// Steps never nest, so this indicates a re-entrant call from a host
	// callback rather than real contention.
	ErrBusy = errors.New("ime: orchestration step already in progress")

	// ErrNoComposition is returned when text is rendered without an open
	// host range.
	ErrNoComposition = errors.New("ime: no composition range")
)

// ConversionEngine is the conversion engine as seen by the orchestrator.
// Every call blocks until the engine answers. The engine keeps a single
// composing buffer per connection.
type ConversionEngine interface {
	AppendText(ctx context.Context, text string) (Candidates, error)
	RemoveText(ctx context.Context) (Candidates, error)
	ShrinkText(ctx context.Context, offset int32) (Candidates, error)
	ClearText(ctx context.Context) error
	SetContext(ctx context.Context, preceding string) error
}

// Rect is a screen rectangle in host coordinates.
type Rect struct {
	Top, Left, Bottom, Right int32
}

// CandidateWindow is the candidate list renderer.
type CandidateWindow interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	SetPosition(ctx context.Context, r Rect) error
	SetCandidates(ctx context.Context, texts []string) error
	SetSelection(ctx context.Context, index int32) error
	SetInputMode(ctx context.Context, label string) error
}

// Host is the text framework that owns the document. Ranges it returns are
// opaque to the orchestrator.
type Host interface {
	// StartComposition opens an editable range at the caret.
	StartComposition(ctx context.Context) (Range, error)

	// SetText replaces the text of the range.
	SetText(ctx context.Context, r Range, text string) error

	// ShiftStart commits the first n characters of the range to the
	// document and returns the range covering the rest.
	ShiftStart(ctx context.Context, r Range, n int) (Range, error)

	// EndComposition closes the range, leaving its text in the document.
	EndComposition(ctx context.Context, r Range) error

	// SetModeIndicator updates the host's input mode icon.
	SetModeIndicator(ctx context.Context, mode InputMode) error

	// CaretRect returns the caret position for placing the window.
	CaretRect(ctx context.Context) (Rect, error)

	// PrecedingText returns the document text before the caret.
	PrecedingText(ctx context.Context) (string, error)
}
