package ime

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// execute runs d.Actions in order and then moves the session to d.Next.
// The first failing action aborts the batch and leaves the session in its
// last successfully updated state. A RemoveText that empties the
// composition forces the session Idle whatever d.Next says.
//
// A range opened by a batch that then fails is closed again, so an Idle
// session never holds a host composition.
func (o *Orchestrator) execute(ctx context.Context, sess *Session, d Decision) error {
	next := d.Next
	wasOpen := sess.Composing()
	for _, a := range d.Actions {
		forcedIdle, err := o.apply(ctx, sess, a)
		o.metrics.RecordAction(ctx, a.Name(), err)
		if err != nil {
			if !wasOpen && sess.State == StateIdle && sess.Composing() {
				o.abandon(ctx, sess)
			}
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
		if forcedIdle {
			next = StateIdle
		}
	}
	sess.State = next
	return nil
}

func (o *Orchestrator) apply(ctx context.Context, sess *Session, a ClientAction) (forcedIdle bool, err error) {
	switch a := a.(type) {
	case StartComposition:
		return false, o.startComposition(ctx, sess)
	case EndComposition:
		return false, o.endComposition(ctx, sess)
	case AppendText:
		return false, o.appendText(ctx, sess, a.Text)
	case RemoveText:
		return o.removeText(ctx, sess)
	case ShrinkText:
		return o.shrinkText(ctx, sess, a.Text)
	case MoveCursor:
		o.log.Debug("cursor movement inside the composition is not supported", "offset", a.Offset)
		return false, nil
	case SetSelection:
		return false, o.setSelection(ctx, sess, a.Selection)
	case SetTextWithType:
		return false, o.setTextWithType(ctx, sess, a.Variant)
	case SetIMEMode:
		return false, o.setIMEMode(ctx, sess, a.Mode)
	default:
		return false, fmt.Errorf("unknown action %T", a)
	}
}

func (o *Orchestrator) startComposition(ctx context.Context, sess *Session) error {
	if o.engineDirty {
		if err := o.engine.ClearText(ctx); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		o.engineDirty = false
	}
	rng, err := o.host.StartComposition(ctx)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	sess.rng = rng
	sess.Committed = 0
	o.metrics.CompositionOpened(ctx)

	if rect, err := o.host.CaretRect(ctx); err != nil {
		o.log.Debug("caret position unavailable", "error", err)
	} else if err := o.window.SetPosition(ctx, rect); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	if err := o.window.Show(ctx); err != nil {
		return fmt.Errorf("window: %w", err)
	}

	preceding, err := o.host.PrecedingText(ctx)
	if err != nil {
		o.log.Debug("preceding text unavailable", "error", err)
		return nil
	}
	if preceding == "" {
		return nil
	}
	if err := o.engine.SetContext(ctx, preceding); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// endComposition commits what is displayed and clears every collaborator.
// It is a plain reset when there is nothing to end, so running it after a
// RemoveText that already ended the composition is harmless.
//
// The session is reset even when a collaborator fails: once the host has
// been asked to close the range the composition is over. Those failures are
// still returned, and an engine that could not be cleared is cleared before
// the next composition starts.
func (o *Orchestrator) endComposition(ctx context.Context, sess *Session) error {
	if !sess.Composing() && sess.Empty() && sess.Candidates.Empty() {
		sess.Reset()
		return nil
	}

	var errs []error
	if sess.Composing() {
		commit := sess.Display()
		// A failed SetText leaves the last rendered text in place, which is
		// what the user saw; EndComposition commits that instead.
		if err := o.host.SetText(ctx, sess.rng, commit); err != nil {
			errs = append(errs, fmt.Errorf("host: %w", err))
			commit = ""
		}
		if err := o.host.EndComposition(ctx, sess.rng); err != nil {
			errs = append(errs, fmt.Errorf("host: %w", err))
			commit = ""
		}
		sess.rng = nil
		o.metrics.CompositionClosed(ctx)
		if commit != "" {
			o.metrics.RecordCommit(ctx, "end")
			o.log.Debug("committed", "focus", sess.FocusID, "commit", commit)
		}
	}
	sess.Reset()

	if err := o.engine.ClearText(ctx); err != nil {
		o.engineDirty = true
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := o.window.Hide(ctx); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}
	if err := o.window.SetCandidates(ctx, nil); err != nil {
		errs = append(errs, fmt.Errorf("window: %w", err))
	}
	return errors.Join(errs...)
}

// abandon closes a composition whose batch failed before it showed any
// text.
func (o *Orchestrator) abandon(ctx context.Context, sess *Session) {
	if err := o.endComposition(ctx, sess); err != nil {
		o.log.Debug("failed to close abandoned composition", "focus", sess.FocusID, "error", err)
	}
}

// settle brings the host and the window back in line with the session
// after a step failed halfway.
func (o *Orchestrator) settle(ctx context.Context, sess *Session) {
	var err error
	if sess.Candidates.Empty() {
		err = o.endComposition(ctx, sess)
	} else {
		err = o.render(ctx, sess)
	}
	if err != nil {
		o.log.Debug("failed to resync after error", "focus", sess.FocusID, "error", err)
	}
}

func (o *Orchestrator) appendText(ctx context.Context, sess *Session, text string) error {
	cands, err := o.engine.AppendText(ctx, Normalize(text, o.modes.Mode()))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	sess.RawInput += text
	sess.setCandidates(cands, sess.SelectionIndex)
	return o.render(ctx, sess)
}

func (o *Orchestrator) removeText(ctx context.Context, sess *Session) (bool, error) {
	cands, err := o.engine.RemoveText(ctx)
	if err != nil {
		return false, fmt.Errorf("engine: %w", err)
	}
	if cands.Empty() {
		sess.RawInput = ""
		sess.setCandidates(cands, 0)
		return true, o.endComposition(ctx, sess)
	}
	sess.setCandidates(cands, sess.SelectionIndex)
	sess.truncateRaw(cands.inputLen())
	return false, o.render(ctx, sess)
}

// shrinkText commits the selected candidate and keeps composing the rest of
// the input, followed by text when it is not empty. The session follows the
// engine as soon as the engine has dropped the prefix, so a later failure
// cannot commit the prefix twice.
func (o *Orchestrator) shrinkText(ctx context.Context, sess *Session, text string) (bool, error) {
	if !sess.Composing() {
		return false, ErrNoComposition
	}
	consumed := sess.consumed()
	prefix := sess.Preview

	cands, err := o.engine.ShrinkText(ctx, int32(consumed))
	if err != nil {
		return false, fmt.Errorf("engine: %w", err)
	}
	sess.dropRaw(consumed)
	sess.setCandidates(cands, 0)

	if err := o.host.SetText(ctx, sess.rng, prefix); err != nil {
		return false, fmt.Errorf("host: %w", err)
	}
	n := utf8.RuneCountInString(prefix)
	rng, err := o.host.ShiftStart(ctx, sess.rng, n)
	if err != nil {
		return false, fmt.Errorf("host: %w", err)
	}
	sess.rng = rng
	sess.Committed += n
	o.metrics.RecordCommit(ctx, "shrink")

	if text != "" {
		more, err := o.engine.AppendText(ctx, Normalize(text, o.modes.Mode()))
		if err != nil {
			o.settle(ctx, sess)
			return false, fmt.Errorf("engine: %w", err)
		}
		sess.RawInput += text
		sess.setCandidates(more, 0)
	}

	if sess.Candidates.Empty() {
		return true, o.endComposition(ctx, sess)
	}
	return false, o.render(ctx, sess)
}

func (o *Orchestrator) setSelection(ctx context.Context, sess *Session, sel Selection) error {
	idx := sel.Apply(sess.SelectionIndex, sess.Candidates.Len())
	if err := o.window.SetSelection(ctx, int32(idx)); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	sess.SelectionIndex = idx
	sess.refresh()
	return o.setHostText(ctx, sess)
}

func (o *Orchestrator) setTextWithType(ctx context.Context, sess *Session, v ScriptVariant) error {
	sess.Preview = RenderVariant(v, sess.Reading(), sess.RawInput)
	sess.Suffix = ""
	sess.variant = true
	return o.setHostText(ctx, sess)
}

func (o *Orchestrator) setIMEMode(ctx context.Context, sess *Session, mode InputMode) error {
	if err := o.endComposition(ctx, sess); err != nil {
		return err
	}
	if err := o.modes.setMode(mode); err != nil {
		o.log.Warn("failed to persist input mode", "mode", mode, "error", err)
	}
	o.metrics.RecordModeSwitch(ctx, mode.String())
	if err := o.host.SetModeIndicator(ctx, mode); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if err := o.window.SetInputMode(ctx, mode.Label()); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	return nil
}

// render pushes the candidate list, the cursor and the composed text.
func (o *Orchestrator) render(ctx context.Context, sess *Session) error {
	if err := o.window.SetCandidates(ctx, sess.Candidates.Texts); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	if err := o.window.SetSelection(ctx, int32(sess.SelectionIndex)); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	return o.setHostText(ctx, sess)
}

func (o *Orchestrator) setHostText(ctx context.Context, sess *Session) error {
	if !sess.Composing() {
		return ErrNoComposition
	}
	if err := o.host.SetText(ctx, sess.rng, sess.Display()); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	return nil
}
