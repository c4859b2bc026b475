package ime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kanaime/internal/logging"
	"kanaime/internal/metrics"
	"kanaime/internal/tracing"
)

// Options configures an Orchestrator.
type Options struct {
	Engine ConversionEngine
	Window CandidateWindow
	Host   Host

	// Modes is shared by every orchestrator in the process. When nil a
	// private context starting in Latin mode is created.
	Modes *ModeContext

	// Translator maps keys the classifier does not know to characters.
	// Defaults to USLayout.
	Translator KeyTranslator

	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Recoverer *logging.Recoverer
}

// Orchestrator turns key events into host, engine and window updates.
// One Orchestrator serves one host connection; sessions are passed in per
// call so the host can keep one per focused field.
type Orchestrator struct {
	engine     ConversionEngine
	window     CandidateWindow
	host       Host
	modes      *ModeContext
	translator KeyTranslator
	log        *slog.Logger
	metrics    *metrics.Metrics
	recoverer  *logging.Recoverer

	// engineDirty is set when ClearText failed; the engine is cleared
	// before the next composition starts.
	engineDirty bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil || opts.Window == nil || opts.Host == nil {
		return nil, errors.New("ime: engine, window and host are required")
	}
	o := &Orchestrator{
		engine:     opts.Engine,
		window:     opts.Window,
		host:       opts.Host,
		modes:      opts.Modes,
		translator: opts.Translator,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		recoverer:  opts.Recoverer,
	}
	if o.modes == nil {
		o.modes = NewModeContext(ModeLatin, nil)
	}
	if o.translator == nil {
		o.translator = USLayout
	}
	if o.log == nil {
		o.log = logging.Default().WithComponent("ime").Logger
	}
	if o.metrics == nil {
		o.metrics = metrics.Default()
	}
	return o, nil
}

// Modes returns the shared mode context.
func (o *Orchestrator) Modes() *ModeContext {
	return o.modes
}

// HandleKey processes a key event and reports whether it was consumed.
// Keys with Ctrl held are always left to the host. Failures are logged and
// reported as not consumed so the host keeps working.
func (o *Orchestrator) HandleKey(ctx context.Context, sess *Session, ev KeyEvent) bool {
	start := time.Now()
	if ev.Modifiers.Has(ModControl) {
		o.metrics.RecordKey(ctx, metrics.OutcomePassed, time.Since(start))
		return false
	}

	action := Classify(ev.Code, ev.Modifiers, o.translator)
	consumed, err := o.Dispatch(ctx, sess, action)

	outcome := metrics.OutcomePassed
	switch {
	case errors.Is(err, ErrBusy):
		outcome = metrics.OutcomeBusy
		o.log.Warn("key dropped while a step is running", "focus", sess.FocusID, "code", ev.Code)
	case err != nil:
		outcome = metrics.OutcomeFailed
		tracing.Logger(ctx, o.log).Error("key handling failed",
			"focus", sess.FocusID, "state", sess.State, "action", action.Kind, "error", err)
	case consumed:
		outcome = metrics.OutcomeConsumed
	}
	o.metrics.RecordKey(ctx, outcome, time.Since(start))
	return err == nil && consumed
}

// Dispatch runs one orchestration step for an already classified action.
// It returns false with a nil error when the action does not apply in the
// current state.
func (o *Orchestrator) Dispatch(ctx context.Context, sess *Session, action UserAction) (consumed bool, err error) {
	if err := o.modes.acquire(); err != nil {
		return false, err
	}
	defer o.modes.release()
	if o.recoverer != nil {
		defer o.recoverer.Recover("dispatch", &err)
	}

	mode := o.modes.Mode()
	ctx, span := tracing.StartSpan(ctx, "ime.dispatch",
		attribute.String("state", sess.State.String()),
		attribute.String("mode", mode.String()),
		attribute.String("action", action.Kind.String()),
	)
	defer func() { tracing.End(span, err) }()

	d, ok := Decide(sess.State, mode, sess, action)
	if !ok {
		return false, nil
	}
	o.log.Debug("decision", "focus", sess.FocusID, "state", sess.State, "next", d.Next, "actions", len(d.Actions))

	if err := o.execute(ctx, sess, d); err != nil {
		return false, err
	}
	return true, nil
}

// Execute runs a decision outside of key handling, for example from a host
// callback.
func (o *Orchestrator) Execute(ctx context.Context, sess *Session, d Decision) error {
	if err := o.modes.acquire(); err != nil {
		return err
	}
	defer o.modes.release()
	return o.execute(ctx, sess, d)
}

// ToggleMode flips the input mode, as when the mode indicator is clicked.
func (o *Orchestrator) ToggleMode(ctx context.Context, sess *Session) error {
	_, err := o.Dispatch(ctx, sess, Simple(ActionToggleInputMode))
	return err
}

// OnCompositionTerminated resets the session after the host closed the
// composition on its own, for example on focus loss.
func (o *Orchestrator) OnCompositionTerminated(ctx context.Context, sess *Session) error {
	if sess.Composing() {
		o.metrics.CompositionClosed(ctx)
	}
	sess.rng = nil
	return o.Execute(ctx, sess, Decision{Next: StateIdle, Actions: []ClientAction{EndComposition{}}})
}

// Activate pushes the current mode to the host and the window, as when the
// input method gains focus.
func (o *Orchestrator) Activate(ctx context.Context) error {
	if err := o.modes.acquire(); err != nil {
		return err
	}
	defer o.modes.release()

	mode := o.modes.Mode()
	if err := o.host.SetModeIndicator(ctx, mode); err != nil {
		return fmt.Errorf("set mode indicator: %w", err)
	}
	if err := o.window.SetInputMode(ctx, mode.Label()); err != nil {
		return fmt.Errorf("window set_input_mode: %w", err)
	}
	return nil
}
