package ime

// Decision is the outcome of Decide: the state to move to once Actions have
// all executed.
type Decision struct {
	Next    CompositionState
	Actions []ClientAction
}

func decision(next CompositionState, actions ...ClientAction) (Decision, bool) {
	return Decision{Next: next, Actions: actions}, true
}

// Decide maps the current state, mode and session to a transition and the
// ordered actions that realize it. It performs no I/O and does not modify
// sess. The second result is false when the action is irrelevant in the
// current state; the key must then be left to the host.
func Decide(state CompositionState, mode InputMode, sess *Session, action UserAction) (Decision, bool) {
	switch state {
	case StateIdle:
		return decideIdle(mode, action)
	case StateComposing:
		return decideComposing(state, sess, action)
	case StatePreviewing:
		return decidePreviewing(sess, action)
	default:
		return Decision{}, false
	}
}

func decideIdle(mode InputMode, action UserAction) (Decision, bool) {
	switch action.Kind {
	case ActionInput, ActionNumber:
		if mode != ModeKana {
			return Decision{}, false
		}
		return decision(StateComposing, StartComposition{}, AppendText{Text: action.Text()})
	case ActionToggleInputMode:
		return decision(StateIdle, SetIMEMode{Mode: mode.Toggle()})
	}
	return Decision{}, false
}

func decideComposing(state CompositionState, sess *Session, action UserAction) (Decision, bool) {
	switch action.Kind {
	case ActionInput, ActionNumber:
		return decision(StateComposing, AppendText{Text: action.Text()})

	case ActionBackspace:
		if sess.Glyphs() == 1 {
			return decision(StateIdle, RemoveText{}, EndComposition{})
		}
		return decision(StateComposing, RemoveText{})

	case ActionEnter:
		if !sess.HasSuffix() {
			return decision(StateIdle, EndComposition{})
		}
		return decision(StateComposing, ShrinkText{})

	case ActionEscape:
		return decision(StateIdle, RemoveText{}, EndComposition{})

	case ActionNavigation:
		switch action.Nav {
		case NavLeft:
			return decision(state, MoveCursor{Offset: -1})
		case NavRight:
			return decision(state, MoveCursor{Offset: 1})
		case NavUp:
			return decision(StatePreviewing, SetSelection{Selection: Up()})
		default:
			return decision(StatePreviewing, SetSelection{Selection: Down()})
		}

	case ActionSpace, ActionTab:
		return decision(StatePreviewing, SetSelection{Selection: Down()})

	case ActionFunction:
		return decision(StatePreviewing, SetTextWithType{Variant: action.Function.Variant()})

	case ActionToggleInputMode:
		return decision(StateIdle, SetIMEMode{Mode: ModeLatin})
	}
	return Decision{}, false
}

func decidePreviewing(sess *Session, action UserAction) (Decision, bool) {
	switch action.Kind {
	case ActionInput, ActionNumber:
		return decision(StateComposing, ShrinkText{Text: action.Text()})
	}
	return decideComposing(StatePreviewing, sess, action)
}
