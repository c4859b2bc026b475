// Package ime implements the kanaime composition front end: it classifies
// raw key events, decides composition state transitions and drives the
// conversion engine, the candidate window and the host text field.
//
// # Architecture Overview
//
// Three processes cooperate on a single logical composition:
//
//	host text field ──key──▶ [ime.Orchestrator] ──RPC──▶ conversion engine
//	       ▲                        │
//	       └──────── text ──────────┴──────RPC──▶ candidate window
//
// Key handling is split in two phases:
//
//	KeyEvent → Classify → UserAction
//	                         ↓
//	       Decide(state, mode, session, action)   pure, no I/O
//	                         ↓
//	     Decision{Next, []ClientAction}
//	                         ↓
//	       Execute(actions)                       calls engine/window/host
//
// # Composition States
//
//	┌────────────┬──────────────────────────────────────────────────────┐
//	│ State      │ Meaning                                              │
//	├────────────┼──────────────────────────────────────────────────────┤
//	│ Idle       │ no composition, keys pass through unless Kana input  │
//	│ Composing  │ raw input is being converted, first candidate shown  │
//	│ Previewing │ the user moved the candidate cursor or picked a      │
//	│            │ script variant with a function key                   │
//	│ Selecting  │ reserved, never entered                              │
//	└────────────┴──────────────────────────────────────────────────────┘
//
// # Collaborators
//
// The orchestrator only sees interfaces:
//
//   - [ConversionEngine]: append_text, remove_text, shrink_text, clear_text,
//     set_context
//   - [CandidateWindow]: show, hide, set_window_position, set_candidates,
//     set_selection, set_input_mode
//   - [Host]: the editable range in the host document, passed around as an
//     opaque [Range] handle
//
// Concrete implementations live in internal/ipc (engine and window clients),
// the IBus binding in this package (Linux) and internal/playground.
//
// # Concurrency
//
// One key event is processed at a time. The process-wide [ModeContext]
// holds the input mode and a lock taken with try-lock semantics for every
// orchestration step; contention is reported as [ErrBusy] instead of
// blocking. Sessions are owned by the caller, one per focused text field.
package ime
