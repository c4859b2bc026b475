package ipc

import (
	"context"
	"fmt"

	"kanaime/internal/ime"
)

// EngineService is what an engine server exposes over IPC.
type EngineService interface {
	ime.ConversionEngine
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) error
}

// EngineHandler decodes engine calls and forwards them to a service.
type EngineHandler struct {
	svc EngineService
}

// NewEngineHandler creates a handler serving svc.
func NewEngineHandler(svc EngineService) *EngineHandler {
	return &EngineHandler{svc: svc}
}

// HandleMessage processes an IPC message
func (h *EngineHandler) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgAppendText:
		var req AppendTextRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return candidatesReply(id)(h.svc.AppendText(ctx, req.Text))

	case MsgRemoveText:
		return candidatesReply(id)(h.svc.RemoveText(ctx))

	case MsgShrinkText:
		var req ShrinkTextRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		if req.Offset < 0 {
			return invalid(id, fmt.Errorf("negative offset %d", req.Offset)), nil
		}
		return candidatesReply(id)(h.svc.ShrinkText(ctx, req.Offset))

	case MsgClearText:
		return ackReply(id, h.svc.ClearText(ctx))

	case MsgSetContext:
		var req SetContextRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return ackReply(id, h.svc.SetContext(ctx, req.Context))

	case MsgUpdateConfig:
		var req UpdateConfigRequest
		if len(msg.Payload) > 0 {
			if err := Decode(msg.Payload, &req); err != nil {
				return invalid(id, err), nil
			}
		}
		return ackReply(id, h.svc.UpdateConfig(ctx, req))

	default:
		return unsupported(msg), nil
	}
}

// WindowHandler decodes window calls and applies them to a window.
type WindowHandler struct {
	win ime.CandidateWindow
}

// NewWindowHandler creates a handler driving win.
func NewWindowHandler(win ime.CandidateWindow) *WindowHandler {
	return &WindowHandler{win: win}
}

// HandleMessage processes an IPC message
func (h *WindowHandler) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgShow:
		return ackReply(id, h.win.Show(ctx))

	case MsgHide:
		return ackReply(id, h.win.Hide(ctx))

	case MsgSetWindowPosition:
		var req SetWindowPositionRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return ackReply(id, h.win.SetPosition(ctx, ime.Rect{
			Top: req.Top, Left: req.Left, Bottom: req.Bottom, Right: req.Right,
		}))

	case MsgSetCandidates:
		var req SetCandidatesRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return ackReply(id, h.win.SetCandidates(ctx, req.Candidates))

	case MsgSetSelection:
		var req SetSelectionRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return ackReply(id, h.win.SetSelection(ctx, req.Index))

	case MsgSetInputMode:
		var req SetInputModeRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return invalid(id, err), nil
		}
		return ackReply(id, h.win.SetInputMode(ctx, req.Label))

	default:
		return unsupported(msg), nil
	}
}

func candidatesReply(id uint32) func(ime.Candidates, error) (*Message, error) {
	return func(c ime.Candidates, err error) (*Message, error) {
		if err != nil {
			return nil, err
		}
		return NewResponse(MsgCandidates, id, FromCandidates(c))
	}
}

func ackReply(id uint32, err error) (*Message, error) {
	if err != nil {
		return nil, err
	}
	return NewAck(id), nil
}

func invalid(id uint32, err error) *Message {
	return NewErrorMessage(id, CodeInvalidRequest, err.Error())
}

func unsupported(msg *Message) *Message {
	return NewErrorMessage(msg.Header.RequestID, CodeUnsupported,
		fmt.Sprintf("unsupported message %s", msg.Header.Type))
}
