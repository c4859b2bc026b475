package ipc

import (
	"context"

	"kanaime/internal/ime"
)

// WindowClient is the candidate window reached over IPC.
type WindowClient struct {
	c *Client
}

var _ ime.CandidateWindow = (*WindowClient)(nil)

// NewWindowClient wraps a connected client.
func NewWindowClient(c *Client) *WindowClient {
	return &WindowClient{c: c}
}

// DialWindow connects to the window server at cfg.Endpoint.
func DialWindow(ctx context.Context, cfg ClientConfig) (*WindowClient, error) {
	if cfg.Service == "" {
		cfg.Service = "window"
	}
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWindowClient(c), nil
}

func (w *WindowClient) Show(ctx context.Context) error {
	return w.c.Call(ctx, MsgShow, nil, nil)
}

func (w *WindowClient) Hide(ctx context.Context) error {
	return w.c.Call(ctx, MsgHide, nil, nil)
}

func (w *WindowClient) SetPosition(ctx context.Context, r ime.Rect) error {
	return w.c.Call(ctx, MsgSetWindowPosition, &SetWindowPositionRequest{
		Top: r.Top, Left: r.Left, Bottom: r.Bottom, Right: r.Right,
	}, nil)
}

func (w *WindowClient) SetCandidates(ctx context.Context, texts []string) error {
	if texts == nil {
		texts = []string{}
	}
	return w.c.Call(ctx, MsgSetCandidates, &SetCandidatesRequest{Candidates: texts}, nil)
}

func (w *WindowClient) SetSelection(ctx context.Context, index int32) error {
	return w.c.Call(ctx, MsgSetSelection, &SetSelectionRequest{Index: index}, nil)
}

func (w *WindowClient) SetInputMode(ctx context.Context, label string) error {
	return w.c.Call(ctx, MsgSetInputMode, &SetInputModeRequest{Label: label}, nil)
}

// Ping checks that the window answers.
func (w *WindowClient) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

// Close closes the connection.
func (w *WindowClient) Close() error {
	return w.c.Close()
}
