package ipc

import (
	"context"

	"kanaime/internal/ime"
)

// EngineClient is the conversion engine reached over IPC.
type EngineClient struct {
	c *Client
}

var _ ime.ConversionEngine = (*EngineClient)(nil)

// NewEngineClient wraps a connected client.
func NewEngineClient(c *Client) *EngineClient {
	return &EngineClient{c: c}
}

// DialEngine connects to the engine server at cfg.Endpoint.
func DialEngine(ctx context.Context, cfg ClientConfig) (*EngineClient, error) {
	if cfg.Service == "" {
		cfg.Service = "engine"
	}
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEngineClient(c), nil
}

func (e *EngineClient) candidates(ctx context.Context, t MessageType, req any) (ime.Candidates, error) {
	var resp CandidatesResponse
	if err := e.c.Call(ctx, t, req, &resp); err != nil {
		return ime.Candidates{}, err
	}
	return resp.Candidates()
}

func (e *EngineClient) AppendText(ctx context.Context, text string) (ime.Candidates, error) {
	return e.candidates(ctx, MsgAppendText, &AppendTextRequest{Text: text})
}

func (e *EngineClient) RemoveText(ctx context.Context) (ime.Candidates, error) {
	return e.candidates(ctx, MsgRemoveText, nil)
}

func (e *EngineClient) ShrinkText(ctx context.Context, offset int32) (ime.Candidates, error) {
	return e.candidates(ctx, MsgShrinkText, &ShrinkTextRequest{Offset: offset})
}

func (e *EngineClient) ClearText(ctx context.Context) error {
	return e.c.Call(ctx, MsgClearText, nil, nil)
}

func (e *EngineClient) SetContext(ctx context.Context, preceding string) error {
	return e.c.Call(ctx, MsgSetContext, &SetContextRequest{Context: preceding}, nil)
}

// UpdateConfig pushes settings to the engine, or asks it to reload its
// configuration file when req is empty.
func (e *EngineClient) UpdateConfig(ctx context.Context, req UpdateConfigRequest) error {
	return e.c.Call(ctx, MsgUpdateConfig, &req, nil)
}

// Ping checks that the engine answers.
func (e *EngineClient) Ping(ctx context.Context) error {
	return e.c.Ping(ctx)
}

// Close closes the connection.
func (e *EngineClient) Close() error {
	return e.c.Close()
}
