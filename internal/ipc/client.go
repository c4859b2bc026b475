package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"kanaime/internal/logging"
	"kanaime/internal/metrics"
	"kanaime/internal/tracing"
)

// Common errors
var (
	ErrNotConnected   = errors.New("ipc: not connected")
	ErrConnectionLost = errors.New("ipc: connection lost")
)

// DefaultDialInterval is the wait between connection attempts while the
// server is not yet listening.
const DefaultDialInterval = 50 * time.Millisecond

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint is a unix socket path or a named pipe path.
	Endpoint string

	// Service names the remote side in logs, spans and metrics, for
	// example "engine" or "window".
	Service string

	// DialInterval is the fixed delay between connection attempts.
	DialInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (cfg *ClientConfig) setDefaults() {
	if cfg.DialInterval <= 0 {
		cfg.DialInterval = DefaultDialInterval
	}
	if cfg.Service == "" {
		cfg.Service = "ipc"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default().WithComponent("ipc").Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
}

// Client makes blocking calls over one connection. Calls are serialized:
// a call writes its request and reads the reply before the next one starts.
// Calls have no timeout and are never retried.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	nextID  uint32
	service string
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Dial connects to cfg.Endpoint. While the endpoint is busy or nobody is
// listening yet it retries every cfg.DialInterval, without limit, until ctx
// is done.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	cfg.setDefaults()

	attempts := 0
	for {
		conn, err := dialEndpoint(cfg.Endpoint)
		if err == nil {
			if attempts > 0 {
				cfg.Logger.Debug("connected after retrying", "service", cfg.Service, "attempts", attempts+1)
			}
			return NewClient(conn, cfg), nil
		}
		if !retryable(err) {
			return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
		}
		if attempts == 0 {
			cfg.Logger.Info("waiting for server", "service", cfg.Service, "endpoint", cfg.Endpoint)
		}
		attempts++

		t := time.NewTimer(cfg.DialInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, ctx.Err())
		case <-t.C:
		}
	}
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, cfg ClientConfig) *Client {
	cfg.setDefaults()
	return &Client{
		conn:    conn,
		service: cfg.Service,
		log:     cfg.Logger.With("service", cfg.Service),
		metrics: cfg.Metrics,
	}
}

// Close closes the connection. Later calls fail with ErrNotConnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, MsgPing, nil, nil)
}

// Call sends a request of type msgType and waits for the reply. A
// MsgCandidates reply is decoded into resp when resp is not nil; an error
// reply is returned as a *RemoteError.
func (c *Client) Call(ctx context.Context, msgType MessageType, req, resp any) (err error) {
	method := msgType.String()
	start := time.Now()
	ctx, span := tracing.StartClientSpan(ctx, c.service+"."+method,
		attribute.String("rpc.service", c.service),
		attribute.String("rpc.method", method),
	)
	defer func() {
		c.metrics.RecordRPC(ctx, c.service, method, time.Since(start), err)
		tracing.End(span, err)
	}()

	payload, err := Encode(req)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nextID++
	id := c.nextID
	if err := NewMessage(msgType, id, payload).Write(c.conn); err != nil {
		c.drop(method, err)
		return fmt.Errorf("%s: %w: %v", method, ErrConnectionLost, err)
	}

	reply, err := ReadMessage(c.conn)
	if err != nil {
		c.drop(method, err)
		return fmt.Errorf("%s: %w: %v", method, ErrConnectionLost, err)
	}
	if reply.Header.RequestID != id {
		c.drop(method, nil)
		return fmt.Errorf("%s: reply for request %d, want %d", method, reply.Header.RequestID, id)
	}

	switch reply.Header.Type {
	case MsgError:
		var e ErrorResponse
		if err := Decode(reply.Payload, &e); err != nil {
			return fmt.Errorf("%s: decode error reply: %w", method, err)
		}
		return &RemoteError{Method: method, Code: e.Code, Message: e.Message, Details: e.Details}
	case MsgAck, MsgPong:
		return nil
	case MsgCandidates:
		if resp == nil {
			return nil
		}
		if err := Decode(reply.Payload, resp); err != nil {
			return fmt.Errorf("%s: decode reply: %w", method, err)
		}
		return nil
	default:
		return fmt.Errorf("%s: unexpected reply %s", method, reply.Header.Type)
	}
}

// drop closes a connection whose stream can no longer be trusted. It is
// called with c.mu held.
func (c *Client) drop(method string, err error) {
	c.log.Warn("closing connection", "method", method, "error", err)
	c.conn.Close()
	c.conn = nil
}
