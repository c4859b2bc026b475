package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"kanaime/internal/logging"
	"kanaime/internal/tracing"
)

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a message and returns the reply. A nil reply
	// with a nil error is answered with an ack.
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	Endpoint string
	Service  string

	// MaxConnections caps concurrent clients; zero means 64.
	MaxConnections int

	Logger    *slog.Logger
	Recoverer *logging.Recoverer
}

// Server accepts connections and answers each one's requests in order.
type Server struct {
	cfg      ServerConfig
	handler  Handler
	log      *slog.Logger
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	closed atomic.Bool
}

var errServerClosed = errors.New("ipc: server closed")

// NewServer creates a server. Call Listen, then Serve.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 64
	}
	if cfg.Service == "" {
		cfg.Service = "ipc"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default().WithComponent("ipc").Logger
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     cfg.Logger.With("service", cfg.Service),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the endpoint, replacing a stale socket left by a crashed
// server.
func (s *Server) Listen() error {
	l, err := listen(s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Endpoint, err)
	}
	s.listener = l
	return nil
}

// Endpoint returns the endpoint the server listens on.
func (s *Server) Endpoint() string {
	return s.cfg.Endpoint
}

// Serve accepts connections until ctx is done or Close is called. It
// listens first if Listen has not been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.log.Info("serving", "endpoint", s.cfg.Endpoint)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return s.Close()
	})
	g.Go(func() error {
		return s.acceptLoop(ctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errServerClosed) {
		return err
	}
	return nil
}

// Close stops accepting, closes every connection and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("connections still open after shutdown timeout")
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return errServerClosed
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		if ok, err := verifyPeer(conn); !ok {
			s.log.Warn("rejected connection from another user", "error", err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.log.Warn("too many connections", "max", s.cfg.MaxConnections)
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	s.log.Debug("client connected")

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !s.closed.Load() {
				s.log.Warn("read failed", "error", err)
			}
			s.log.Debug("client disconnected")
			return
		}

		reply := s.dispatch(ctx, msg)
		if err := reply.Write(conn); err != nil {
			s.log.Warn("write failed", "type", msg.Header.Type, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg *Message) *Message {
	id := msg.Header.RequestID
	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, id, nil)
	}

	method := msg.Header.Type.String()
	ctx, span := tracing.StartServerSpan(ctx, s.cfg.Service+"."+method,
		attribute.String("rpc.service", s.cfg.Service),
		attribute.String("rpc.method", method),
	)
	reply, err := s.call(ctx, msg)
	tracing.End(span, err)

	if err != nil {
		tracing.Logger(ctx, s.log).Error("request failed", "method", method, "error", err)
		return errorReply(id, err)
	}
	if reply == nil {
		return NewAck(id)
	}
	reply.Header.RequestID = id
	return reply
}

func (s *Server) call(ctx context.Context, msg *Message) (reply *Message, err error) {
	if s.cfg.Recoverer != nil {
		defer s.cfg.Recoverer.Recover(msg.Header.Type.String(), &err)
	}
	return s.handler.HandleMessage(ctx, msg)
}

func errorReply(id uint32, err error) *Message {
	var (
		pe *logging.PanicError
		re *RemoteError
	)
	switch {
	case errors.As(err, &pe):
		return NewErrorMessage(id, CodePanic, err.Error())
	case errors.As(err, &re):
		return NewErrorMessage(id, re.Code, re.Message)
	default:
		return NewErrorMessage(id, CodeInternal, err.Error())
	}
}
