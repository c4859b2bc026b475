//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

const pipeBufferSize = 64 * 1024

// RuntimeDir is unused on Windows; endpoints are named pipes.
func RuntimeDir() string {
	return ""
}

// DefaultEndpoint returns the pipe path for the named server, scoped to
// the current user.
func DefaultEndpoint(name string) string {
	username := os.Getenv("USERNAME")
	if username == "" {
		username = "default"
	}
	return fmt.Sprintf(`\\.\pipe\kanaime-%s-%s`, username, name)
}

func createNamedPipe(name string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, err
	}
	return windows.CreateNamedPipe(p,
		windows.PIPE_ACCESS_DUPLEX,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize,
		pipeBufferSize,
		0,
		nil,
	)
}

// pipeListener implements net.Listener over a named pipe. Every Accept
// creates a fresh pipe instance.
type pipeListener struct {
	name string

	mu     sync.Mutex
	closed bool
}

func listen(endpoint string) (net.Listener, error) {
	// Creating the first instance up front reports a name clash now
	// rather than on the first Accept.
	h, err := createNamedPipe(endpoint)
	if err != nil {
		return nil, err
	}
	windows.CloseHandle(h)
	return &pipeListener{name: endpoint}, nil
}

func (l *pipeListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *pipeListener) Accept() (net.Conn, error) {
	if l.isClosed() {
		return nil, net.ErrClosed
	}
	h, err := createNamedPipe(l.name)
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	if err := windows.ConnectNamedPipe(h, nil); err != nil && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("connect pipe: %w", err)
	}
	if l.isClosed() {
		windows.DisconnectNamedPipe(h)
		windows.CloseHandle(h)
		return nil, net.ErrClosed
	}
	return &pipeConn{handle: h, name: l.name, server: true}, nil
}

// Close unblocks a pending Accept by connecting to the pipe once.
func (l *pipeListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if conn, err := dialEndpoint(l.name); err == nil {
		conn.Close()
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return pipeAddr(l.name)
}

// pipeConn implements net.Conn for a named pipe handle. Deadlines are not
// supported; calls block until the peer answers or the pipe breaks.
type pipeConn struct {
	handle windows.Handle
	name   string
	server bool
}

func (c *pipeConn) Read(b []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(c.handle, b, &n, nil)
	if errors.Is(err, windows.ERROR_BROKEN_PIPE) || errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED) {
		return int(n), io.EOF
	}
	return int(n), err
}

func (c *pipeConn) Write(b []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Close() error {
	if c.server {
		windows.DisconnectNamedPipe(c.handle)
	}
	return windows.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr(c.name) }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr(c.name) }
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
