//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
)

// RuntimeDir is where endpoints live: $XDG_RUNTIME_DIR/kanaime, or a
// per-user directory under the temp dir.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "kanaime")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("kanaime-%d", os.Getuid()))
}

// DefaultEndpoint returns the socket path for the named server, such as
// "engine" or "window".
func DefaultEndpoint(name string) string {
	return filepath.Join(RuntimeDir(), name+".sock")
}

func listen(endpoint string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(endpoint), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if isSocketListening(endpoint) {
		return nil, fmt.Errorf("another server is listening on %s", endpoint)
	}
	if err := cleanupSocket(endpoint); err != nil {
		return nil, err
	}

	l, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		l.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return l, nil
}

// cleanupSocket removes a stale socket file, refusing to touch anything
// that is not a socket.
func cleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

func isSocketListening(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dialEndpoint(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

// retryable reports whether a dial failed only because the server is not
// up yet.
func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.EAGAIN)
}
