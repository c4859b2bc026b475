//go:build windows

package ipc

import (
	"errors"
	"net"

	"golang.org/x/sys/windows"
)

func dialEndpoint(endpoint string) (net.Conn, error) {
	p, err := windows.UTF16PtrFromString(endpoint)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, err
	}
	return &pipeConn{handle: h, name: endpoint}, nil
}

// retryable reports whether every pipe instance is busy or the server has
// not created the pipe yet.
func retryable(err error) bool {
	return errors.Is(err, windows.ERROR_PIPE_BUSY) ||
		errors.Is(err, windows.ERROR_FILE_NOT_FOUND)
}
