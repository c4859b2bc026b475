//go:build !linux && !darwin

package ipc

import "net"

// Named pipes are created with the default DACL, which admits only the
// creating user and administrators. Other unix systems are trusted by the
// socket's file mode.
func verifyPeer(net.Conn) (bool, error) {
	return true, nil
}
