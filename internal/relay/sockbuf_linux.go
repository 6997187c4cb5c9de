//go:build linux

package relay

import (
	"net"

	"golang.org/x/sys/unix"
)

// readBufferSize reports the receive buffer the kernel actually granted.
// Linux returns double the configured value to account for bookkeeping
// overhead, so a result below the request means it was clamped.
func readBufferSize(conn *net.UDPConn) (int, bool) {
	return bufferSize(conn, unix.SO_RCVBUF)
}

// writeBufferSize reports the send buffer the kernel actually granted.
func writeBufferSize(conn *net.UDPConn) (int, bool) {
	return bufferSize(conn, unix.SO_SNDBUF)
}

func bufferSize(conn *net.UDPConn, opt int) (int, bool) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, false
	}

	var size int
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	}); err != nil || sockErr != nil {
		return 0, false
	}
	return size, true
}
