//go:build !linux

package relay

import "net"

// Buffer readback is only implemented on Linux. Other platforms skip the
// clamp check and trust the setsockopt result.

func readBufferSize(conn *net.UDPConn) (int, bool) {
	return 0, false
}

func writeBufferSize(conn *net.UDPConn) (int, bool) {
	return 0, false
}
