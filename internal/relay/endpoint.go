package relay

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
)

// resolveUDP4 resolves a host and port to an IPv4 UDP address. The device
// protocol is IPv4 only, so IPv6 results are never returned.
func resolveUDP4(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addr, nil
}

// sourceCell holds the most recent host endpoint seen on the server socket.
// The zero value means no host has spoken yet. The cell stores a plain value
// under a mutex so neither loop ever holds the lock across socket I/O.
type sourceCell struct {
	mu   sync.Mutex
	addr netip.AddrPort
}

// Store records addr as the current return path and reports whether it
// differs from the previous one.
func (c *sourceCell) Store(addr netip.AddrPort) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if addr == c.addr {
		return false
	}
	c.addr = addr
	return true
}

// Load returns the current return path. ok is false until the first host
// datagram has been seen.
func (c *sourceCell) Load() (addr netip.AddrPort, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.addr, c.addr.IsValid()
}
