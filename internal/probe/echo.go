package probe

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// icmpv4ProtocolNumber is the IANA protocol number for ICMP.
const icmpv4ProtocolNumber = 1

// newEchoSocket creates a new unprivileged ICMP socket.
// Uses "udp4" network which allows unprivileged ICMP on Linux when
// net.ipv4.ping_group_range sysctl is properly configured.
func newEchoSocket() (*icmp.PacketConn, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("create ICMP socket: %w", err)
	}
	return conn, nil
}

// sendEchoRequest sends an ICMP echo request to the destination.
func sendEchoRequest(conn *icmp.PacketConn, destIP net.IP, id, seq uint16, payload []byte) error {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: payload,
		},
	}

	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal ICMP message: %w", err)
	}

	// For unprivileged ICMP sockets, use UDP address
	destAddr := &net.UDPAddr{IP: destIP.To4()}
	if _, err := conn.WriteTo(msgBytes, destAddr); err != nil {
		return fmt.Errorf("send ICMP: %w", err)
	}

	return nil
}

// echoReply contains the parsed ICMP echo reply data.
type echoReply struct {
	ID      uint16
	Seq     uint16
	Payload []byte
	SrcIP   net.IP
}

// readEchoReply reads an ICMP echo reply from the socket.
// Returns the reply data or an error if timeout is reached.
// The kernel assigns unprivileged sockets their own echo ID, so every
// reply arriving here belongs to this probe.
func readEchoReply(conn *icmp.PacketConn, timeout time.Duration) (*echoReply, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, 1500)
	n, peer, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, err // Timeout or other error
	}

	msg, err := icmp.ParseMessage(icmpv4ProtocolNumber, buf[:n])
	if err != nil {
		return nil, fmt.Errorf("parse ICMP: %w", err)
	}

	if msg.Type != ipv4.ICMPTypeEchoReply {
		return nil, fmt.Errorf("unexpected ICMP type: %v", msg.Type)
	}

	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return nil, fmt.Errorf("invalid echo body")
	}

	var srcIP net.IP
	switch addr := peer.(type) {
	case *net.UDPAddr:
		srcIP = addr.IP
	case *net.IPAddr:
		srcIP = addr.IP
	}

	return &echoReply{
		ID:      uint16(echo.ID),
		Seq:     uint16(echo.Seq),
		Payload: echo.Data,
		SrcIP:   srcIP,
	}, nil
}
