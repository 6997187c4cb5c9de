// Package probe provides device reachability preflight for radio-relay.
package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Options contains configuration for a device probe.
type Options struct {
	// Device is the device host or IPv4 address to probe.
	Device string

	// Ports are UDP channel ports to resolve against the device.
	Ports []int

	// Count is the number of echo requests to send.
	Count int

	// Interval is the pause between echo requests.
	Interval time.Duration

	// Timeout is the wait for each echo reply.
	Timeout time.Duration

	// PayloadSize is the echo payload size in bytes.
	PayloadSize int
}

// PortCheck is the resolution outcome for one channel port.
type PortCheck struct {
	Port     int
	Endpoint string
	Error    error
}

// Result contains the outcome of a device probe.
type Result struct {
	// Device is the host that was probed.
	Device string

	// Addr is the resolved device address.
	Addr net.IP

	// Echo accounting
	Sent     int
	Received int
	MinRTT   time.Duration
	AvgRTT   time.Duration
	MaxRTT   time.Duration

	// Ports holds per-port resolution results.
	Ports []PortCheck

	// Error is the error that occurred (if any).
	Error error

	// ErrorDetail is a human-readable description of the error.
	ErrorDetail string
}

// Reachable returns true if at least one echo reply was received.
func (r *Result) Reachable() bool {
	return r.Received > 0
}

// Run probes the device with unprivileged ICMP echo requests and resolves
// the channel ports. ICMP may be filtered on radio networks, so zero
// replies leave the result unreachable without setting Error.
func Run(ctx context.Context, opts Options) *Result {
	result := &Result{
		Device: opts.Device,
	}

	// Set defaults
	if opts.Count <= 0 {
		opts.Count = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = 56
	}

	addr, err := net.ResolveIPAddr("ip4", opts.Device)
	if err != nil {
		result.Error = err
		result.ErrorDetail = classifyError(err)
		return result
	}
	result.Addr = addr.IP

	// Resolve every channel port before touching the ICMP socket so the
	// port report survives a socket permission failure.
	for _, port := range opts.Ports {
		check := PortCheck{Port: port}
		ua, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.Device, strconv.Itoa(port)))
		if err != nil {
			check.Error = err
		} else {
			check.Endpoint = ua.String()
		}
		result.Ports = append(result.Ports, check)
	}

	conn, err := newEchoSocket()
	if err != nil {
		result.Error = err
		result.ErrorDetail = classifyError(err)
		return result
	}
	defer conn.Close()

	id := uint16(os.Getpid() & 0xffff)
	payload := make([]byte, opts.PayloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	var rtts []time.Duration
	for seq := 1; seq <= opts.Count; seq++ {
		select {
		case <-ctx.Done():
			result.Error = ctx.Err()
			result.ErrorDetail = classifyError(ctx.Err())
			return result
		default:
		}

		start := time.Now()
		if err := sendEchoRequest(conn, addr.IP, id, uint16(seq), payload); err != nil {
			result.Error = err
			result.ErrorDetail = classifyError(err)
			return result
		}
		result.Sent++

		if _, err := readEchoReply(conn, opts.Timeout); err == nil {
			rtts = append(rtts, time.Since(start))
			result.Received++
		}

		if seq < opts.Count {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Interval):
			}
		}
	}

	if len(rtts) > 0 {
		result.MinRTT = rtts[0]
		result.MaxRTT = rtts[0]
		var total time.Duration
		for _, rtt := range rtts {
			total += rtt
			if rtt < result.MinRTT {
				result.MinRTT = rtt
			}
			if rtt > result.MaxRTT {
				result.MaxRTT = rtt
			}
		}
		result.AvgRTT = total / time.Duration(len(rtts))
	}

	return result
}

// classifyError returns a human-readable description for common errors.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return "Could not resolve device hostname - DNS lookup failed"
		}
		return "DNS error: " + dnsErr.Error()
	}

	// Unprivileged ICMP needs the ping_group_range sysctl on Linux
	if strings.Contains(errStr, "operation not permitted") || strings.Contains(errStr, "permission denied") {
		return "Unprivileged ICMP not allowed - check the net.ipv4.ping_group_range sysctl"
	}

	// Timeout errors
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") {
		return "Probe timed out - device may be down or ICMP filtered"
	}

	// Routing errors
	if strings.Contains(errStr, "network is unreachable") || strings.Contains(errStr, "no route to host") {
		return "No route to device - check the network configuration"
	}

	return errStr
}
