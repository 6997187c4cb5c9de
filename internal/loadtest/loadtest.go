// Package loadtest provides relay path validation traffic for radio-relay.
//
// A Generator blasts sequence-numbered UDP datagrams at a target and
// counts the echoes coming back; a Sink stands in for the device on the
// far side, counting and optionally echoing what it receives. Running a
// generator against a relayed channel with an echo sink behind it
// exercises both forwarding directions end to end.
package loadtest

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// headerSize is the sequence number prefix on each generated datagram.
const headerSize = 8

// GeneratorConfig configures a datagram generator.
type GeneratorConfig struct {
	// Target is the host:port to send to.
	Target string

	// Rate is the send rate in datagrams per second.
	Rate int

	// Count is the number of datagrams to send. Zero means send until
	// the context or Duration ends the run.
	Count int

	// Size is the datagram size in bytes, minimum 8 for the sequence
	// header.
	Size int

	// Duration caps the sending phase. Zero means no cap.
	Duration time.Duration

	// ReplyWait is the drain window for late echoes after sending ends.
	ReplyWait time.Duration
}

// Metrics contains the outcome of a generator run.
type Metrics struct {
	Sent       uint64
	Received   uint64
	Lost       uint64
	BytesSent  uint64
	BytesRecv  uint64
	Duration   time.Duration
	SendRate   float64
	Throughput float64
	LossRate   float64
}

// Generator sends paced UDP datagrams at a target and counts echoes.
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a generator with validated configuration.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("target is required")
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative")
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1000
	}
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.Size < headerSize {
		return nil, fmt.Errorf("size must be at least %d bytes", headerSize)
	}
	if cfg.ReplyWait <= 0 {
		cfg.ReplyWait = 500 * time.Millisecond
	}

	return &Generator{cfg: cfg}, nil
}

// Run sends the configured traffic and returns the collected metrics.
// The send phase ends after Count datagrams, after Duration, or on
// context cancellation, whichever comes first; a short drain window
// then collects late echoes.
func (g *Generator) Run(ctx context.Context) (*Metrics, error) {
	addr, err := net.ResolveUDPAddr("udp4", g.cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("connect target: %w", err)
	}
	defer conn.Close()

	sendCtx := ctx
	if g.cfg.Duration > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, g.cfg.Duration)
		defer cancel()
	}

	var (
		received  atomic.Uint64
		bytesRecv atomic.Uint64
		done      atomic.Bool
	)

	// Echo receiver. Errors are tolerated until the run ends: the
	// connected socket surfaces port-unreachable as a read error when
	// nothing is listening yet.
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		buf := make([]byte, 65535)
		for !done.Load() {
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, err := conn.Read(buf)
			if err != nil {
				continue
			}
			received.Add(1)
			bytesRecv.Add(uint64(n))
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(g.cfg.Rate), 1)

	pkt := make([]byte, g.cfg.Size)
	rand.Read(pkt[headerSize:])

	var sent, bytesSent uint64
	start := time.Now()

	for seq := uint64(1); g.cfg.Count == 0 || seq <= uint64(g.cfg.Count); seq++ {
		if err := limiter.Wait(sendCtx); err != nil {
			break
		}

		binary.BigEndian.PutUint64(pkt[:headerSize], seq)
		n, err := conn.Write(pkt)
		if err != nil {
			continue
		}
		sent++
		bytesSent += uint64(n)
	}

	time.Sleep(g.cfg.ReplyWait)
	done.Store(true)
	<-recvDone

	m := &Metrics{
		Sent:      sent,
		Received:  received.Load(),
		BytesSent: bytesSent,
		BytesRecv: bytesRecv.Load(),
		Duration:  time.Since(start),
	}
	if m.Sent > m.Received {
		m.Lost = m.Sent - m.Received
	}
	if m.Duration > 0 {
		seconds := m.Duration.Seconds()
		m.SendRate = float64(m.Sent) / seconds
		m.Throughput = float64(m.BytesRecv) / (1024 * 1024) / seconds
	}
	if m.Sent > 0 {
		m.LossRate = float64(m.Lost) / float64(m.Sent)
	}

	return m, nil
}

// SinkConfig configures an echo sink.
type SinkConfig struct {
	// Address is the UDP address to listen on (e.g. "0.0.0.0:49156").
	Address string

	// Echo controls whether received datagrams are sent back.
	Echo bool

	// PollInterval bounds the receive wait for stop checks.
	PollInterval time.Duration
}

// Sink receives datagrams and optionally echoes them to the sender.
type Sink struct {
	conn *net.UDPConn
	echo bool
	poll time.Duration

	received atomic.Uint64
	bytes    atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSink creates a sink bound to the configured address and starts
// receiving.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:0"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}

	addr, err := net.ResolveUDPAddr("udp4", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Sink{
		conn:   conn,
		echo:   cfg.Echo,
		poll:   cfg.PollInterval,
		stopCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.loop()

	return s, nil
}

func (s *Sink) loop() {
	defer s.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.poll))
		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}

		s.received.Add(1)
		s.bytes.Add(uint64(n))

		if s.echo {
			s.conn.WriteToUDPAddrPort(buf[:n], addr)
		}
	}
}

// Addr returns the sink's bound address.
func (s *Sink) Addr() string {
	return s.conn.LocalAddr().String()
}

// Received returns the number of datagrams received.
func (s *Sink) Received() uint64 {
	return s.received.Load()
}

// Bytes returns the number of payload bytes received.
func (s *Sink) Bytes() uint64 {
	return s.bytes.Load()
}

// Stop stops the sink and closes its socket.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.conn.Close()
	})
}
