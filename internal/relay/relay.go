package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/postalsys/radio-relay/internal/logging"
	"github.com/postalsys/radio-relay/internal/metrics"
	"github.com/postalsys/radio-relay/internal/recovery"
)

const (
	// DefaultMTU is sized for jumbo frames so a full-rate DSP datagram is
	// never truncated.
	DefaultMTU = 9000

	// DefaultPollInterval bounds how long a forwarding loop can sit in a
	// blocking receive after Stop is called.
	DefaultPollInterval = 100 * time.Millisecond
)

// Direction labels used in logs and metrics.
const (
	directionTX = "tx" // host to device
	directionRX = "rx" // device to host
)

// Config holds the settings for one relayed channel.
type Config struct {
	// Name identifies the channel in logs and metrics.
	Name string

	// Bind is the local address the host-facing socket listens on.
	// Defaults to all interfaces.
	Bind string

	// Device is the hostname or IPv4 address of the radio hardware.
	Device string

	// Port is the UDP port relayed on both sides.
	Port int

	// Socket buffer requests passed to the kernel at setup.
	// Zero leaves the OS default in place.
	ServerRecvBuffer int
	ServerSendBuffer int
	ClientRecvBuffer int
	ClientSendBuffer int

	// MTU is the largest datagram the relay will carry.
	MTU int

	// PollInterval is the receive deadline used to notice stop requests.
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Stats is a point-in-time snapshot of one relay's counters.
type Stats struct {
	Name        string `json:"name"`
	Port        int    `json:"port"`
	Source      string `json:"source,omitempty"`
	TXDatagrams uint64 `json:"tx_datagrams"`
	TXBytes     uint64 `json:"tx_bytes"`
	RXDatagrams uint64 `json:"rx_datagrams"`
	RXBytes     uint64 `json:"rx_bytes"`
	RXDropped   uint64 `json:"rx_dropped"`
	SendErrors  uint64 `json:"send_errors"`
	Broken      bool   `json:"broken"`
}

// Relay forwards UDP datagrams between a host application and one port on
// the device.
type Relay struct {
	cfg    Config
	logger *slog.Logger
	meter  *metrics.Metrics

	serverConn *net.UDPConn // bound on the host side
	clientConn *net.UDPConn // connected to the device

	source sourceCell

	txDatagrams atomic.Uint64
	txBytes     atomic.Uint64
	rxDatagrams atomic.Uint64
	rxBytes     atomic.Uint64
	rxDropped   atomic.Uint64
	sendErrors  atomic.Uint64

	sendErrLog *rate.Limiter

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	failOnce sync.Once
	failedCh chan struct{}
	failErr  error // written once, read only after failedCh closes
}

// New opens both sockets for one channel and starts its forwarding loops.
// It returns once both loops are at their first receive. On any error
// nothing is left running and no sockets remain open.
func New(cfg Config) (*Relay, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("channel %s: device address is required", cfg.Name)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("channel %s: invalid port %d", cfg.Name, cfg.Port)
	}

	bindAddr, err := resolveUDP4(cfg.Bind, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("channel %s: bind address: %w", cfg.Name, err)
	}
	deviceAddr, err := resolveUDP4(cfg.Device, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("channel %s: device address: %w", cfg.Name, err)
	}

	serverConn, err := net.ListenUDP("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("channel %s: listen on %s: %w", cfg.Name, bindAddr, err)
	}

	clientConn, err := net.DialUDP("udp4", nil, deviceAddr)
	if err != nil {
		serverConn.Close()
		return nil, fmt.Errorf("channel %s: connect to %s: %w", cfg.Name, deviceAddr, err)
	}

	r := &Relay{
		cfg:        cfg,
		logger:     cfg.Logger.With(slog.String(logging.KeyComponent, "relay"), slog.String(logging.KeyChannel, cfg.Name)),
		meter:      cfg.Metrics,
		serverConn: serverConn,
		clientConn: clientConn,
		sendErrLog: rate.NewLimiter(rate.Every(time.Second), 1),
		stopCh:     make(chan struct{}),
		failedCh:   make(chan struct{}),
	}

	if err := r.configureBuffers(); err != nil {
		serverConn.Close()
		clientConn.Close()
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}

	// Both loops report in right before their first receive, so New never
	// returns with a socket still undrained.
	var ready sync.WaitGroup
	ready.Add(2)
	r.wg.Add(2)
	go r.serverLoop(&ready)
	go r.clientLoop(&ready)
	ready.Wait()

	r.running.Store(true)
	r.meter.RecordChannelStart(cfg.Name)
	r.logger.Info("relay started",
		logging.KeyPort, cfg.Port,
		logging.KeyBind, serverConn.LocalAddr().String(),
		logging.KeyDevice, deviceAddr.String())

	return r, nil
}

// configureBuffers applies the configured socket buffer sizes. A request the
// kernel rejects outright is fatal. A request granted only partially is
// logged and tolerated: the relay still works, just with less headroom.
func (r *Relay) configureBuffers() error {
	if err := setSocketBuffers(r.serverConn, "server", r.cfg.ServerRecvBuffer, r.cfg.ServerSendBuffer, r.logger); err != nil {
		return err
	}
	return setSocketBuffers(r.clientConn, "client", r.cfg.ClientRecvBuffer, r.cfg.ClientSendBuffer, r.logger)
}

func setSocketBuffers(conn *net.UDPConn, side string, recv, send int, logger *slog.Logger) error {
	if recv > 0 {
		if err := conn.SetReadBuffer(recv); err != nil {
			return fmt.Errorf("set %s receive buffer to %d: %w", side, recv, err)
		}
		if actual, ok := readBufferSize(conn); ok && actual < recv {
			logger.Warn("kernel clamped receive buffer",
				"side", side,
				"requested", recv,
				"granted", actual)
		}
	}
	if send > 0 {
		if err := conn.SetWriteBuffer(send); err != nil {
			return fmt.Errorf("set %s send buffer to %d: %w", side, send, err)
		}
		if actual, ok := writeBufferSize(conn); ok && actual < send {
			logger.Warn("kernel clamped send buffer",
				"side", side,
				"requested", send,
				"granted", actual)
		}
	}
	return nil
}

// Stop terminates both forwarding loops and closes the sockets. It blocks
// until the loops have exited, which takes at most one poll interval, and is
// safe to call more than once. If a loop died before Stop, its error is
// returned.
func (r *Relay) Stop() error {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.stopCh)
		r.wg.Wait()

		// Loops are done, nothing touches the sockets anymore.
		r.serverConn.Close()
		r.clientConn.Close()

		r.meter.RecordChannelStop()
		r.logger.Info("relay stopped",
			"tx_datagrams", r.txDatagrams.Load(),
			"rx_datagrams", r.rxDatagrams.Load())
	})
	return r.Err()
}

// Failed returns a channel that is closed when a forwarding loop dies on an
// unrecoverable error.
func (r *Relay) Failed() <-chan struct{} {
	return r.failedCh
}

// Err returns the first unrecoverable loop error, or nil while healthy.
func (r *Relay) Err() error {
	select {
	case <-r.failedCh:
		return r.failErr
	default:
		return nil
	}
}

// IsRunning reports whether the relay has started and not been stopped.
func (r *Relay) IsRunning() bool {
	return r.running.Load()
}

// Name returns the channel name.
func (r *Relay) Name() string {
	return r.cfg.Name
}

// Port returns the relayed UDP port.
func (r *Relay) Port() int {
	return r.cfg.Port
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	s := Stats{
		Name:        r.cfg.Name,
		Port:        r.cfg.Port,
		TXDatagrams: r.txDatagrams.Load(),
		TXBytes:     r.txBytes.Load(),
		RXDatagrams: r.rxDatagrams.Load(),
		RXBytes:     r.rxBytes.Load(),
		RXDropped:   r.rxDropped.Load(),
		SendErrors:  r.sendErrors.Load(),
		Broken:      r.Err() != nil,
	}
	if addr, ok := r.source.Load(); ok {
		s.Source = addr.String()
	}
	return s
}

// serverLoop receives host datagrams, records the sender as the return path,
// and forwards to the device.
func (r *Relay) serverLoop(ready *sync.WaitGroup) {
	defer r.wg.Done()
	defer recovery.RecoverWithCallback(r.logger, "relay.serverLoop", func(v interface{}) {
		r.fail(directionTX, fmt.Errorf("panic: %v", v))
	})

	buf := make([]byte, r.cfg.MTU)
	ready.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.serverConn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval))
		n, addr, err := r.serverConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-r.stopCh:
				return
			default:
			}
			r.fail(directionTX, fmt.Errorf("receive from host: %w", err))
			return
		}

		if r.source.Store(addr) {
			r.meter.RecordSourceChange(r.cfg.Name)
			r.logger.Info("return path updated", logging.KeySource, addr.String())
		}

		if _, err := r.clientConn.Write(buf[:n]); err != nil {
			r.recordSendError(directionTX, err)
			continue
		}

		r.txDatagrams.Add(1)
		r.txBytes.Add(uint64(n))
		r.meter.RecordForward(r.cfg.Name, directionTX, n)
	}
}

// clientLoop receives device datagrams and sends them back to the most
// recent host endpoint.
func (r *Relay) clientLoop(ready *sync.WaitGroup) {
	defer r.wg.Done()
	defer recovery.RecoverWithCallback(r.logger, "relay.clientLoop", func(v interface{}) {
		r.fail(directionRX, fmt.Errorf("panic: %v", v))
	})

	buf := make([]byte, r.cfg.MTU)
	ready.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		r.clientConn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval))
		n, err := r.clientConn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			// A connected UDP socket surfaces ICMP port unreachable as
			// ECONNREFUSED on the next read. The device is not up yet,
			// keep polling.
			if errors.Is(err, syscall.ECONNREFUSED) {
				continue
			}
			select {
			case <-r.stopCh:
				return
			default:
			}
			r.fail(directionRX, fmt.Errorf("receive from device: %w", err))
			return
		}

		source, ok := r.source.Load()
		if !ok {
			// The device spoke before any host traffic taught us the
			// return path. Nothing to do but drop.
			r.rxDropped.Add(1)
			r.meter.RecordDrop(r.cfg.Name, "no_source")
			continue
		}

		if _, err := r.serverConn.WriteToUDPAddrPort(buf[:n], source); err != nil {
			r.recordSendError(directionRX, err)
			continue
		}

		r.rxDatagrams.Add(1)
		r.rxBytes.Add(uint64(n))
		r.meter.RecordForward(r.cfg.Name, directionRX, n)
	}
}

// recordSendError counts a transient send failure. Sends fail routinely
// while the device boots (ICMP unreachable comes back as ECONNREFUSED), so
// logging is rate limited to one line per second.
func (r *Relay) recordSendError(direction string, err error) {
	r.sendErrors.Add(1)
	r.meter.RecordSendError(r.cfg.Name, direction)
	if r.sendErrLog.Allow() {
		r.logger.Warn("send failed",
			logging.KeyDirection, direction,
			logging.KeyError, err)
	}
}

// fail marks the relay broken. Only the first error wins.
func (r *Relay) fail(direction string, err error) {
	r.failOnce.Do(func() {
		r.failErr = err
		r.meter.RecordLoopError(r.cfg.Name, direction)
		r.logger.Error("forwarding loop died",
			logging.KeyDirection, direction,
			logging.KeyError, err)
		close(r.failedCh)
	})
}
