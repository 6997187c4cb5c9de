// Package daemon ties the relay set together with the optional health and
// control servers and supervises them as one unit.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/postalsys/radio-relay/internal/config"
	"github.com/postalsys/radio-relay/internal/control"
	"github.com/postalsys/radio-relay/internal/health"
	"github.com/postalsys/radio-relay/internal/logging"
	"github.com/postalsys/radio-relay/internal/metrics"
	"github.com/postalsys/radio-relay/internal/relay"
)

// Daemon is the radio-relay daemon. It owns one relay per configured channel
// plus the health and control servers, and reports their combined state.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	mu  sync.RWMutex
	set *relay.Set

	healthServer  *health.Server
	controlServer *control.Server

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	failOnce sync.Once
	failedCh chan struct{}
}

// New creates a daemon from a validated configuration. The relay sockets are
// not opened until Start.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireDevice(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		failedCh: make(chan struct{}),
	}

	d.initComponents()

	return d, nil
}

// initComponents constructs the optional servers. They are started in Start.
func (d *Daemon) initComponents() {
	if d.cfg.Health.Enabled {
		healthCfg := health.DefaultServerConfig()
		healthCfg.Address = d.cfg.Health.Address
		healthCfg.ReadTimeout = d.cfg.Health.ReadTimeout
		healthCfg.WriteTimeout = d.cfg.Health.WriteTimeout
		d.healthServer = health.NewServer(healthCfg, d)
	}

	if d.cfg.Control.Enabled {
		controlCfg := control.DefaultServerConfig()
		controlCfg.SocketPath = d.cfg.Control.SocketPath
		d.controlServer = control.NewServer(controlCfg, d)
	}
}

// channelConfigs maps the configured channel plan onto relay configs.
func (d *Daemon) channelConfigs() []relay.Config {
	configs := make([]relay.Config, 0, len(d.cfg.Channels))
	for _, ch := range d.cfg.Channels {
		configs = append(configs, relay.Config{
			Name:             ch.Name,
			Bind:             d.cfg.Bind,
			Device:           d.cfg.Device,
			Port:             ch.Port,
			ServerRecvBuffer: ch.ServerRecvBuffer.Int(),
			ServerSendBuffer: ch.ServerSendBuffer.Int(),
			ClientRecvBuffer: ch.ClientRecvBuffer.Int(),
			ClientSendBuffer: ch.ClientSendBuffer.Int(),
			MTU:              d.cfg.Relay.MTU,
			PollInterval:     d.cfg.Relay.PollInterval,
			Logger:           d.logger,
			Metrics:          metrics.Default(),
		})
	}
	return configs
}

// Start brings up every relay channel and then the health and control
// servers. Channel bring-up is all or nothing; a server failure tears the
// channels back down.
func (d *Daemon) Start() error {
	if d.running.Load() {
		return fmt.Errorf("daemon already running")
	}

	d.logger.Info("starting relay daemon",
		logging.KeyDevice, d.cfg.Device,
		logging.KeyBind, d.cfg.Bind,
		logging.KeyCount, len(d.cfg.Channels))

	set, err := relay.NewSet(d.channelConfigs(), d.logger)
	if err != nil {
		return fmt.Errorf("start relay channels: %w", err)
	}

	d.mu.Lock()
	d.set = set
	d.mu.Unlock()

	d.running.Store(true)

	if d.healthServer != nil {
		if err := d.healthServer.Start(); err != nil {
			d.logger.Error("failed to start health server",
				logging.KeyAddress, d.cfg.Health.Address,
				logging.KeyError, err)
			d.running.Store(false)
			set.Stop()
			return fmt.Errorf("start health server: %w", err)
		}
		d.logger.Info("health server started",
			logging.KeyAddress, d.healthServer.Address())
	}

	if d.controlServer != nil {
		if err := d.controlServer.Start(); err != nil {
			d.logger.Error("failed to start control server",
				logging.KeyAddress, d.cfg.Control.SocketPath,
				logging.KeyError, err)
			d.running.Store(false)
			if d.healthServer != nil {
				d.healthServer.Stop()
			}
			set.Stop()
			return fmt.Errorf("start control server: %w", err)
		}
		d.logger.Info("control server started",
			logging.KeyAddress, d.cfg.Control.SocketPath)
	}

	d.wg.Add(1)
	go d.watchFailure(set)

	d.logger.Info("relay daemon started",
		logging.KeyDevice, d.cfg.Device,
		logging.KeyCount, set.Len())

	return nil
}

// watchFailure surfaces the first broken channel on the daemon's failure
// channel. The broken relay stays observable through health and control
// until the owner shuts the daemon down.
func (d *Daemon) watchFailure(set *relay.Set) {
	defer d.wg.Done()

	select {
	case <-set.Failed():
		d.logger.Error("relay channel failed",
			logging.KeyError, set.Err())
		d.failOnce.Do(func() {
			close(d.failedCh)
		})
	case <-d.stopCh:
	}
}

// Stop stops the servers and then the relay channels, in reverse start
// order. It is safe to call more than once.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Info("stopping relay daemon")

		d.running.Store(false)
		close(d.stopCh)

		// Stop components in reverse start order
		if d.controlServer != nil {
			d.controlServer.Stop()
		}
		if d.healthServer != nil {
			d.healthServer.Stop()
		}

		if set := d.relaySet(); set != nil {
			err = set.Stop()
		}

		d.wg.Wait()

		d.logger.Info("relay daemon stopped")
	})

	return err
}

// StopWithContext stops with a timeout.
func (d *Daemon) StopWithContext(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- d.Stop()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the daemon is running.
func (d *Daemon) IsRunning() bool {
	return d.running.Load()
}

// Device returns the configured device address.
func (d *Daemon) Device() string {
	return d.cfg.Device
}

// Failed returns a channel that is closed when any relay channel breaks.
func (d *Daemon) Failed() <-chan struct{} {
	return d.failedCh
}

// Err returns the first channel failure, or nil while all channels are
// healthy.
func (d *Daemon) Err() error {
	if set := d.relaySet(); set != nil {
		return set.Err()
	}
	return nil
}

// Stats assembles the health snapshot served over HTTP.
func (d *Daemon) Stats() health.Stats {
	stats := health.Stats{
		Device: d.cfg.Device,
	}

	if set := d.relaySet(); set != nil {
		stats.Channels = set.Stats()
		stats.ChannelCount = len(stats.Channels)
		for _, ch := range stats.Channels {
			if ch.Broken {
				stats.BrokenCount++
			}
		}
	}

	return stats
}

// ChannelStats returns per-channel snapshots for the control interface.
func (d *Daemon) ChannelStats() []relay.Stats {
	if set := d.relaySet(); set != nil {
		return set.Stats()
	}
	return nil
}

func (d *Daemon) relaySet() *relay.Set {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.set
}
