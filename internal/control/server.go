// Package control provides a Unix socket control interface for radio-relay.
package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/postalsys/radio-relay/internal/relay"
)

// DaemonInfo provides relay daemon information for the control interface.
type DaemonInfo interface {
	// IsRunning returns true if the relay daemon is running.
	IsRunning() bool

	// Device returns the configured device address.
	Device() string

	// ChannelStats returns per-channel relay statistics.
	ChannelStats() []relay.Stats
}

// StatusResponse is the response for the status endpoint.
type StatusResponse struct {
	Running      bool   `json:"running"`
	Device       string `json:"device"`
	ChannelCount int    `json:"channel_count"`
	BrokenCount  int    `json:"broken_count"`
}

// ChannelsResponse is the response for the channels endpoint.
type ChannelsResponse struct {
	Channels []relay.Stats `json:"channels"`
}

// ServerConfig contains control server configuration.
type ServerConfig struct {
	// SocketPath is the path to the Unix socket file.
	SocketPath string

	// ReadTimeout for HTTP reads.
	ReadTimeout time.Duration

	// WriteTimeout for HTTP writes.
	WriteTimeout time.Duration
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		SocketPath:   "./radio-relay.sock",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is a Unix socket HTTP server for control commands.
type Server struct {
	cfg      ServerConfig
	daemon   DaemonInfo
	server   *http.Server
	listener net.Listener
	running  atomic.Bool
}

// NewServer creates a new control server.
func NewServer(cfg ServerConfig, daemon DaemonInfo) *Server {
	s := &Server{
		cfg:    cfg,
		daemon: daemon,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/channels", s.handleChannels)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Start starts the control server.
func (s *Server) Start() error {
	// Remove existing socket file if it exists
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running.Store(true)

	go s.server.Serve(ln)

	return nil
}

// Stop stops the control server.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	// Remove socket file
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// handleStatus handles the status endpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channels := s.daemon.ChannelStats()
	broken := 0
	for _, ch := range channels {
		if ch.Broken {
			broken++
		}
	}

	response := StatusResponse{
		Running:      s.daemon.IsRunning(),
		Device:       s.daemon.Device(),
		ChannelCount: len(channels),
		BrokenCount:  broken,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleChannels handles the channels endpoint.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channels := s.daemon.ChannelStats()
	if channels == nil {
		channels = []relay.Stats{}
	}

	response := ChannelsResponse{
		Channels: channels,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
