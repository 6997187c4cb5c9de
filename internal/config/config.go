// Package config provides configuration parsing and validation for radio-relay.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config represents the complete relay configuration.
type Config struct {
	Device   string          `yaml:"device"`
	Bind     string          `yaml:"bind"`
	Log      LogConfig       `yaml:"log"`
	Relay    RelayConfig     `yaml:"relay"`
	Channels []ChannelConfig `yaml:"channels"`
	Health   HealthConfig    `yaml:"health"`
	Control  ControlConfig   `yaml:"control"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RelayConfig contains tuning knobs shared by all channels.
type RelayConfig struct {
	MTU          int           `yaml:"mtu"`           // receive buffer size per datagram
	PollInterval time.Duration `yaml:"poll_interval"` // shutdown poll granularity
}

// ChannelConfig defines one relayed UDP channel. The relay listens on Port
// and forwards to the same port on the device. Buffer sizes are requests
// passed to the kernel at socket setup; zero leaves the OS default in place.
type ChannelConfig struct {
	Name             string   `yaml:"name"`
	Port             int      `yaml:"port"`
	ServerRecvBuffer ByteSize `yaml:"server_recv_buffer"`
	ServerSendBuffer ByteSize `yaml:"server_send_buffer"`
	ClientRecvBuffer ByteSize `yaml:"client_recv_buffer"`
	ClientSendBuffer ByteSize `yaml:"client_send_buffer"`
}

// HealthConfig defines health check server settings.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ControlConfig defines control socket settings.
type ControlConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

// ByteSize is a buffer size in bytes. It unmarshals from either a plain
// integer or a humanized string such as "50 MB" or "1 MiB".
type ByteSize uint64

// String renders the size in IEC units for logs and listings.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int returns the size as an int for socket option calls.
func (b ByteSize) Int() int {
	return int(b)
}

// MarshalYAML emits the exact byte count so a marshal/parse round trip is
// lossless. Humanized forms like "47.7 MiB" would round.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return uint64(b), nil
}

// UnmarshalYAML accepts integers and humanized strings.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("byte size must be a number or a string like \"50 MB\": %w", err)
	}
	if raw == "" {
		*b = 0
		return nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", raw, err)
	}
	*b = ByteSize(n)
	return nil
}

// dspTransferBuffer is the socket buffer requested on the transmit-side hops
// of a DSP channel. One transfer window is enough there.
const dspTransferBuffer ByteSize = 1 << 20

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Bind: "0.0.0.0",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Relay: RelayConfig{
			MTU:          9000,
			PollInterval: 100 * time.Millisecond,
		},
		Channels: DefaultChannels(),
		Health: HealthConfig{
			Enabled:      false,
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Control: ControlConfig{
			Enabled:    false,
			SocketPath: "./radio-relay.sock",
		},
	}
}

// DefaultChannels returns the standard USRP2 channel plan: control, two RX
// DSP streams, one TX DSP stream, and the GPS serial port.
func DefaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{Name: "ctrl", Port: 49152},
		{Name: "rxdsp0", Port: 49156, ServerSendBuffer: dspTransferBuffer, ClientRecvBuffer: rxDSPClientRecvBuffer},
		{Name: "txdsp0", Port: 49157, ServerRecvBuffer: dspTransferBuffer, ClientSendBuffer: dspTransferBuffer},
		{Name: "rxdsp1", Port: 49158, ServerSendBuffer: dspTransferBuffer, ClientRecvBuffer: rxDSPClientRecvBuffer},
		{Name: "gps", Port: 49172},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	// Parse YAML
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		// Simple lookup
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors. The device address may be
// empty here because it usually arrives as a command line flag; callers that
// need it set use RequireDevice.
func (c *Config) Validate() error {
	var errs []string

	if c.Device != "" && strings.Contains(c.Device, ":") {
		errs = append(errs, fmt.Sprintf("device must be a bare hostname or IPv4 address, got %q", c.Device))
	}
	if c.Bind == "" {
		errs = append(errs, "bind address is required")
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// 576 is the minimum datagram size every IPv4 host must accept.
	if c.Relay.MTU < 576 || c.Relay.MTU > 65535 {
		errs = append(errs, "relay.mtu must be between 576 and 65535")
	}
	if c.Relay.PollInterval <= 0 {
		errs = append(errs, "relay.poll_interval must be positive")
	}

	if len(c.Channels) == 0 {
		errs = append(errs, "at least one channel is required")
	}
	names := make(map[string]bool)
	ports := make(map[int]bool)
	for i, ch := range c.Channels {
		if ch.Name == "" {
			errs = append(errs, fmt.Sprintf("channels[%d]: name is required", i))
		} else if names[ch.Name] {
			errs = append(errs, fmt.Sprintf("channels[%d]: duplicate name %q", i, ch.Name))
		}
		names[ch.Name] = true

		if ch.Port < 1 || ch.Port > 65535 {
			errs = append(errs, fmt.Sprintf("channels[%d]: port must be between 1 and 65535", i))
		} else if ports[ch.Port] {
			errs = append(errs, fmt.Sprintf("channels[%d]: duplicate port %d", i, ch.Port))
		}
		ports[ch.Port] = true
	}

	if c.Health.Enabled && c.Health.Address == "" {
		errs = append(errs, "health.address is required when enabled")
	}
	if c.Control.Enabled && c.Control.SocketPath == "" {
		errs = append(errs, "control.socket_path is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RequireDevice returns an error if no device address is configured.
func (c *Config) RequireDevice() error {
	if c.Device == "" {
		return fmt.Errorf("no device address configured (set --device or the device key in the config file)")
	}
	return nil
}

// Channel returns the channel with the given name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns the YAML rendering of the config. The schema carries no
// credentials, so the output is safe to log.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
