// Package wizard provides an interactive setup wizard for radio-relay.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/postalsys/radio-relay/internal/config"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("setup wizard requires an interactive terminal")
	}

	w.printBanner()

	// Step 1: Device and paths
	device, bind, configPath, err := w.askBasicSetup()
	if err != nil {
		return nil, err
	}

	// Step 2: Channel plan
	preset, selected, extra, err := w.askChannelPlan()
	if err != nil {
		return nil, err
	}

	// Step 3: Socket buffer profile
	bufferProfile, err := w.askBufferProfile()
	if err != nil {
		return nil, err
	}

	// Step 4: Advanced options
	healthEnabled, controlEnabled, logLevel, err := w.askAdvancedOptions()
	if err != nil {
		return nil, err
	}

	// Build configuration
	cfg, err := w.buildConfig(
		device, bind, preset, selected, extra,
		bufferProfile, healthEnabled, controlEnabled, logLevel,
	)
	if err != nil {
		return nil, err
	}

	// Write configuration file
	if err := w.writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	// Print summary
	w.printSummary(configPath, cfg)

	return &Result{
		Config:     cfg,
		ConfigPath: configPath,
	}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render("\n" +
			"  ____           _ _          ____      _\n" +
			" |  _ \\ __ _  __| (_) ___    |  _ \\ ___| | __ _ _   _\n" +
			" | |_) / _` |/ _` | |/ _ \\   | |_) / _ \\ |/ _` | | | |\n" +
			" |  _ < (_| | (_| | | (_) |  |  _ <  __/ | (_| | |_| |\n" +
			" |_| \\_\\__,_|\\__,_|_|\\___/   |_| \\_\\___|_|\\__,_|\\__, |\n" +
			"                                                 |___/\n")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  UDP Relay for Software Radios - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askBasicSetup() (device, bind, configPath string, err error) {
	bind = "0.0.0.0"
	configPath = "./config.yaml"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Basic Setup").
				Description("Configure the device and local addresses for the relay."),

			huh.NewInput().
				Title("Device Address").
				Description("Hostname or IPv4 address of the radio device").
				Placeholder("192.168.10.2").
				Value(&device).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("device address is required")
					}
					if strings.Contains(s, ":") {
						return fmt.Errorf("device must be a bare hostname or address, without a port")
					}
					return nil
				}),

			huh.NewInput().
				Title("Bind Address").
				Description("Local address the relay listens on").
				Placeholder("0.0.0.0").
				Value(&bind).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("bind address is required")
					}
					if strings.Contains(s, ":") {
						return fmt.Errorf("bind must be a bare address, ports come from the channel plan")
					}
					return nil
				}),

			huh.NewInput().
				Title("Config File Path").
				Description("Where to write the configuration file").
				Placeholder("./config.yaml").
				Value(&configPath).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("config path is required")
					}
					if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
						return fmt.Errorf("config file should have .yaml or .yml extension")
					}
					return nil
				}),
		),
	).WithTheme(w.theme)

	err = form.Run()
	return
}

func (w *Wizard) askChannelPlan() (preset string, selected []string, extra string, err error) {
	preset = "full"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Channel Plan").
				Description("Select which UDP channels to relay.\nEach channel is one socket pair, listening and forwarding on the same port."),

			huh.NewSelect[string]().
				Title("Channel Preset").
				Description("The full plan covers control, sample streams and GPS").
				Options(
					huh.NewOption("Full plan (ctrl, rxdsp0, txdsp0, rxdsp1, gps)", "full"),
					huh.NewOption("Control only (ctrl)", "control"),
					huh.NewOption("Custom selection", "custom"),
				).
				Value(&preset),
		),
	).WithTheme(w.theme)

	if err = form.Run(); err != nil {
		return
	}

	if preset == "custom" {
		customForm := huh.NewForm(
			huh.NewGroup(
				huh.NewMultiSelect[string]().
					Title("Standard Channels").
					Options(
						huh.NewOption("ctrl (49152, register access)", "ctrl"),
						huh.NewOption("rxdsp0 (49156, RX sample stream)", "rxdsp0"),
						huh.NewOption("txdsp0 (49157, TX sample stream)", "txdsp0"),
						huh.NewOption("rxdsp1 (49158, second RX stream)", "rxdsp1"),
						huh.NewOption("gps (49172, GPS serial)", "gps"),
					).
					Value(&selected),

				huh.NewInput().
					Title("Extra Channels").
					Description("Optional name:port pairs, comma separated").
					Placeholder("debug:49200").
					Value(&extra).
					Validate(func(s string) error {
						_, err := parseChannelList(s)
						return err
					}),
			),
		).WithTheme(w.theme)

		if err = customForm.Run(); err != nil {
			return
		}
	}

	return
}

func (w *Wizard) askBufferProfile() (profile string, err error) {
	profile = "standard"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Socket Buffers").
				Description("Sample streams burst faster than the forwarding loop drains them.\nDeep kernel receive buffers absorb the bursts."),

			huh.NewSelect[string]().
				Title("Buffer Profile").
				Options(
					huh.NewOption("Standard hints (deep buffers on DSP channels)", "standard"),
					huh.NewOption("OS defaults (no buffer requests)", "os"),
				).
				Value(&profile),
		),
	).WithTheme(w.theme)

	err = form.Run()
	return
}

func (w *Wizard) askAdvancedOptions() (healthEnabled, controlEnabled bool, logLevel string, err error) {
	healthEnabled = true
	controlEnabled = true
	logLevel = "info"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&logLevel),

			huh.NewConfirm().
				Title("Enable health check endpoint?").
				Description("HTTP endpoint for monitoring (/health, /healthz, /channels)").
				Value(&healthEnabled),

			huh.NewConfirm().
				Title("Enable control socket?").
				Description("Unix socket for CLI commands (status, channels)").
				Value(&controlEnabled),
		),
	).WithTheme(w.theme)

	err = form.Run()
	return
}

func (w *Wizard) buildConfig(
	device, bind, preset string,
	selected []string,
	extraChannels string,
	bufferProfile string,
	healthEnabled, controlEnabled bool,
	logLevel string,
) (*config.Config, error) {
	cfg := config.Default()

	cfg.Device = device
	if bind != "" {
		cfg.Bind = bind
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = "text"

	channels, err := channelPlan(preset, selected, extraChannels)
	if err != nil {
		return nil, err
	}
	cfg.Channels = channels

	// The OS profile strips every buffer request, leaving kernel defaults.
	if bufferProfile == "os" {
		for i := range cfg.Channels {
			cfg.Channels[i].ServerRecvBuffer = 0
			cfg.Channels[i].ServerSendBuffer = 0
			cfg.Channels[i].ClientRecvBuffer = 0
			cfg.Channels[i].ClientSendBuffer = 0
		}
	}

	cfg.Health.Enabled = healthEnabled
	cfg.Control.Enabled = controlEnabled

	return cfg, nil
}

// channelPlan resolves a preset name to a channel list. Custom presets keep
// the selected standard channels and append any extra name:port pairs.
func channelPlan(preset string, selected []string, extra string) ([]config.ChannelConfig, error) {
	standard := config.DefaultChannels()

	var channels []config.ChannelConfig
	switch preset {
	case "control":
		for _, ch := range standard {
			if ch.Name == "ctrl" {
				channels = append(channels, ch)
			}
		}
	case "custom":
		for _, ch := range standard {
			if contains(selected, ch.Name) {
				channels = append(channels, ch)
			}
		}
	default:
		channels = standard
	}

	if extra != "" {
		parsed, err := parseChannelList(extra)
		if err != nil {
			return nil, err
		}
		channels = append(channels, parsed...)
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("channel plan is empty, select at least one channel")
	}

	return channels, nil
}

// parseChannelList parses comma separated name:port pairs.
func parseChannelList(s string) ([]config.ChannelConfig, error) {
	var channels []config.ChannelConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, portStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid channel %q (use name:port)", entry)
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port in channel %q", entry)
		}
		channels = append(channels, config.ChannelConfig{
			Name: strings.TrimSpace(name),
			Port: port,
		})
	}
	return channels, nil
}

func (w *Wizard) writeConfig(cfg *config.Config, path string) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header comment
	header := `# radio-relay configuration
# Generated by setup wizard
# See https://github.com/postalsys/radio-relay for documentation

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Device:       %s\n", cfg.Device)
	fmt.Printf("  Bind:         %s\n", cfg.Bind)
	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Println()

	for _, ch := range cfg.Channels {
		fmt.Printf("  Channel:      %-8s %s:%d <-> %s:%d\n",
			ch.Name, cfg.Bind, ch.Port, cfg.Device, ch.Port)
	}
	fmt.Println()

	if cfg.Health.Enabled {
		fmt.Printf("  Health:       http://%s/health\n", cfg.Health.Address)
	}
	if cfg.Control.Enabled {
		fmt.Printf("  Control:      %s\n", cfg.Control.SocketPath)
	}

	fmt.Println()
	fmt.Println("  To start the relay:")
	fmt.Printf("    radio-relay run -c %s\n", configPath)
	fmt.Println()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
