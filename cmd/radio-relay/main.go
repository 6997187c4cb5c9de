package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/postalsys/radio-relay/internal/config"
	"github.com/postalsys/radio-relay/internal/control"
	"github.com/postalsys/radio-relay/internal/daemon"
	"github.com/postalsys/radio-relay/internal/loadtest"
	"github.com/postalsys/radio-relay/internal/probe"
	"github.com/postalsys/radio-relay/internal/service"
	"github.com/postalsys/radio-relay/internal/wizard"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "radio-relay",
		Short: "radio-relay - UDP channel relay for software radios",
		Long: `radio-relay is a bidirectional UDP relay daemon that bridges host
applications to a software radio device across network segments.

It listens on the device's well-known channel ports, forwards host
datagrams to the device, and returns device traffic to the most recent
host endpoint, one relay per channel.`,
		Version: Version,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(channelsCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(loadtestCmd())
	rootCmd.AddCommand(serviceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initCmd creates the init command
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long:  "Run the interactive setup wizard to create a configuration file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := wizard.New()
			if _, err := w.Run(); err != nil {
				return fmt.Errorf("setup failed: %w", err)
			}
			return nil
		},
	}
}

// runCmd creates the run command
func runCmd() *cobra.Command {
	var (
		configPath string
		device     string
		bind       string
		preflight  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay daemon",
		Long:  "Start the relay channels and block until a signal arrives or a channel fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"), device, bind)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}

			// Under the Windows Service Control Manager the SCM drives
			// the lifecycle instead of signals.
			if !service.IsInteractive() {
				return service.RunAsService("radio-relay", d)
			}

			if preflight {
				result := probe.Run(cmd.Context(), probe.Options{
					Device:  cfg.Device,
					Count:   1,
					Timeout: 2 * time.Second,
				})
				if !result.Reachable() {
					fmt.Fprintf(os.Stderr, "Warning: no echo reply from %s, starting anyway (ICMP may be filtered)\n", cfg.Device)
				}
			}

			if err := d.Start(); err != nil {
				return fmt.Errorf("failed to start relay: %w", err)
			}

			fmt.Printf("Device: %s\n", cfg.Device)
			fmt.Printf("Status: running (%d channels)\n", len(cfg.Channels))
			for _, ch := range cfg.Channels {
				fmt.Printf("  %-8s %s:%d <-> %s:%d\n", ch.Name, cfg.Bind, ch.Port, cfg.Device, ch.Port)
			}
			if cfg.Health.Enabled {
				fmt.Printf("Health: http://%s/health\n", cfg.Health.Address)
			}
			if cfg.Control.Enabled {
				fmt.Printf("Control socket: %s\n", cfg.Control.SocketPath)
			}
			fmt.Println("Press Ctrl+C to stop.")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			var runErr error
			select {
			case sig := <-sigCh:
				fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
			case <-d.Failed():
				runErr = d.Err()
				fmt.Fprintf(os.Stderr, "Relay channel failed: %v\n", runErr)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := d.StopWithContext(ctx); err != nil {
				fmt.Printf("Shutdown error: %v\n", err)
				if runErr == nil {
					runErr = err
				}
			}

			if runErr != nil {
				return runErr
			}

			fmt.Println("Relay stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Device address (overrides config)")
	cmd.Flags().StringVarP(&bind, "bind", "b", "", "Local bind address (overrides config)")
	cmd.Flags().BoolVar(&preflight, "preflight", false, "Ping the device before starting")

	return cmd
}

// statusCmd creates the status command
func statusCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  "Query a running daemon over its control socket.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			status, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to query daemon (is it running?): %w", err)
			}

			fmt.Printf("Running:  %v\n", status.Running)
			fmt.Printf("Device:   %s\n", status.Device)
			fmt.Printf("Channels: %d\n", status.ChannelCount)
			if status.BrokenCount > 0 {
				fmt.Printf("Broken:   %d\n", status.BrokenCount)
			}

			channels, err := client.Channels(ctx)
			if err != nil {
				return fmt.Errorf("failed to query channels: %w", err)
			}

			for _, ch := range channels.Channels {
				state := "ok"
				if ch.Broken {
					state = "broken"
				}
				source := ch.Source
				if source == "" {
					source = "-"
				}
				fmt.Printf("  %-8s port %-6d %-7s source %-21s tx %d rx %d\n",
					ch.Name, ch.Port, state, source, ch.TXDatagrams, ch.RXDatagrams)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "./radio-relay.sock", "Path to control socket")

	return cmd
}

// channelsCmd creates the channels command
func channelsCmd() *cobra.Command {
	var (
		configPath string
		device     string
	)

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Print the channel plan",
		Long:  "Print the effective channel plan with the configured buffer sizes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"), device, "")
			if err != nil {
				return err
			}

			fmt.Printf("%-8s %-6s %-12s %-12s %-12s %-12s\n",
				"NAME", "PORT", "SRV RECV", "SRV SEND", "CLI RECV", "CLI SEND")
			for _, ch := range cfg.Channels {
				fmt.Printf("%-8s %-6d %-12s %-12s %-12s %-12s\n",
					ch.Name, ch.Port,
					bufferLabel(ch.ServerRecvBuffer),
					bufferLabel(ch.ServerSendBuffer),
					bufferLabel(ch.ClientRecvBuffer),
					bufferLabel(ch.ClientSendBuffer))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Device address (overrides config)")

	return cmd
}

// probeCmd creates the probe command
func probeCmd() *cobra.Command {
	var (
		configPath string
		device     string
		count      int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check device reachability",
		Long:  "Send ICMP echo probes to the device and resolve the channel ports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"), device, "")
			if err != nil {
				return err
			}
			if err := cfg.RequireDevice(); err != nil {
				return err
			}

			ports := make([]int, 0, len(cfg.Channels))
			for _, ch := range cfg.Channels {
				ports = append(ports, ch.Port)
			}

			fmt.Printf("Probing %s...\n", cfg.Device)

			result := probe.Run(cmd.Context(), probe.Options{
				Device:  cfg.Device,
				Ports:   ports,
				Count:   count,
				Timeout: timeout,
			})

			if result.Error != nil {
				if result.ErrorDetail != "" {
					fmt.Fprintln(os.Stderr, result.ErrorDetail)
				}
				return fmt.Errorf("probe failed: %w", result.Error)
			}

			fmt.Printf("Device %s (%s): %d sent, %d received\n",
				result.Device, result.Addr, result.Sent, result.Received)
			if result.Received > 0 {
				fmt.Printf("RTT min/avg/max = %s/%s/%s\n",
					result.MinRTT.Round(time.Microsecond),
					result.AvgRTT.Round(time.Microsecond),
					result.MaxRTT.Round(time.Microsecond))
			}
			for _, pc := range result.Ports {
				if pc.Error != nil {
					fmt.Printf("  port %-6d %v\n", pc.Port, pc.Error)
				} else {
					fmt.Printf("  port %-6d %s\n", pc.Port, pc.Endpoint)
				}
			}

			if !result.Reachable() {
				return fmt.Errorf("no echo reply from %s (ICMP may be filtered)", cfg.Device)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVarP(&device, "device", "d", "", "Device address (overrides config)")
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of echo requests")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Wait per echo reply")

	return cmd
}

// loadtestCmd creates the loadtest command
func loadtestCmd() *cobra.Command {
	var (
		target   string
		rate     int
		count    int
		size     int
		duration time.Duration
		echo     bool
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Generate UDP test traffic",
		Long: `Send paced UDP datagrams at a relay channel and count the echoes,
or run an echo sink standing in for the device with --echo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if echo {
				sink, err := loadtest.NewSink(loadtest.SinkConfig{
					Address: listen,
					Echo:    true,
				})
				if err != nil {
					return fmt.Errorf("failed to start sink: %w", err)
				}
				defer sink.Stop()

				fmt.Printf("Echo sink listening on %s\n", sink.Addr())
				fmt.Println("Press Ctrl+C to stop.")

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh

				fmt.Printf("\nReceived %d datagrams (%s)\n",
					sink.Received(), humanize.IBytes(sink.Bytes()))
				return nil
			}

			if target == "" {
				return fmt.Errorf("target address is required (use --target host:port or --echo)")
			}

			gen, err := loadtest.NewGenerator(loadtest.GeneratorConfig{
				Target:   target,
				Rate:     rate,
				Count:    count,
				Size:     size,
				Duration: duration,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Sending to %s at %d datagrams/s...\n", target, rate)

			m, err := gen.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Sent:       %d (%s)\n", m.Sent, humanize.IBytes(m.BytesSent))
			fmt.Printf("Received:   %d (%s)\n", m.Received, humanize.IBytes(m.BytesRecv))
			fmt.Printf("Lost:       %d (%.1f%%)\n", m.Lost, m.LossRate*100)
			fmt.Printf("Duration:   %s\n", m.Duration.Round(time.Millisecond))
			fmt.Printf("Rate:       %.0f datagrams/s\n", m.SendRate)
			fmt.Printf("Throughput: %.2f MiB/s\n", m.Throughput)
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "Target address (host:port)")
	cmd.Flags().IntVarP(&rate, "rate", "r", 1000, "Send rate in datagrams per second")
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "Number of datagrams to send (0 = run until --duration)")
	cmd.Flags().IntVar(&size, "size", 1024, "Datagram size in bytes")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Cap on the send phase")
	cmd.Flags().BoolVar(&echo, "echo", false, "Run an echo sink instead of a generator")
	cmd.Flags().StringVar(&listen, "listen", "0.0.0.0:0", "Sink listen address (with --echo)")

	return cmd
}

// serviceCmd creates the service command
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the system service",
		Long:  "Install, remove, or inspect the system service (systemd, launchd, or Windows service).",
	}

	cmd.AddCommand(serviceInstallCmd())
	cmd.AddCommand(serviceUninstallCmd())
	cmd.AddCommand(serviceStatusCmd())

	return cmd
}

// serviceInstallCmd creates the service install command
func serviceInstallCmd() *cobra.Command {
	var (
		configPath string
		user       string
		group      string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install as a system service",
		Long:  "Install the relay as a system service that starts at boot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !service.IsSupported() {
				return fmt.Errorf("service installation is not supported on %s", runtime.GOOS)
			}

			// The unit starts with `run -c <config>`, so the file must exist.
			if _, err := os.Stat(configPath); err != nil {
				return fmt.Errorf("config file not found at %s (run 'radio-relay init' first)", configPath)
			}

			cfg := service.DefaultConfig(configPath)
			cfg.User = user
			cfg.Group = group

			if err := service.Install(cfg); err != nil {
				return err
			}

			fmt.Println("Service installed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&user, "user", "", "Run the service as this user (Linux)")
	cmd.Flags().StringVar(&group, "group", "", "Run the service as this group (Linux)")

	return cmd
}

// serviceUninstallCmd creates the service uninstall command
func serviceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the system service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.Uninstall("radio-relay"); err != nil {
				return err
			}
			fmt.Println("Service removed.")
			return nil
		},
	}
}

// serviceStatusCmd creates the service status command
func serviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the system service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := service.Status("radio-relay")
			if err != nil {
				return err
			}
			fmt.Printf("Service: %s\n", status)
			return nil
		},
	}
}

// loadConfig reads the config file and applies flag overrides. A missing
// file is only an error when the path was given explicitly; otherwise the
// built-in defaults are used so --device alone is enough to run.
func loadConfig(path string, explicit bool, device, bind string) (*config.Config, error) {
	cfg := config.Default()

	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if device != "" {
		cfg.Device = device
	}
	if bind != "" {
		cfg.Bind = bind
	}

	return cfg, nil
}

// bufferLabel formats a buffer hint, showing "default" for unset ones.
func bufferLabel(b config.ByteSize) string {
	if b == 0 {
		return "default"
	}
	return b.String()
}
