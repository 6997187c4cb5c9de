// Package sysinfo collects host information for the health and control
// surfaces.
package sysinfo

import (
	"net"
	"os"
	"runtime"
	"time"
)

// Version is the relay version, set at build time via ldflags.
// Example: go build -ldflags="-X github.com/postalsys/radio-relay/internal/sysinfo.Version=1.0.0"
var Version = "dev"

// startTime is when the process started.
var startTime = time.Now()

// Info describes the host the relay runs on.
type Info struct {
	Hostname  string   `json:"hostname"`
	OS        string   `json:"os"`
	Arch      string   `json:"arch"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	StartTime int64    `json:"start_time"`
	UptimeSec int64    `json:"uptime_seconds"`
	Addresses []string `json:"addresses,omitempty"`
}

// Collect gathers local host information.
func Collect() Info {
	hostname, _ := os.Hostname()

	return Info{
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Version:   Version,
		GoVersion: runtime.Version(),
		StartTime: startTime.Unix(),
		UptimeSec: int64(Uptime().Seconds()),
		Addresses: LocalIPs(),
	}
}

// LocalIPs returns non-loopback IPv4 addresses.
func LocalIPs() []string {
	var ips []string

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		// Skip loopback addresses
		if ipNet.IP.IsLoopback() {
			continue
		}

		// Only include IPv4 addresses (limit payload size)
		if ipv4 := ipNet.IP.To4(); ipv4 != nil {
			ips = append(ips, ipv4.String())
		}
	}

	// Limit to first 10 IPs to prevent payload bloat
	if len(ips) > 10 {
		ips = ips[:10]
	}

	return ips
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// Uptime returns the time since the process started.
func Uptime() time.Duration {
	return time.Since(startTime)
}
