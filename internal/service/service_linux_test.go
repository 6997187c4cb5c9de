//go:build linux

package service

import (
	"strings"
	"testing"
)

func TestGenerateSystemdUnit(t *testing.T) {
	cfg := Config{
		Name:        "radio-relay",
		DisplayName: "Radio Relay",
		Description: "Bidirectional UDP relay for software radio devices",
		ConfigPath:  "/etc/radio-relay/config.yaml",
		WorkingDir:  "/etc/radio-relay",
	}
	execPath := "/usr/local/bin/radio-relay"

	unit := generateSystemdUnit(cfg, execPath)

	// Check that required sections exist
	if !strings.Contains(unit, "[Unit]") {
		t.Error("Unit file missing [Unit] section")
	}
	if !strings.Contains(unit, "[Service]") {
		t.Error("Unit file missing [Service] section")
	}
	if !strings.Contains(unit, "[Install]") {
		t.Error("Unit file missing [Install] section")
	}

	// Check description
	if !strings.Contains(unit, "Description=Bidirectional UDP relay for software radio devices") {
		t.Error("Unit file missing description")
	}

	// Check ExecStart
	expectedExec := "ExecStart=/usr/local/bin/radio-relay run -c /etc/radio-relay/config.yaml"
	if !strings.Contains(unit, expectedExec) {
		t.Errorf("Unit file missing ExecStart, expected: %s", expectedExec)
	}

	// Check working directory
	if !strings.Contains(unit, "WorkingDirectory=/etc/radio-relay") {
		t.Error("Unit file missing WorkingDirectory")
	}

	// Check security settings
	if !strings.Contains(unit, "NoNewPrivileges=true") {
		t.Error("Unit file missing NoNewPrivileges security setting")
	}
	if !strings.Contains(unit, "ProtectSystem=strict") {
		t.Error("Unit file missing ProtectSystem security setting")
	}
	if !strings.Contains(unit, "PrivateTmp=true") {
		t.Error("Unit file missing PrivateTmp security setting")
	}

	// The working directory must stay writable for the control socket
	if !strings.Contains(unit, "ReadWritePaths=/etc/radio-relay") {
		t.Error("Unit file missing ReadWritePaths for the working directory")
	}

	// Check restart settings
	if !strings.Contains(unit, "Restart=on-failure") {
		t.Error("Unit file missing Restart setting")
	}
	if !strings.Contains(unit, "RestartSec=5") {
		t.Error("Unit file missing RestartSec setting")
	}

	// Check logging
	if !strings.Contains(unit, "StandardOutput=journal") {
		t.Error("Unit file missing StandardOutput setting")
	}
	if !strings.Contains(unit, "SyslogIdentifier=radio-relay") {
		t.Error("Unit file missing SyslogIdentifier")
	}

	// Check installation target
	if !strings.Contains(unit, "WantedBy=multi-user.target") {
		t.Error("Unit file missing WantedBy setting")
	}

	// Check network dependency
	if !strings.Contains(unit, "After=network-online.target") {
		t.Error("Unit file missing network dependency")
	}
}

func TestGenerateSystemdUnitWithUser(t *testing.T) {
	cfg := Config{
		Name:        "radio-relay",
		Description: "Test service",
		ConfigPath:  "/etc/config.yaml",
		WorkingDir:  "/etc",
		User:        "relay",
		Group:       "relay",
	}
	execPath := "/usr/bin/radio-relay"

	unit := generateSystemdUnit(cfg, execPath)

	// Check User setting
	if !strings.Contains(unit, "User=relay") {
		t.Error("Unit file missing User setting when User is specified")
	}

	// Check Group setting
	if !strings.Contains(unit, "Group=relay") {
		t.Error("Unit file missing Group setting when Group is specified")
	}
}

func TestGenerateSystemdUnitWithoutUser(t *testing.T) {
	cfg := Config{
		Name:        "radio-relay",
		Description: "Test service",
		ConfigPath:  "/etc/config.yaml",
		WorkingDir:  "/etc",
		// User and Group are empty
	}
	execPath := "/usr/bin/radio-relay"

	unit := generateSystemdUnit(cfg, execPath)

	// Should not contain User= or Group= lines when empty
	if strings.Contains(unit, "User=") {
		t.Error("Unit file should not contain User= when User is empty")
	}
	if strings.Contains(unit, "Group=") {
		t.Error("Unit file should not contain Group= when Group is empty")
	}
}

func TestIsRootImplLinux(t *testing.T) {
	result1 := isRootImpl()
	result2 := isRootImpl()

	if result1 != result2 {
		t.Error("isRootImpl() returned inconsistent results")
	}
}
