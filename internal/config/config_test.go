package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
    hostname: "test-host"
    tags:
      env: "test"
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "0.0.0.0:9090"
    path: "/metrics"
  capture:
    device: "eth0"
    limit: 5000
  storage:
    memory_limit: 104857600
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Node.IP != "10.0.0.1" {
		t.Errorf("Node.IP = %q, want 10.0.0.1", cfg.Node.IP)
	}
	if cfg.Node.Hostname != "test-host" {
		t.Errorf("Node.Hostname = %q, want test-host", cfg.Node.Hostname)
	}
	if cfg.Node.Tags["env"] != "test" {
		t.Errorf("Node.Tags[env] = %q, want test", cfg.Node.Tags["env"])
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Capture.Device != "eth0" {
		t.Errorf("Capture.Device = %q, want eth0", cfg.Capture.Device)
	}
	if cfg.Capture.Limit != 5000 {
		t.Errorf("Capture.Limit = %d, want 5000", cfg.Capture.Limit)
	}
	if cfg.Storage.MemoryLimit != 104857600 {
		t.Errorf("Storage.MemoryLimit = %d, want 104857600", cfg.Storage.MemoryLimit)
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
  log:
    level: "invalid"
    format: "json"
`))
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("error = %v, want 'invalid log level'", err)
	}
}

func TestLoadInvalidLogFormat(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
  log:
    level: "info"
    format: "invalid"
`))
	if err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestAutoDetectHostname(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
  log:
    level: "info"
    format: "json"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Node.Hostname == "" {
		t.Error("expected auto-detected hostname, got empty")
	}
	expected, _ := os.Hostname()
	if cfg.Node.Hostname != expected {
		t.Errorf("Node.Hostname = %q, want %q", cfg.Node.Hostname, expected)
	}
}

func TestNodeIPExplicit(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "192.168.1.100"
  log:
    level: "info"
    format: "json"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Node.IP != "192.168.1.100" {
		t.Errorf("Node.IP = %q, want 192.168.1.100", cfg.Node.IP)
	}
}

func TestNodeIPAutoDetect(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  log:
    level: "info"
    format: "json"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Node.IP == "" {
		t.Error("expected auto-detected Node.IP, got empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.Listen != ":9091" {
		t.Errorf("Metrics.Listen = %q, want :9091", cfg.Metrics.Listen)
	}
	if cfg.Storage.MemoryLimit != 256*1024*1024 {
		t.Errorf("Storage.MemoryLimit = %d, want %d", cfg.Storage.MemoryLimit, 256*1024*1024)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CAPTURE_AGENT_LOG_LEVEL", "debug")

	cfg, err := Load(writeTmpConfig(t, `
capture-agent:
  node:
    ip: "10.0.0.1"
  log:
    level: "info"
    format: "json"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug (from env)", cfg.Log.Level)
	}
}

func TestDecodeCollaborator(t *testing.T) {
	cfg, err := DecodeCollaborator(CollaboratorConfig{
		"storage.memory_limit":  int64(1 << 20),
		"storage.filter.methods": []string{"INVITE", "BYE"},
		"storage.match.invite":   true,
		"tls.keyfile":            "/etc/capture/key.pem",
		"tls.server":             "10.0.0.5:5061",
		"capture.limit":          2000,
		"capture.device":         "eth1",
		"capture.eep.listen":     "0.0.0.0:9060",
		"capture.eep.send":       "collector:9060",
		"node.ip":                "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("DecodeCollaborator failed: %v", err)
	}

	if cfg.Storage.MemoryLimit != 1<<20 {
		t.Errorf("Storage.MemoryLimit = %d, want %d", cfg.Storage.MemoryLimit, 1<<20)
	}
	if len(cfg.Storage.Filter.Methods) != 2 || cfg.Storage.Filter.Methods[0] != "INVITE" {
		t.Errorf("Storage.Filter.Methods = %v", cfg.Storage.Filter.Methods)
	}
	if !cfg.Storage.Match.Invite {
		t.Error("Storage.Match.Invite = false, want true")
	}
	if cfg.TLS.KeyFile != "/etc/capture/key.pem" {
		t.Errorf("TLS.KeyFile = %q", cfg.TLS.KeyFile)
	}
	if cfg.TLS.Server != "10.0.0.5:5061" {
		t.Errorf("TLS.Server = %q", cfg.TLS.Server)
	}
	if cfg.Capture.Limit != 2000 {
		t.Errorf("Capture.Limit = %d, want 2000", cfg.Capture.Limit)
	}
	if cfg.Capture.Device != "eth1" {
		t.Errorf("Capture.Device = %q, want eth1", cfg.Capture.Device)
	}
	if cfg.Capture.EEP.Listen != "0.0.0.0:9060" {
		t.Errorf("Capture.EEP.Listen = %q", cfg.Capture.EEP.Listen)
	}
	if cfg.Capture.EEP.Send != "collector:9060" {
		t.Errorf("Capture.EEP.Send = %q", cfg.Capture.EEP.Send)
	}

	// Defaults still apply even though the collaborator never mentioned them.
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
}

func TestDecodeCollaboratorMinimal(t *testing.T) {
	cfg, err := DecodeCollaborator(CollaboratorConfig{})
	if err != nil {
		t.Fatalf("DecodeCollaborator failed: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("expected default log config, got %+v", cfg.Log)
	}
	if cfg.Node.Hostname == "" {
		t.Error("expected auto-detected hostname")
	}
}
