// Package config handles configuration loading for the capture tool:
// file/env-backed loading via viper for the standalone binary, and a
// map-of-named-keys decode path for embedding collaborators (spec §6).
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// GlobalConfig is the top-level configuration. Maps to the
// `capture-agent:` root key in YAML.
type GlobalConfig struct {
	Node    NodeConfig    `mapstructure:"node"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Storage StorageConfig `mapstructure:"storage"`
}

// NodeConfig contains node identification settings.
type NodeConfig struct {
	IP       string            `mapstructure:"ip"` // empty = auto-detect
	Hostname string            `mapstructure:"hostname"`
	Tags     map[string]string `mapstructure:"tags"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"` // debug / info / warn / error
	Format  string           `mapstructure:"format"`
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures rotated file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// CaptureConfig configures the capture manager's inputs (spec §6's
// `capture.*` keys).
type CaptureConfig struct {
	Device string    `mapstructure:"device"`
	Limit  int       `mapstructure:"limit"` // parsed only; not passed to storage, which caps retention by storage.memory_limit alone, not by call count
	EEP    EEPConfig `mapstructure:"eep"`
}

// EEPConfig configures the remote HEP encapsulation endpoints (spec
// §6's `capture.eep.listen`/`capture.eep.send`).
type EEPConfig struct {
	Listen string `mapstructure:"listen"`
	Send   string `mapstructure:"send"`
}

// TLSConfig configures static-RSA TLS decryption (spec §6's
// `tls.keyfile`/`tls.server`).
type TLSConfig struct {
	KeyFile string `mapstructure:"keyfile"`
	Server  string `mapstructure:"server"` // addr:port hint
}

// StorageConfig configures the call index (spec §6's `storage.*` keys).
type StorageConfig struct {
	MemoryLimit int64               `mapstructure:"memory_limit"` // bytes; 0 = unbounded
	Filter      StorageFilterConfig `mapstructure:"filter"`
	Match       StorageMatchConfig  `mapstructure:"match"`
}

// StorageFilterConfig pre-filters messages before they reach the call
// index.
type StorageFilterConfig struct {
	Methods []string `mapstructure:"methods"` // accepted SIP methods; empty = all
	Payload string   `mapstructure:"payload"` // regex pre-filter over the raw payload
}

// StorageMatchConfig restricts which calls storage keeps.
type StorageMatchConfig struct {
	Invite   bool `mapstructure:"invite"`   // restrict to INVITE dialogs
	Complete bool `mapstructure:"complete"` // evict a call as soon as it reaches a terminal state
}

// configRoot is the top-level wrapper matching the YAML structure
// `capture-agent: ...`.
type configRoot struct {
	CaptureAgent GlobalConfig `mapstructure:"capture-agent"`
}

// Load loads configuration from a YAML file for the standalone binary.
// Env vars override with a CAPTURE_AGENT_ prefix (e.g.
// CAPTURE_AGENT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.CaptureAgent

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture-agent.log.level", "info")
	v.SetDefault("capture-agent.log.format", "json")
	v.SetDefault("capture-agent.log.outputs.file.enabled", false)
	v.SetDefault("capture-agent.log.outputs.file.path", "/var/log/capture-agent/capture-agent.log")
	v.SetDefault("capture-agent.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("capture-agent.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("capture-agent.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("capture-agent.log.outputs.file.rotation.compress", true)

	v.SetDefault("capture-agent.metrics.enabled", true)
	v.SetDefault("capture-agent.metrics.listen", ":9091")
	v.SetDefault("capture-agent.metrics.path", "/metrics")

	v.SetDefault("capture-agent.storage.memory_limit", 256*1024*1024)
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults (node hostname/IP auto-detection).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	resolvedIP, err := resolveNodeIP(&cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.IP = resolvedIP

	return nil
}

// resolveNodeIP resolves the node IP address: explicit config value
// first, then the first non-loopback, non-link-local IPv4 address.
func resolveNodeIP(node *NodeConfig) (string, error) {
	if node.IP != "" {
		return node.IP, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("cannot resolve node IP: failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || (ip4[0] == 169 && ip4[1] == 254) {
				continue
			}
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("cannot resolve node IP: set CAPTURE_AGENT_NODE_IP or capture-agent.node.ip")
}

// CollaboratorConfig is the map-of-named-keys configuration surface an
// embedding collaborator hands in directly, bypassing file/env loading
// (spec §6: "A map with named keys"). Keys are dotted paths
// (`storage.memory_limit`, `tls.keyfile`, `capture.eep.listen`, ...).
type CollaboratorConfig map[string]any

// DecodeCollaborator decodes a dotted-key CollaboratorConfig into a
// GlobalConfig, applying the same node hostname/IP defaults Load does.
// Unlike Load, it does not require a log level/format to be present —
// a collaborator that only cares about capture/storage/tls options
// doesn't also have to restate logging defaults.
func DecodeCollaborator(raw CollaboratorConfig) (*GlobalConfig, error) {
	cfg := &GlobalConfig{
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Listen: ":9091", Path: "/metrics"},
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expandDottedKeys(raw)); err != nil {
		return nil, fmt.Errorf("config: decode collaborator config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config: validate collaborator config: %w", err)
	}
	return cfg, nil
}

// expandDottedKeys turns {"storage.memory_limit": 500000} into
// {"storage": {"memory_limit": 500000}} so mapstructure can decode a
// flat dotted-key map into GlobalConfig's nested struct tree.
func expandDottedKeys(raw CollaboratorConfig) map[string]any {
	out := make(map[string]any)
	for key, val := range raw {
		parts := strings.Split(key, ".")
		cursor := out
		for i, part := range parts {
			if i == len(parts)-1 {
				cursor[part] = val
				continue
			}
			next, ok := cursor[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cursor[part] = next
			}
			cursor = next
		}
	}
	return out
}

// ParseMemoryLimit parses a plain byte count or a collaborator-supplied
// string (for callers that pass storage.memory_limit as a string rather
// than a number).
func ParseMemoryLimit(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("config: invalid memory_limit %q: %w", t, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("config: unsupported memory_limit type %T", v)
	}
}
