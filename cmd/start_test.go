package cmd

import (
	"path/filepath"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/Lixeiden/sngrep/internal/capture"
	"github.com/Lixeiden/sngrep/internal/config"
	"github.com/Lixeiden/sngrep/internal/storage"
)

func newTestManager(t *testing.T) *capture.Manager {
	t.Helper()
	store, err := storage.New(storage.Config{})
	require.NoError(t, err)
	return capture.New(capture.Config{LinkType: layers.LinkTypeEthernet}, store)
}

func TestToLoggerConfig(t *testing.T) {
	cfg := &config.GlobalConfig{
		Log: config.LogConfig{Level: "debug", Format: "text"},
	}
	lc := toLoggerConfig(cfg)
	require.Equal(t, "debug", lc.Level)
	require.Equal(t, "text", lc.Format)
	require.Nil(t, lc.File)
}

func TestToLoggerConfigFileOutput(t *testing.T) {
	cfg := &config.GlobalConfig{
		Log: config.LogConfig{
			Level:  "info",
			Format: "json",
			Outputs: config.LogOutputsConfig{
				File: config.FileOutputConfig{
					Enabled: true,
					Path:    "/var/log/sngrep/agent.log",
					Rotation: config.RotationConfig{
						MaxSizeMB:  50,
						MaxBackups: 3,
						MaxAgeDays: 7,
						Compress:   true,
					},
				},
			},
		},
	}
	lc := toLoggerConfig(cfg)
	require.NotNil(t, lc.File)
	require.Equal(t, "/var/log/sngrep/agent.log", lc.File.Filename)
	require.Equal(t, 50, lc.File.MaxSize)
}

func TestAttachInputsMissingReadFile(t *testing.T) {
	oldReadFile := readFile
	readFile = filepath.Join(t.TempDir(), "missing.pcap")
	defer func() { readFile = oldReadFile }()

	mgr := newTestManager(t)
	err := attachInputs(mgr, &config.GlobalConfig{})
	require.Error(t, err)
}

func TestAttachOutputsWriteFile(t *testing.T) {
	oldWriteFile := writeFile
	writeFile = filepath.Join(t.TempDir(), "out.pcap")
	defer func() { writeFile = oldWriteFile }()

	mgr := newTestManager(t)
	err := attachOutputs(mgr, &config.GlobalConfig{})
	require.NoError(t, err)
}

func TestAttachOutputsNoneConfigured(t *testing.T) {
	oldWriteFile := writeFile
	writeFile = ""
	defer func() { writeFile = oldWriteFile }()

	mgr := newTestManager(t)
	err := attachOutputs(mgr, &config.GlobalConfig{})
	require.NoError(t, err)
}
