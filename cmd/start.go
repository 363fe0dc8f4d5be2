package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"github.com/Lixeiden/sngrep/internal/capture"
	"github.com/Lixeiden/sngrep/internal/config"
	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/log"
	"github.com/Lixeiden/sngrep/internal/metrics"
	"github.com/Lixeiden/sngrep/internal/storage"
)

var writeFile string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the capture pipeline",
	Long: `capture starts the SIP capture pipeline: it opens the configured
input (live interface, pcap file, or remote HEP feed), dissects every
frame, correlates messages into calls, and runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runCapture(cmd.Context(), cfg)
	},
}

func init() {
	captureCmd.Flags().StringVarP(&writeFile, "write-file", "w", "",
		"write accepted packets to a pcap file in addition to storing them")
}

func runCapture(ctx context.Context, cfg *config.GlobalConfig) error {
	log.Init(toLoggerConfig(cfg))
	logger := log.GetLogger()
	defer log.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	initShutdownListener(cancel)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer srv.Stop(context.Background())
	}

	store, err := storage.New(storage.Config{
		MemoryLimit:       cfg.Storage.MemoryLimit,
		FilterMethods:     cfg.Storage.Filter.Methods,
		FilterPayload:     cfg.Storage.Filter.Payload,
		MatchInviteOnly:   cfg.Storage.Match.Invite,
		MatchCompleteOnly: cfg.Storage.Match.Complete,
	})
	if err != nil {
		return fmt.Errorf("build storage: %w: %w", core.ErrInitFailure, err)
	}

	mgr := capture.New(capture.Config{
		LinkType:   layers.LinkTypeEthernet,
		TLSKeyFile: cfg.TLS.KeyFile,
		TLSServer:  cfg.TLS.Server,
	}, store)

	if err := attachInputs(mgr, cfg); err != nil {
		return err
	}
	if err := attachOutputs(mgr, cfg); err != nil {
		return err
	}

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("start capture manager: %w: %w", core.ErrInitFailure, err)
	}
	logger.Info("capture started")

	<-ctx.Done()
	logger.Info("shutting down")
	return mgr.Stop()
}

// attachInputs wires at most one offline or live frame source
// (--read-file, else --iface, else capture.device), and
// capture.eep.listen adds a remote HEP input alongside it when
// configured.
func attachInputs(mgr *capture.Manager, cfg *config.GlobalConfig) error {
	switch {
	case readFile != "":
		in, err := capture.NewOfflineInput(readFile)
		if err != nil {
			return fmt.Errorf("open read-file: %w", err)
		}
		if err := mgr.AddInput(in); err != nil {
			return fmt.Errorf("attach read-file input: %w", err)
		}
	default:
		iface := ifaceFlag
		if iface == "" {
			iface = cfg.Capture.Device
		}
		if iface != "" {
			if err := mgr.AddInput(capture.NewLiveInput(iface, layers.LinkTypeEthernet)); err != nil {
				return fmt.Errorf("attach live input: %w", err)
			}
		}
	}

	if cfg.Capture.EEP.Listen != "" {
		if err := mgr.AddInput(capture.NewRemoteInput(cfg.Capture.EEP.Listen)); err != nil {
			return fmt.Errorf("attach eep.listen input: %w", err)
		}
	}
	return nil
}

func attachOutputs(mgr *capture.Manager, cfg *config.GlobalConfig) error {
	if writeFile != "" {
		out, err := capture.NewFileOutput(writeFile, layers.LinkTypeEthernet)
		if err != nil {
			return fmt.Errorf("open write-file: %w", err)
		}
		if err := mgr.AddOutput(out); err != nil {
			return fmt.Errorf("attach write-file output: %w", err)
		}
	}
	if cfg.Capture.EEP.Send != "" {
		out, err := capture.NewRemoteOutput(cfg.Capture.EEP.Send, 0, "", cfg.Node.Hostname)
		if err != nil {
			return fmt.Errorf("dial eep.send: %w", err)
		}
		if err := mgr.AddOutput(out); err != nil {
			return fmt.Errorf("attach eep.send output: %w", err)
		}
	}
	return nil
}

func toLoggerConfig(cfg *config.GlobalConfig) *log.LoggerConfig {
	lc := log.DefaultLoggerConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	if cfg.Log.Outputs.File.Enabled {
		lc.File = &log.FileAppenderOpt{
			Filename:   cfg.Log.Outputs.File.Path,
			MaxSize:    cfg.Log.Outputs.File.Rotation.MaxSizeMB,
			MaxBackups: cfg.Log.Outputs.File.Rotation.MaxBackups,
			MaxAge:     cfg.Log.Outputs.File.Rotation.MaxAgeDays,
			Compress:   cfg.Log.Outputs.File.Rotation.Compress,
		}
	}
	return lc
}

func initShutdownListener(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		cancel()
	}()
}

func init() {
	rootCmd.AddCommand(captureCmd)
}
