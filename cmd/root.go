// Package cmd implements the capture agent's CLI commands using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	ifaceFlag  string
	readFile   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sngrep",
	Short: "sngrep-agent - SIP capture, correlation and memory-bounded call storage",
	Long: `sngrep-agent captures SIP traffic from a live interface, a pcap file, or a
remote HEP feed, reassembles TCP/TLS/WebSocket transports, correlates messages
into calls, and exposes the result to a collaborator presentation layer.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/sngrep/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&ifaceFlag, "iface", "",
		"network interface to capture from (overrides capture.device)")
	rootCmd.PersistentFlags().StringVar(&readFile, "read-file", "",
		"read packets from a pcap/pcap-ng file instead of a live interface")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
