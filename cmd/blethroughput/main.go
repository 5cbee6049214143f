package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blethroughput",
		Short: "Bluetooth Low Energy throughput tester",
		Long: `Bluetooth Low Energy (BLE) throughput tester, client side.

Scans for a peripheral advertising the throughput test service, connects,
negotiates PHY, connection interval and MTU, subscribes to the test
characteristics and measures the data rate:

- free mode: the peripheral decides when transmission starts and stops
- fixed-time mode: transmission runs for --time seconds
- fixed-amount mode: transmission runs until --amount bytes arrive

After a fixed run the tool asks whether to run again. Ctrl+C exits free mode.`,
		Example: `  blethroughput
  blethroughput --mode fixed-time --time 10 --phy 2m
  blethroughput --mode fixed-amount --amount 100000 --interval 20 --mtu 247
  blethroughput --config profile.yaml --format json`,
		Version:       formatVersion(version),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runThroughput,
	}
	cmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (commit %s, built %s)\n", commit, date))

	// Global flags
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	cmd.Flags().BoolP("version", "v", false, "Show version information")

	addSessionFlags(cmd)
	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
