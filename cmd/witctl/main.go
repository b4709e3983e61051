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

// aboutText is printed by the shell's about command.
func aboutText() string {
	return fmt.Sprintf("witctl %s (commit %s, built %s)", formatVersion(version), commit, date)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "witctl",
	Short: "WIT IMU BLE sensor tool",
	Long: `Command-line tool for WitMotion BLE inertial sensors (WT901BLE and relatives):

- Scan for nearby sensors and connect by name or address
- Stream decoded acceleration, angular rate, orientation and quaternions
- Configure rate, bandwidth, fusion axes, output mode and device name
- Poll battery, temperature, magnetometer and quaternion registers
- Decode captured frames or a UART stream with the same decoder

Run 'witctl shell' for an interactive command prompt.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: witctl.yaml in ~/.config/witctl, /etc/witctl or .)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("verbose", false, "Verbose logging (same as --log-level debug)")
	pf.String("format", "", "Output format (text, json)")
	pf.Float64("print-rate", 0, "Maximum data lines printed per second (0 = unlimited)")
	pf.Bool("legacy", false, "Decode the pre-scaled float frame layout")
	pf.String("adapter", "", "BlueZ adapter for doctor (Linux)")
	pf.Duration("scan-timeout", 0, "Stop scanning automatically after this long")
	pf.Duration("connect-timeout", 0, "Give up a connect attempt after this long")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
