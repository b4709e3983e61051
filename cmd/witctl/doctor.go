package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/bluez"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the Bluetooth adapter is usable",
	Long: `Check the BlueZ adapter over D-Bus: bluetoothd running, adapter present
and powered. Use --power-on to power up an adapter that is off.
Only available on Linux.`,
	RunE: runDoctor,
}

var (
	doctorPowerOn bool
	doctorDevice  string
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorPowerOn, "power-on", false, "Power the adapter on if it is off")
	doctorCmd.Flags().StringVar(&doctorDevice, "device", "", "Also report whether BlueZ holds a link to this address")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("doctor checks BlueZ and is only available on Linux (running on %s)", runtime.GOOS)
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	if doctorPowerOn {
		client, err := bluez.Open(cfg.Adapter, logger)
		if err != nil {
			return err
		}
		powerErr := client.SetPowered(true)
		_ = client.Close()
		if powerErr != nil {
			return fmt.Errorf("failed to power on %s: %w", cfg.Adapter, powerErr)
		}
	}

	status, err := bluez.Preflight(cfg.Adapter, logger)
	fmt.Fprintf(out, "adapter  %s\n", status.Adapter)
	if status.Address != "" {
		fmt.Fprintf(out, "address  %s\n", status.Address)
	}
	if status.Name != "" {
		fmt.Fprintf(out, "name     %s\n", status.Name)
	}
	fmt.Fprintf(out, "powered  %t\n", status.Powered)
	if err != nil {
		return err
	}

	if doctorDevice != "" {
		client, err := bluez.Open(cfg.Adapter, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		connected, err := client.DeviceConnected(doctorDevice)
		if err != nil {
			fmt.Fprintf(out, "device   %s unknown to bluez\n", doctorDevice)
		} else {
			// a link held elsewhere blocks our connect
			fmt.Fprintf(out, "device   %s connected=%t\n", doctorDevice, connected)
		}
	}
	fmt.Fprintln(out, "ok")
	return nil
}
