package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/sensor"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for WIT sensors",
	Long: `Scan for nearby BLE devices and list them in first-seen order.

Each device is printed once as it is discovered; when the scan ends
(after --scan-timeout, default 6s, or Ctrl+C) the full list is repeated
followed by a count. A zero count is a normal result.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outlet := &tapOutlet{next: newStdoutPrinter(cfg)}
	outlet.tap = func(o sensor.Output) {
		// scanning 0 ends the command, whether from the timeout or the adapter
		if o.Name == sensor.OutScanning && flag(o, 0) {
			cancel()
		}
	}

	sess, err := newSession(cfg, outlet, logger)
	if err != nil {
		return err
	}

	return sess.run(ctx,
		func(s *sensor.Sensor) { s.StartScan() },
		func(s *sensor.Sensor) { s.Results() },
	)
}
