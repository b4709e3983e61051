package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/witproto"
	"github.com/tarm/serial"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode a sensor attached over UART",
	Long: `Read the WIT frame stream from a serial port (USB-UART adapter or the
sensor's wired interface) and print decoded outputs until Ctrl+C.`,
	Example: `  witctl monitor --port /dev/ttyUSB0 --baud 115200`,
	RunE:    runMonitor,
}

var monitorOutputMode int

func init() {
	monitorCmd.Flags().String("port", "", "Serial device (overrides serial.port)")
	monitorCmd.Flags().Int("baud", 0, "Baud rate (overrides serial.baud)")
	monitorCmd.Flags().IntVar(&monitorOutputMode, "output-mode", 0, "Output mode configured on the sensor (0..3)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Serial.Port == "" {
		return errors.New("no serial port: use --port or set serial.port")
	}
	cmd.SilenceUsage = true

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Serial.Port, err)
	}
	defer port.Close()
	if err := port.Flush(); err != nil {
		logger.WithError(err).Warn("Failed to flush serial input")
	}

	logger.WithField("port", cfg.Serial.Port).WithField("baud", cfg.Serial.Baud).Info("Monitoring serial port")

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	d := &frameDecoder{
		mode:   witproto.ModeFromOutput(monitorOutputMode),
		outlet: newStdoutPrinter(cfg),
		logger: logger,
	}
	return d.stream(ctx, port, true)
}
