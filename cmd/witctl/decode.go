package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/witproto"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [hex-payload...]",
	Short: "Decode captured frames offline",
	Long: `Decode WIT frames without a sensor.

Each argument is one notification payload in hex (spaces and colons are
ignored). With --file the input is a raw byte stream, such as a UART
capture, which is cut into frames on the 0x55 start marker.`,
	Example: `  witctl decode "55 61 00 00 00 00 00 08 00 00 00 00 00 00 00 00 00 00 00 00"
  witctl decode --file capture.bin --output-mode 2 --format json`,
	RunE: runDecode,
}

var (
	decodeFile       string
	decodeOutputMode int
)

func init() {
	decodeCmd.Flags().StringVar(&decodeFile, "file", "", "Raw byte stream to decode ('-' for stdin)")
	decodeCmd.Flags().IntVar(&decodeOutputMode, "output-mode", 0, "Output mode the frames were recorded with (0..3)")
}

// frameDecoder turns payloads or byte streams into outputs.
type frameDecoder struct {
	mode   witproto.Mode
	legacy bool
	outlet sensor.Outlet
	logger *logrus.Logger

	frames  int
	ignored int
}

// payload decodes one notification-sized frame.
func (d *frameDecoder) payload(p []byte) {
	var events []witproto.Event
	if d.legacy {
		events = witproto.DecodeLegacy(p)
	} else {
		events = witproto.Decode(p, d.mode)
	}
	if len(events) == 0 {
		d.ignored++
		d.logger.WithField("data", witproto.Hex(p)).Debug("Ignoring unrecognised frame")
		return
	}
	d.frames++
	for _, ev := range events {
		d.outlet.Emit(sensor.EventOutput(ev))
	}
}

// stream reads r until EOF, or until ctx is done when follow is set.
func (d *frameDecoder) stream(ctx context.Context, r io.Reader, follow bool) error {
	reasm := witproto.NewReassembler(witproto.DefaultReassemblerCapacity)
	buf := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = reasm.Write(buf[:n])
			for _, frame := range reasm.Frames() {
				d.payload(frame)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF) && follow:
		case errors.Is(err, io.EOF):
			d.logger.WithFields(logrus.Fields{
				"frames":  d.frames,
				"skipped": reasm.Skipped(),
				"dropped": reasm.Dropped(),
			}).Debug("End of stream")
			return nil
		default:
			return err
		}
	}
}

func parseHexPayload(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeFile == "" && len(args) == 0 {
		return errors.New("provide hex payloads or --file")
	}
	payloads := make([][]byte, 0, len(args))
	for _, arg := range args {
		p, err := parseHexPayload(arg)
		if err != nil {
			return err
		}
		payloads = append(payloads, p)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	d := &frameDecoder{
		mode:   witproto.ModeFromOutput(decodeOutputMode),
		legacy: cfg.LegacyFrames,
		outlet: NewPrinter(cmd.OutOrStdout(), cfg.OutputFormat, 0, false),
		logger: logger,
	}

	for _, p := range payloads {
		d.payload(p)
	}

	if decodeFile != "" {
		in := cmd.InOrStdin()
		if decodeFile != "-" {
			f, err := os.Open(decodeFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		if err := d.stream(cmd.Context(), in, false); err != nil {
			return err
		}
	}

	if d.frames == 0 {
		return ErrNoFrames
	}
	return nil
}
