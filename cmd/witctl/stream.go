package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/loop"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/pkg/config"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream [name|address]",
	Short: "Connect to a sensor and print decoded data",
	Long: `Connect to a WIT sensor and print its decoded stream until Ctrl+C.

Without an argument the first WIT device seen is used (or the configured
target). After the link is configured the optional settings below are
applied in order.`,
	Example: `  witctl stream
  witctl stream WT901BLE68 --rate 50 --output-mode 2
  witctl stream --poll battery --poll-rate 1 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

var (
	streamRate       float64
	streamBandwidth  float64
	streamOutputMode int
	streamAxes       int
	streamPoll       string
	streamPollRate   float64
)

// ErrConnectionLost indicates the link dropped while streaming.
var ErrConnectionLost = errors.New("connection lost")

func init() {
	streamCmd.Flags().Float64Var(&streamRate, "rate", 0, "Output rate in Hz (0.1..200)")
	streamCmd.Flags().Float64Var(&streamBandwidth, "bandwidth", 0, "Filter bandwidth in Hz (5..256)")
	streamCmd.Flags().IntVar(&streamOutputMode, "output-mode", -1, "Output mode 0..3 (bit 0 displacement/speed, bit 1 timestamp)")
	streamCmd.Flags().IntVar(&streamAxes, "axes", 0, "Fusion axes (6 or 9)")
	streamCmd.Flags().StringVar(&streamPoll, "poll", "", "Register to poll (quat, mag, battery, temp)")
	streamCmd.Flags().Float64Var(&streamPollRate, "poll-rate", 1, "Poll rate in Hz (max 50)")
	streamCmd.Flags().String("target", "", "Sensor name or address (overrides config)")
}

// streamOptions are the setters applied once the link is configured.
type streamOptions struct {
	rate       float64
	bandwidth  float64
	outputMode int
	axes       int
	poll       sensor.PollType
	pollRate   float64
}

// steps returns one call per requested setting.
func (o streamOptions) steps() []func(*sensor.Sensor) {
	var steps []func(*sensor.Sensor)
	if o.axes != 0 {
		steps = append(steps, func(s *sensor.Sensor) { s.SetAxisMode(o.axes) })
	}
	if o.outputMode >= 0 {
		steps = append(steps, func(s *sensor.Sensor) { s.SetOutputMode(o.outputMode) })
	}
	if o.rate > 0 {
		steps = append(steps, func(s *sensor.Sensor) { s.SetRate(o.rate) })
	}
	if o.bandwidth > 0 {
		steps = append(steps, func(s *sensor.Sensor) { s.SetBandwidth(o.bandwidth) })
	}
	if o.poll != sensor.PollNone {
		steps = append(steps, func(s *sensor.Sensor) { s.Poll(o.poll, o.pollRate) })
	}
	return steps
}

func runStream(cmd *cobra.Command, args []string) error {
	opts := streamOptions{
		rate:       streamRate,
		bandwidth:  streamBandwidth,
		outputMode: streamOutputMode,
		axes:       streamAxes,
		pollRate:   streamPollRate,
	}
	if streamPoll != "" {
		kind, err := sensor.ParsePollType(streamPoll)
		if err != nil {
			return err
		}
		opts.poll = kind
	}
	if opts.axes != 0 && opts.axes != 6 && opts.axes != 9 {
		return fmt.Errorf("invalid --axes %d: must be 6 or 9", opts.axes)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	target := cfg.Target
	if len(args) == 1 {
		target = args[0]
	}
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var sess *session
	connected := false
	outlet := &tapOutlet{next: newStdoutPrinter(cfg)}
	outlet.tap = func(o sensor.Output) {
		if o.Name != sensor.OutConnected {
			return
		}
		switch {
		case flag(o, 1) && !connected:
			connected = true
			sess.applyAfterConfigure(opts.steps())
		case flag(o, 0) && connected:
			cancel(ErrConnectionLost)
		}
	}

	sess, err = newSession(cfg, outlet, logger)
	if err != nil {
		return err
	}

	// Give up if no link appears within one scan plus one connect attempt.
	deadline := cfg.ScanTimeout + cfg.ConnectTimeout
	err = sess.run(ctx, func(s *sensor.Sensor) {
		s.Connect(target)
		if deadline > 0 {
			sess.loop.After(deadline, func() {
				if !s.Connected() {
					cancel(ErrConnectFailed)
				}
			})
		}
	}, nil)

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// applyAfterConfigure runs steps after the post-connect configuration has
// been written.
func (s *session) applyAfterConfigure(steps []func(*sensor.Sensor)) {
	calls := make([]func(), len(steps))
	for i, step := range steps {
		calls[i] = func() { step(s.sensor) }
	}
	scheduleSteps(s.loop, s.cfg, s.sensor.Connected, calls)
}

// scheduleSteps spaces calls by one unlocked write each, starting once the
// post-connect sequence is done. Calls are skipped if the link is gone.
func scheduleSteps(sched loop.Scheduler, cfg *config.Config, connected func() bool, calls []func()) {
	settle := cfg.UnlockSettle + 3*cfg.ConfigSpacing + 50*time.Millisecond
	spacing := cfg.UnlockSettle + cfg.ConfigSpacing
	for i, call := range calls {
		sched.After(settle+time.Duration(i)*spacing, func() {
			if connected() {
				call()
			}
		})
	}
}
