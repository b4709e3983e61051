package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/loop"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/transport"
	"github.com/srg/witctl/internal/transport/goble"
	"github.com/srg/witctl/pkg/config"
)

// loopTick drains the sensor queue even if a ready signal was coalesced away.
const loopTick = 100 * time.Millisecond

// session owns the consumer loop, the BLE transport and the sensor on top.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	loop    *loop.Loop
	sensor  *sensor.Sensor
	printer *Printer
	breaker *transport.BreakerTransport
}

// newSession wires loop, goble transport, connect breaker and sensor.
func newSession(cfg *config.Config, outlet sensor.Outlet, logger *logrus.Logger) (*session, error) {
	lp, err := loop.New(cfg.TaskCapacity, loopTick, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event loop: %w", err)
	}

	breaker := transport.NewBreakerTransport(goble.New(logger), cfg.Breaker, logger)

	s, err := sensor.New(breaker, lp, outlet, cfg.SensorConfig(), logger)
	if err != nil {
		_ = breaker.Close()
		return nil, fmt.Errorf("failed to create sensor: %w", err)
	}
	lp.Attach(s)

	sess := &session{
		cfg:     cfg,
		logger:  logger,
		loop:    lp,
		sensor:  s,
		breaker: breaker,
	}
	switch o := outlet.(type) {
	case *Printer:
		sess.printer = o
	case *tapOutlet:
		sess.printer, _ = o.next.(*Printer)
	}
	return sess, nil
}

// run executes start on the consumer context, then serves the loop until
// ctx is done. finish runs on the same goroutine once the loop stopped,
// before the sensor is closed.
func (s *session) run(ctx context.Context, start, finish func(*sensor.Sensor)) error {
	if start != nil {
		s.loop.Post(func() { start(s.sensor) })
	}
	err := s.loop.Run(ctx)

	if finish != nil {
		finish(s.sensor)
	}

	if cerr := s.sensor.Close(); cerr != nil {
		s.logger.WithError(cerr).Warn("Sensor close failed")
	}
	s.loop.Close()

	m := s.sensor.QueueMetrics()
	fields := logrus.Fields{"pushed": m.Pushed, "dropped": m.Dropped, "released": m.Released}
	if s.printer != nil {
		fields["suppressed"] = s.printer.Suppressed()
	}
	s.logger.WithFields(fields).Debug("Session finished")

	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// tapOutlet forwards every output and lets the command react to it.
type tapOutlet struct {
	next sensor.Outlet
	tap  func(sensor.Output)
}

func (t *tapOutlet) Emit(o sensor.Output) {
	t.next.Emit(o)
	if t.tap != nil {
		t.tap(o)
	}
}

// flag reports whether an output's first argument is the integer v.
func flag(o sensor.Output, v int) bool {
	if len(o.Args) == 0 {
		return false
	}
	n, ok := o.Args[0].(int)
	return ok && n == v
}
