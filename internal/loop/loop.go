// Package loop provides the single consumer execution context. Everything
// that mutates sensor state or produces output runs on the goroutine that
// calls Run, one task at a time.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/groutine"
	"github.com/srg/witctl/internal/queue"
)

var (
	// ErrClosed is returned when work is submitted to a stopped loop.
	ErrClosed = errors.New("loop closed")
	// ErrBusy is returned when the task queue is full.
	ErrBusy = errors.New("loop busy: task queue full")
)

// Timer is a cancellable scheduled task
type Timer interface {
	// Stop prevents the task from running. It reports whether the call
	// stopped the task before it ran.
	Stop() bool
}

// Scheduler runs fn on the consumer context after d without blocking the caller.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// Source is a producer queue drained on the consumer context.
type Source interface {
	Ready() <-chan struct{}
	Drain()
}

// Loop is a cooperative scheduler
type Loop struct {
	tasks   *queue.Queue[func()]
	sources []Source
	wake    chan struct{}
	tick    time.Duration
	logger  *logrus.Logger

	running atomic.Bool
	mu      sync.Mutex
}

// New creates a loop. tick, when positive, drains sources periodically even
// without a ready signal.
func New(taskCapacity uint32, tick time.Duration, logger *logrus.Logger) (*Loop, error) {
	if logger == nil {
		logger = logrus.New()
	}
	tasks, err := queue.New[func()]("loop-tasks", taskCapacity, logger)
	if err != nil {
		return nil, err
	}
	return &Loop{
		tasks:  tasks,
		wake:   make(chan struct{}, 1),
		tick:   tick,
		logger: logger,
	}, nil
}

// Attach registers a source. Sources must be attached before Run.
func (l *Loop) Attach(src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, src)
}

// Post queues fn to run on the consumer context. Safe from any goroutine.
// It reports false when fn was refused because the loop is closed or full.
func (l *Loop) Post(fn func()) bool {
	return l.tasks.Push(fn)
}

func (l *Loop) postErr() error {
	if l.tasks.Closed() {
		return ErrClosed
	}
	return ErrBusy
}

// Do runs fn on the consumer context and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return l.postErr()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type loopTimer struct {
	t     *time.Timer
	fired atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	if lt.fired.Swap(true) {
		return false
	}
	if lt.t != nil {
		lt.t.Stop()
	}
	return true
}

// After implements Scheduler. The timer goroutine only posts; fn itself runs
// on the consumer context, and a Stop issued there wins over a pending post.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		posted := l.Post(func() {
			if lt.fired.Swap(true) {
				return
			}
			fn()
		})
		if !posted && !l.tasks.Closed() {
			l.logger.WithField("delay", d).Warn("Timer dropped: task queue full")
		}
	})
	return lt
}

// Run executes tasks and drains sources until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("loop already running")
	}
	defer l.running.Store(false)

	l.mu.Lock()
	sources := append([]Source(nil), l.sources...)
	l.mu.Unlock()

	for i, src := range sources {
		l.forward(ctx, i, src)
	}

	var tickC <-chan time.Time
	if l.tick > 0 {
		ticker := time.NewTicker(l.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.tasks.Ready():
		case <-l.wake:
		case <-tickC:
		}
		l.cycle(sources)
		if l.tasks.Closed() && l.tasks.Len() == 0 {
			return nil
		}
	}
}

// RunOnce performs a single cycle on the calling goroutine.
func (l *Loop) RunOnce() {
	l.mu.Lock()
	sources := append([]Source(nil), l.sources...)
	l.mu.Unlock()
	l.cycle(sources)
}

func (l *Loop) cycle(sources []Source) {
	l.tasks.Drain(func(fn func()) { fn() })
	for _, src := range sources {
		src.Drain()
	}
}

func (l *Loop) forward(ctx context.Context, i int, src Source) {
	groutine.Go(ctx, "loop-source", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-src.Ready():
				select {
				case l.wake <- struct{}{}:
				default:
				}
			}
		}
	})
	l.logger.WithField("source", i).Debug("Attached event source")
}

// Close stops accepting tasks; Run returns after the remaining tasks ran.
func (l *Loop) Close() {
	l.tasks.Close()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
