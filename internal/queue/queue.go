// Package queue carries values from producer goroutines (BLE callbacks) to a
// single consumer context without ever blocking the producer.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is used when a queue is created with capacity 0.
	DefaultCapacity uint32 = 1024

	// MaxCapacity guards against accidental misconfiguration.
	MaxCapacity uint32 = 1024 * 1024
)

// Metrics provides lock-free counters for a Queue
type Metrics struct {
	Pushed   int64 // values accepted by Push
	Drained  int64 // values handed to a consumer by Drain
	Dropped  int64 // values refused because the queue was full
	Rejected int64 // values pushed after Close
	Released int64 // values discarded at teardown
}

func (m *Metrics) add(field *int64, n int64) {
	atomic.AddInt64(field, n)
}

// Snapshot returns a consistent-enough copy of the counters for reporting.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Pushed:   atomic.LoadInt64(&m.Pushed),
		Drained:  atomic.LoadInt64(&m.Drained),
		Dropped:  atomic.LoadInt64(&m.Dropped),
		Rejected: atomic.LoadInt64(&m.Rejected),
		Released: atomic.LoadInt64(&m.Released),
	}
}

// Queue is a bounded FIFO. Push may be called from any goroutine; Drain and
// Discard must only be called from the single consumer context.
//
// When the ring is full the value being pushed is dropped; values already
// queued are never evicted. Drops are logged and counted rather than reported.
type Queue[T any] struct {
	name    string
	buffer  mpmc.RingBuffer[T]
	ready   chan struct{}
	logger  *logrus.Logger
	metrics Metrics

	pending   atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a queue. A capacity of 0 selects DefaultCapacity.
func New[T any](name string, capacity uint32, logger *logrus.Logger) (*Queue[T], error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("queue %q: capacity %d exceeds maximum %d", name, capacity, MaxCapacity)
	}
	// the ring keeps one slot empty
	capacity++
	if logger == nil {
		logger = logrus.New()
	}

	return &Queue[T]{
		name:   name,
		buffer: mpmc.New[T](capacity),
		ready:  make(chan struct{}, 1),
		logger: logger,
	}, nil
}

// Push enqueues v and wakes the consumer. It never blocks and never calls
// back into consumer code. It reports false when v was not accepted.
func (q *Queue[T]) Push(v T) bool {
	if q.closed.Load() {
		q.metrics.add(&q.metrics.Rejected, 1)
		return false
	}

	if err := q.buffer.Enqueue(v); err != nil {
		q.drop(err)
		return false
	}

	q.metrics.add(&q.metrics.Pushed, 1)
	q.pending.Add(1)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Offer is Push that leaves at least reserve slots free. Low-priority
// producers use it so a burst from them cannot starve Push callers.
func (q *Queue[T]) Offer(v T, reserve int) bool {
	if q.Free() <= reserve && !q.closed.Load() {
		q.drop(mpmc.ErrQueueFull)
		return false
	}
	return q.Push(v)
}

func (q *Queue[T]) drop(err error) {
	dropped := atomic.AddInt64(&q.metrics.Dropped, 1)
	entry := q.logger.WithFields(logrus.Fields{
		"queue":   q.name,
		"dropped": dropped,
	})
	if errors.Is(err, mpmc.ErrQueueFull) {
		entry.Warn("Queue full: event dropped")
		return
	}
	entry.WithError(err).Warn("Dropped event: enqueue failed")
}

// Ready is signalled at least once after values become available.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Drain hands every value queued so far to fn in FIFO order and returns how
// many were handled. Values pushed while draining are left for the next cycle.
func (q *Queue[T]) Drain(fn func(T)) int {
	return q.consume(q.Len(), fn, &q.metrics.Drained)
}

// Discard releases every queued value through release (which may be nil).
// Used at teardown so each payload is released exactly once.
func (q *Queue[T]) Discard(release func(T)) int {
	if release == nil {
		release = func(T) {}
	}
	return q.consume(-1, release, &q.metrics.Released)
}

func (q *Queue[T]) consume(limit int, fn func(T), counter *int64) int {
	n := 0
	for (limit < 0 || n < limit) && !q.buffer.IsEmpty() {
		v, err := q.buffer.Dequeue()
		if err != nil {
			break
		}
		q.pending.Add(-1)
		n++
		fn(v)
	}
	q.metrics.add(counter, int64(n))
	return n
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return int(max(q.pending.Load(), 0))
}

// Cap returns how many values the queue holds when full. The requested
// capacity may be rounded up by the ring.
func (q *Queue[T]) Cap() uint32 {
	return q.buffer.CapReal()
}

// Free returns how many more values fit before Push starts dropping.
func (q *Queue[T]) Free() int {
	return max(int(q.Cap())-q.Len(), 0)
}

// Close stops accepting values. Queued values stay available to Drain/Discard.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
	})
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	return q.closed.Load()
}

// Metrics returns a snapshot of the queue counters.
func (q *Queue[T]) Metrics() Metrics {
	return q.metrics.Snapshot()
}
