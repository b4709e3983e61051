package testutils

import (
	"sort"
	"time"

	"github.com/srg/witctl/internal/loop"
)

// ManualScheduler is a loop.Scheduler driven by Advance. Timers run on the
// goroutine that calls Advance, in due-time order.
type ManualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManualScheduler returns a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// After implements loop.Scheduler.
func (m *ManualScheduler) After(d time.Duration, fn func()) loop.Timer {
	m.seq++
	t := &manualTimer{at: m.now + max(d, 0), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (m *ManualScheduler) Now() time.Duration {
	return m.now
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *ManualScheduler) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every timer that falls
// due, including timers scheduled by timers fired during the call.
func (m *ManualScheduler) Advance(d time.Duration) {
	deadline := m.now + d
	for {
		next := m.nextDue(deadline)
		if next == nil {
			break
		}
		m.now = next.at
		next.fired = true
		next.fn()
	}
	m.now = deadline
	m.compact()
}

func (m *ManualScheduler) nextDue(deadline time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.fired && !t.stopped && t.at <= deadline {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (m *ManualScheduler) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}
