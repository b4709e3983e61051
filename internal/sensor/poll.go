package sensor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/witproto"
)

// PollType selects the register page requested by the poll timer
type PollType int

const (
	PollNone PollType = iota
	PollQuaternion
	PollMagnetic
	PollBattery
	PollTemperature
)

// MaxPollRate caps the poll frequency in Hz.
const MaxPollRate = 50.0

var pollNames = map[PollType]string{
	PollQuaternion:  "quat",
	PollMagnetic:    "mag",
	PollBattery:     "battery",
	PollTemperature: "temp",
}

func (p PollType) String() string {
	if name, ok := pollNames[p]; ok {
		return name
	}
	return "none"
}

// Register returns the register page read for this poll type.
func (p PollType) Register() byte {
	switch p {
	case PollQuaternion:
		return witproto.RegQuaternion
	case PollMagnetic:
		return witproto.RegMagnetic
	case PollBattery:
		return witproto.RegBattery
	case PollTemperature:
		return witproto.RegTemperature
	}
	return 0
}

// ParsePollType accepts quat, mag, battery and temp.
func ParsePollType(s string) (PollType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range pollNames {
		if name == s {
			return p, nil
		}
	}
	return PollNone, fmt.Errorf("poll type must be one of: quat, mag, battery, temp (got %q)", s)
}

// PollState describes the active poll. PeriodMs is zero when polling is off.
type PollState struct {
	Type     PollType
	PeriodMs int
}

// Active reports whether a poll period is configured.
func (p PollState) Active() bool { return p.PeriodMs > 0 }

// PollPeriod converts a frequency into the poll period in milliseconds:
// the frequency is capped at MaxPollRate and the period is at least 1 ms.
func PollPeriod(hz float64) int {
	hz = math.Min(hz, MaxPollRate)
	return max(1, int(math.Round(1000/hz)))
}

// Polling returns the current poll state.
func (s *Sensor) Polling() PollState { return s.poll }

// Poll requests register kind every 1/hz seconds while connected. hz <= 0
// stops polling whatever the kind.
func (s *Sensor) Poll(kind PollType, hz float64) {
	if hz <= 0 || math.IsNaN(hz) {
		s.stopPoll(false)
		s.emit(status(OutPoll))
		return
	}
	if kind == PollNone {
		s.notice("poll requires a type (quat, mag, battery, temp)")
		return
	}
	if !s.requireConnected() {
		return
	}

	period := PollPeriod(hz)
	s.stopTimer(&s.pollTimer)
	s.poll = PollState{Type: kind, PeriodMs: period}
	s.schedulePoll()

	s.logger.WithFields(logrus.Fields{
		"type":      kind.String(),
		"period_ms": period,
	}).Debug("Polling started")
	s.emit(status(OutPoll, kind.String(), 1000/float64(period), period))
}

func (s *Sensor) pollInterval() time.Duration {
	return time.Duration(s.poll.PeriodMs) * time.Millisecond
}

func (s *Sensor) schedulePoll() {
	s.pollTimer = s.sched.After(s.pollInterval(), s.pollTick)
}

func (s *Sensor) pollTick() {
	s.pollTimer = nil
	if !s.poll.Active() {
		return
	}
	if s.link != linkConnected {
		s.logger.Debug("Polling stopped: device disconnected")
		s.poll = PollState{}
		return
	}
	s.write(witproto.ReadRegister(s.poll.Type.Register()))
	s.schedulePoll()
}

// stopPoll clears the poll period and its timer. announce emits a bare
// poll output so the host sees polling has stopped.
func (s *Sensor) stopPoll(announce bool) {
	wasActive := s.poll.Active() || s.pollTimer != nil
	s.stopTimer(&s.pollTimer)
	s.poll = PollState{}
	if announce && wasActive {
		s.emit(status(OutPoll))
	}
}
