package sensor

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/loop"
	"github.com/srg/witctl/internal/witproto"
)

// step is one write of a command sequence, run delay after the previous one.
type step struct {
	delay time.Duration
	run   func()
}

type sequence struct {
	timer     loop.Timer
	cancelled bool
}

// runSequence schedules steps on the consumer context. The sequence is
// abandoned as soon as the link is no longer connected.
func (s *Sensor) runSequence(steps ...step) {
	seq := &sequence{}
	s.sequences[seq] = struct{}{}

	var next func(i int)
	next = func(i int) {
		if seq.cancelled || i >= len(steps) {
			delete(s.sequences, seq)
			return
		}
		exec := func() {
			seq.timer = nil
			if seq.cancelled || s.link != linkConnected {
				delete(s.sequences, seq)
				return
			}
			steps[i].run()
			next(i + 1)
		}
		if steps[i].delay <= 0 {
			exec()
			return
		}
		seq.timer = s.sched.After(steps[i].delay, exec)
	}
	next(0)
}

func (s *Sensor) cancelSequences() {
	for seq := range s.sequences {
		seq.cancelled = true
		if seq.timer != nil {
			seq.timer.Stop()
			seq.timer = nil
		}
		delete(s.sequences, seq)
	}
}

// write sends a 5-byte command without response.
func (s *Sensor) write(cmd witproto.Command) {
	s.writeBytes(cmd.Bytes(), false)
}

func (s *Sensor) writeBytes(data []byte, withResponse bool) {
	var err error
	if withResponse {
		err = s.transport.WriteRequest(data)
	} else {
		err = s.transport.Write(data)
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"data":  witproto.Hex(data),
			"error": err,
		}).Warn("Failed to write command")
		return
	}
	if s.logger.IsLevelEnabled(logrus.TraceLevel) {
		s.logger.WithField("data", witproto.Hex(data)).Trace("Command written")
	}
}
