package sensor

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/witproto"
)

// requireConnected reports a notice and returns false unless a link is up.
func (s *Sensor) requireConnected() bool {
	if s.link == linkConnected {
		return true
	}
	s.notice(NoticeNotConnected)
	return false
}

// unlocked writes the key command and runs fn after the settle delay.
func (s *Sensor) unlocked(fn func()) {
	s.runSequence(
		step{0, func() { s.write(witproto.Unlock) }},
		step{s.cfg.UnlockSettle, fn},
	)
}

// SetRate quantizes hz to a supported output rate and writes it.
func (s *Sensor) SetRate(hz float64) {
	if !s.requireConnected() {
		return
	}
	code, clamped := witproto.RateCode(hz)
	s.logger.WithFields(logrus.Fields{
		"requested": hz,
		"code":      fmt.Sprintf("0x%02X", code),
	}).Debug("Setting output rate")

	s.unlocked(func() {
		s.write(witproto.SetRate(code))
		s.emit(status(OutRate, clamped, int(code)))
	})
}

// SetBandwidth selects the filter bandwidth nearest below hz.
func (s *Sensor) SetBandwidth(hz float64) {
	if !s.requireConnected() {
		return
	}
	code, nominal := witproto.BandwidthCode(hz)
	s.logger.WithFields(logrus.Fields{
		"requested": hz,
		"nominal":   nominal,
	}).Debug("Setting bandwidth")

	s.unlocked(func() {
		s.write(witproto.SetBandwidth(code))
		s.emit(status(OutBandwidth, hz))
	})
}

// SetAxisMode selects 9-axis fusion for 9 and 6-axis for anything else.
func (s *Sensor) SetAxisMode(axes int) {
	if !s.requireConnected() {
		return
	}
	mode := witproto.AxisModeFrom(axes)
	s.unlocked(func() {
		s.write(witproto.SetAxis(mode))
		s.axis = mode
		s.emit(status(OutAxis, int(mode)))
	})
}

// SetOutputMode writes the output content register and switches the
// decode mode used for subsequent streaming frames.
func (s *Sensor) SetOutputMode(mode int) {
	if !s.requireConnected() {
		return
	}
	mode = witproto.ClampOutputMode(mode)
	s.unlocked(func() {
		s.write(witproto.SetOutputMode(mode))
		s.mode = witproto.ModeFromOutput(mode)
		s.emit(status(OutOutputMode, mode))
	})
}

// SetOrientation selects horizontal (0) or vertical (1) installation.
func (s *Sensor) SetOrientation(orientation int) {
	if !s.requireConnected() {
		return
	}
	orientation = max(0, min(orientation, 1))
	s.unlocked(func() {
		s.write(witproto.SetOrientation(orientation))
		s.emit(status(OutOrientation, orientation))
	})
}

// SetBaud writes the serial baud code of the module.
func (s *Sensor) SetBaud(code int) {
	if !s.requireConnected() {
		return
	}
	code = max(0, min(code, 255))
	s.logger.WithField("code", code).Info("Setting baud rate")
	s.unlocked(func() {
		s.write(witproto.SetBaud(code))
		s.emit(status(OutBaud, code))
	})
}

// Calibrate starts accelerometer calibration. The sensor must be kept still.
func (s *Sensor) Calibrate() {
	if !s.requireConnected() {
		return
	}
	s.unlocked(func() {
		s.logger.Info("Starting accelerometer calibration - keep sensor still")
		s.write(witproto.CalibrateAccel)
		s.emit(status(OutCalibrate, "accel"))
	})
}

// MagCalStart starts magnetometer calibration.
func (s *Sensor) MagCalStart() {
	if !s.requireConnected() {
		return
	}
	s.unlocked(func() {
		s.write(witproto.MagCalStart)
		s.emit(status(OutMagCal, "start"))
	})
}

// MagCalStop ends magnetometer calibration.
func (s *Sensor) MagCalStop() {
	if !s.requireConnected() {
		return
	}
	s.write(witproto.MagCalStop)
	s.emit(status(OutMagCal, "stop"))
}

// ZeroAngles makes the current roll and pitch the reference.
func (s *Sensor) ZeroAngles() {
	if !s.requireConnected() {
		return
	}
	s.write(witproto.ZeroAngles)
	s.emit(status(OutXYZero))
}

// ZeroZAxis resets the heading. The device only honours this with 6-axis
// fusion, so the axis mode is switched first.
func (s *Sensor) ZeroZAxis() {
	if !s.requireConnected() {
		return
	}
	s.runSequence(
		step{0, func() { s.write(witproto.Unlock) }},
		step{s.cfg.UnlockSettle, func() {
			s.write(witproto.SetAxis(witproto.Axis6))
			s.axis = witproto.Axis6
		}},
		step{s.cfg.UnlockSettle, func() {
			s.write(witproto.ZeroZAxis)
			s.emit(status(OutZZero))
		}},
	)
}

// SaveConfig persists the current configuration on the device.
func (s *Sensor) SaveConfig() {
	if !s.requireConnected() {
		return
	}
	s.logger.Info("Saving configuration")
	s.write(witproto.Save)
	s.emit(status(OutSave))
}

// RestoreConfig restores factory defaults.
func (s *Sensor) RestoreConfig() {
	if !s.requireConnected() {
		return
	}
	s.write(witproto.Restore)
	s.emit(status(OutRestore))
}

// ReadRegister requests a single register page. The answer arrives as a
// notification and is decoded like any other frame.
func (s *Sensor) ReadRegister(reg byte) {
	if !s.requireConnected() {
		return
	}
	s.write(witproto.ReadRegister(reg))
}

// ReadVersion requests both firmware version registers.
func (s *Sensor) ReadVersion() {
	s.readRegisters(witproto.RegVersion1, witproto.RegVersion2)
}

// ReadTime requests the four on-chip time registers.
func (s *Sensor) ReadTime() {
	s.readRegisters(witproto.RegTimeYearMonth, witproto.RegTimeDayHour, witproto.RegTimeMinuteSecond, witproto.RegTimeMillisecond)
}

func (s *Sensor) readRegisters(regs ...byte) {
	if !s.requireConnected() {
		return
	}
	steps := make([]step, 0, len(regs))
	for i, reg := range regs {
		delay := s.cfg.RegisterSpacing
		if i == 0 {
			delay = 0
		}
		steps = append(steps, step{delay, func() { s.write(witproto.ReadRegister(reg)) }})
	}
	s.runSequence(steps...)
}

// SetDeviceName renames the module and saves. The name is normalised to a
// "WT" prefix plus at most MaxNameSuffix characters.
func (s *Sensor) SetDeviceName(input string, variant witproto.NameVariant) {
	if !s.requireConnected() {
		return
	}
	if input == "" {
		s.notice("setname requires non-empty name")
		return
	}
	name, truncated := witproto.DeviceName(input)
	if !witproto.IsPrintableName(name) {
		s.notice("setname requires printable ASCII")
		return
	}
	if truncated {
		s.notice(fmt.Sprintf("setname truncated to %d chars: %s", witproto.MaxNameSuffix, name))
	}
	frame := witproto.RenameFrame(name, variant)

	s.logger.WithFields(logrus.Fields{
		"name":    name,
		"variant": int(variant),
		"frame":   witproto.Hex(frame),
	}).Info("Renaming device")

	s.runSequence(
		step{0, func() { s.write(witproto.Unlock) }},
		step{s.cfg.NameSettle, func() { s.writeBytes(frame, true) }},
		step{s.cfg.NameSaveDelay, func() {
			s.write(witproto.Save)
			s.emit(status(OutName, name))
		}},
	)
}
