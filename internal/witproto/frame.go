package witproto

import "encoding/binary"

// Frame layout constants
const (
	FrameStart    byte = 0x55
	TypeStreaming byte = 0x61
	TypeRegister  byte = 0x71

	// MaxFrameLen bounds a single notification payload; longer payloads are not WIT frames.
	MaxFrameLen = 64

	StreamingFrameLen = 20
	RegisterFrameLen  = 6

	sampleWords = 9
)

// Register addresses
const (
	RegSave             byte = 0x00
	RegCalibrate        byte = 0x01
	RegRate             byte = 0x03
	RegBaud             byte = 0x04
	RegBandwidth        byte = 0x1F
	RegOrientation      byte = 0x23
	RegAxis             byte = 0x24
	RegRead             byte = 0x27
	RegVersion1         byte = 0x2E
	RegVersion2         byte = 0x2F
	RegTimeYearMonth    byte = 0x30
	RegTimeDayHour      byte = 0x31
	RegTimeMinuteSecond byte = 0x32
	RegTimeMillisecond  byte = 0x33
	RegMagnetic         byte = 0x3A
	RegTemperature      byte = 0x40
	RegQuaternion       byte = 0x51
	RegBattery          byte = 0x64
	RegKey              byte = 0x69
	RegOutputMode       byte = 0x96
)

const (
	accelFullScale = 16.0
	gyroFullScale  = 2000.0
	angleFullScale = 180.0
	wordScale      = 32768.0
	magneticScale  = 150.0
)

// Mode selects how the first two word groups and the angle pair of a
// streaming frame are interpreted.
type Mode struct {
	UseDisplacementSpeed bool
	UseTimestamp         bool
}

// ModeFromOutput derives the decode mode from an output-mode (AGPVSEL) value.
// Values outside 0..3 are clamped.
func ModeFromOutput(outputMode int) Mode {
	outputMode = ClampOutputMode(outputMode)
	return Mode{
		UseDisplacementSpeed: outputMode&1 != 0,
		UseTimestamp:         (outputMode>>1)&1 != 0,
	}
}

// OutputMode is the inverse of ModeFromOutput.
func (m Mode) OutputMode() int {
	v := 0
	if m.UseDisplacementSpeed {
		v |= 1
	}
	if m.UseTimestamp {
		v |= 2
	}
	return v
}

// FrameType is the result of classifying a raw frame
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameStreaming
	FrameRegister
)

// Classify reports which reader applies to a frame. Frames that fail the
// marker or length checks are FrameUnknown.
func Classify(frame []byte) FrameType {
	if len(frame) < 2 || len(frame) > MaxFrameLen || frame[0] != FrameStart {
		return FrameUnknown
	}
	switch {
	case frame[1] == TypeStreaming && len(frame) >= StreamingFrameLen:
		return FrameStreaming
	case frame[1] == TypeRegister && len(frame) >= RegisterFrameLen:
		return FrameRegister
	default:
		return FrameUnknown
	}
}

// Sample holds the nine raw words of a streaming frame. It can be parsed
// without knowing the decode mode and interpreted later.
type Sample [sampleWords]int16

// ParseSample extracts the raw words of a streaming frame.
func ParseSample(frame []byte) (Sample, bool) {
	var s Sample
	if Classify(frame) != FrameStreaming {
		return s, false
	}
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(frame[2+2*i:]))
	}
	return s, true
}

// Events converts the raw words to physical units under the given mode.
func (s Sample) Events(mode Mode) []Event {
	out := make([]Event, 0, 4)
	if mode.UseDisplacementSpeed {
		out = append(out,
			Displacement{Vector3{float64(s[0]), float64(s[1]), float64(s[2])}},
			Velocity{Vector3{float64(s[3]), float64(s[4]), float64(s[5])}},
		)
	} else {
		out = append(out,
			Acceleration{scaled(s[0], s[1], s[2], accelFullScale)},
			AngularRate{scaled(s[3], s[4], s[5], gyroFullScale)},
		)
	}

	yaw := scale(s[8], angleFullScale)
	if mode.UseTimestamp {
		out = append(out,
			Timestamp{Hi: uint16(s[7]), Lo: uint16(s[6])},
			Orientation{Vector3{0, 0, yaw}},
		)
	} else {
		out = append(out, Orientation{Vector3{
			scale(s[6], angleFullScale),
			scale(s[7], angleFullScale),
			yaw,
		}})
	}
	return out
}

// DecodeRegister decodes a register-page response. Unknown registers and
// pages too short for their register are rejected.
func DecodeRegister(frame []byte) (Event, bool) {
	if Classify(frame) != FrameRegister {
		return nil, false
	}
	reg := frame[2]
	word := func(i int) uint16 { return binary.LittleEndian.Uint16(frame[4+2*i:]) }

	switch reg {
	case RegBattery:
		raw := word(0)
		return Battery{Volts: float64(raw) / 100, Percent: BatteryPercent(raw)}, true
	case RegTemperature:
		return Temperature{Celsius: float64(int16(word(0))) / 100}, true
	case RegMagnetic:
		if len(frame) < 10 {
			return nil, false
		}
		return MagneticField{Vector3{
			float64(int16(word(0))) / magneticScale,
			float64(int16(word(1))) / magneticScale,
			float64(int16(word(2))) / magneticScale,
		}}, true
	case RegQuaternion:
		if len(frame) < 12 {
			return nil, false
		}
		return Quaternion{
			W: float64(int16(word(0))) / wordScale,
			X: float64(int16(word(1))) / wordScale,
			Y: float64(int16(word(2))) / wordScale,
			Z: float64(int16(word(3))) / wordScale,
		}, true
	case RegVersion1, RegVersion2:
		return FirmwareVersion{Register: reg, Value: word(0)}, true
	case RegTimeYearMonth, RegTimeDayHour, RegTimeMinuteSecond, RegTimeMillisecond:
		return DeviceTime{Field: TimeField(reg), Value: word(0)}, true
	default:
		return nil, false
	}
}

// Decode classifies a frame and returns its events. Invalid or unrecognised
// frames yield nil.
func Decode(frame []byte, mode Mode) []Event {
	switch Classify(frame) {
	case FrameStreaming:
		s, _ := ParseSample(frame)
		return s.Events(mode)
	case FrameRegister:
		if ev, ok := DecodeRegister(frame); ok {
			return []Event{ev}
		}
	}
	return nil
}

func scale(w int16, fullScale float64) float64 {
	return float64(w) / wordScale * fullScale
}

func scaled(x, y, z int16, fullScale float64) Vector3 {
	return Vector3{scale(x, fullScale), scale(y, fullScale), scale(z, fullScale)}
}
