package witproto

import "fmt"

// Kind names a decoded event on the outward interface
type Kind string

const (
	KindAcceleration Kind = "accel"
	KindAngularRate  Kind = "gyro"
	KindOrientation  Kind = "angle"
	KindTimestamp    Kind = "timestamp"
	KindDisplacement Kind = "disp"
	KindVelocity     Kind = "speed"
	KindQuaternion   Kind = "quat"
	KindBattery      Kind = "battery"
	KindTemperature  Kind = "temp"
	KindMagnetic     Kind = "mag"
	KindVersion      Kind = "version"
	KindDeviceTime   Kind = "time"
)

// Channel selects which outlet an event belongs to.
type Channel int

const (
	DataChannel Channel = iota
	StatusChannel
)

func (c Channel) String() string {
	if c == StatusChannel {
		return "status"
	}
	return "data"
}

// Event is a decoded sensor or register event carrying values in physical units.
// The set of implementations is closed to this package.
type Event interface {
	Kind() Kind
	Channel() Channel
	Values() []float64
	isEvent()
}

// Vector3 is an x/y/z triple shared by the three-axis events
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) values() []float64 { return []float64{v.X, v.Y, v.Z} }

// Acceleration in g
type Acceleration struct{ Vector3 }

// AngularRate in degrees per second
type AngularRate struct{ Vector3 }

// Orientation is roll/pitch/yaw in degrees
type Orientation struct{ Vector3 }

// Displacement in millimetres
type Displacement struct{ Vector3 }

// Velocity in millimetres per second
type Velocity struct{ Vector3 }

// MagneticField in microtesla
type MagneticField struct{ Vector3 }

// Timestamp is the device millisecond counter split into two 16-bit words
type Timestamp struct {
	Hi, Lo uint16
}

// Millis returns the 32-bit millisecond counter.
func (t Timestamp) Millis() uint32 {
	return uint32(t.Hi)<<16 | uint32(t.Lo)
}

// Quaternion is a unit quaternion
type Quaternion struct {
	W, X, Y, Z float64
}

// Battery reports pack voltage and the stepped charge estimate
type Battery struct {
	Volts   float64
	Percent int
}

// Temperature in degrees Celsius
type Temperature struct {
	Celsius float64
}

// FirmwareVersion is one of the two version registers
type FirmwareVersion struct {
	Register uint8
	Value    uint16
}

// TimeField identifies which part of the device clock a DeviceTime carries
type TimeField uint8

const (
	TimeYearMonth    TimeField = TimeField(RegTimeYearMonth)
	TimeDayHour      TimeField = TimeField(RegTimeDayHour)
	TimeMinuteSecond TimeField = TimeField(RegTimeMinuteSecond)
	TimeMillisecond  TimeField = TimeField(RegTimeMillisecond)
)

func (f TimeField) String() string {
	switch f {
	case TimeYearMonth:
		return "yymm"
	case TimeDayHour:
		return "ddh"
	case TimeMinuteSecond:
		return "mmss"
	case TimeMillisecond:
		return "ms"
	default:
		return fmt.Sprintf("0x%02X", uint8(f))
	}
}

// DeviceTime is one packed field of the on-device clock
type DeviceTime struct {
	Field TimeField
	Value uint16
}

func (Acceleration) Kind() Kind  { return KindAcceleration }
func (AngularRate) Kind() Kind   { return KindAngularRate }
func (Orientation) Kind() Kind   { return KindOrientation }
func (Displacement) Kind() Kind  { return KindDisplacement }
func (Velocity) Kind() Kind      { return KindVelocity }
func (MagneticField) Kind() Kind { return KindMagnetic }
func (Timestamp) Kind() Kind     { return KindTimestamp }
func (Quaternion) Kind() Kind    { return KindQuaternion }
func (Battery) Kind() Kind       { return KindBattery }
func (Temperature) Kind() Kind   { return KindTemperature }
func (FirmwareVersion) Kind() Kind {
	return KindVersion
}
func (DeviceTime) Kind() Kind { return KindDeviceTime }

func (Acceleration) Channel() Channel    { return DataChannel }
func (AngularRate) Channel() Channel     { return DataChannel }
func (Orientation) Channel() Channel     { return DataChannel }
func (Displacement) Channel() Channel    { return DataChannel }
func (Velocity) Channel() Channel        { return DataChannel }
func (MagneticField) Channel() Channel   { return DataChannel }
func (Timestamp) Channel() Channel       { return DataChannel }
func (Quaternion) Channel() Channel      { return DataChannel }
func (Battery) Channel() Channel         { return StatusChannel }
func (Temperature) Channel() Channel     { return StatusChannel }
func (FirmwareVersion) Channel() Channel { return StatusChannel }
func (DeviceTime) Channel() Channel      { return StatusChannel }

func (e Acceleration) Values() []float64  { return e.values() }
func (e AngularRate) Values() []float64   { return e.values() }
func (e Orientation) Values() []float64   { return e.values() }
func (e Displacement) Values() []float64  { return e.values() }
func (e Velocity) Values() []float64      { return e.values() }
func (e MagneticField) Values() []float64 { return e.values() }
func (e Timestamp) Values() []float64     { return []float64{float64(e.Hi), float64(e.Lo)} }
func (e Quaternion) Values() []float64    { return []float64{e.W, e.X, e.Y, e.Z} }
func (e Battery) Values() []float64       { return []float64{e.Volts, float64(e.Percent)} }
func (e Temperature) Values() []float64   { return []float64{e.Celsius} }
func (e FirmwareVersion) Values() []float64 {
	return []float64{float64(e.Register), float64(e.Value)}
}
func (e DeviceTime) Values() []float64 { return []float64{float64(e.Field), float64(e.Value)} }

func (Acceleration) isEvent()    {}
func (AngularRate) isEvent()     {}
func (Orientation) isEvent()     {}
func (Displacement) isEvent()    {}
func (Velocity) isEvent()        {}
func (MagneticField) isEvent()   {}
func (Timestamp) isEvent()       {}
func (Quaternion) isEvent()      {}
func (Battery) isEvent()         {}
func (Temperature) isEvent()     {}
func (FirmwareVersion) isEvent() {}
func (DeviceTime) isEvent()      {}
