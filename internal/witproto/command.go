package witproto

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Command header bytes
const (
	commandHeader0 byte = 0xFF
	commandHeader1 byte = 0xAA
)

// Command is a five byte register write: FF AA reg lo hi.
type Command [5]byte

// NewCommand builds a register write command.
func NewCommand(reg, lo, hi byte) Command {
	return Command{commandHeader0, commandHeader1, reg, lo, hi}
}

// Bytes returns the command as a byte slice.
func (c Command) Bytes() []byte {
	return c[:]
}

func (c Command) String() string {
	return Hex(c[:])
}

// Hex renders bytes as space separated upper-case pairs.
func Hex(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// Fixed commands
var (
	Unlock         = NewCommand(RegKey, 0x88, 0xB5)
	Save           = NewCommand(RegSave, 0x00, 0x00)
	Restore        = NewCommand(RegSave, 0x01, 0x00)
	CalibrateAccel = NewCommand(RegCalibrate, 0x01, 0x00)
	MagCalStart    = NewCommand(RegCalibrate, 0x07, 0x00)
	MagCalStop     = NewCommand(RegCalibrate, 0x00, 0x00)
	ZeroAngles     = NewCommand(RegCalibrate, 0x08, 0x00)
	ZeroZAxis      = NewCommand(RegCalibrate, 0x04, 0x00)
)

// ReadRegister requests a register page.
func ReadRegister(reg byte) Command {
	return NewCommand(RegRead, reg, 0x00)
}

// SetRate writes a return-rate code (see RateCode).
func SetRate(code byte) Command {
	return NewCommand(RegRate, code, 0x00)
}

// SetBandwidth writes a filter bandwidth code (see BandwidthCode).
func SetBandwidth(code byte) Command {
	return NewCommand(RegBandwidth, code, 0x00)
}

// AxisMode selects the fusion algorithm.
type AxisMode int

const (
	Axis6 AxisMode = 6
	Axis9 AxisMode = 9
)

// AxisModeFrom maps a requested axis count to a mode. Anything other than 9 is 6-axis.
func AxisModeFrom(axes int) AxisMode {
	if axes == int(Axis9) {
		return Axis9
	}
	return Axis6
}

// SetAxis writes the algorithm register.
func SetAxis(mode AxisMode) Command {
	if mode == Axis9 {
		return NewCommand(RegAxis, 0x00, 0x00)
	}
	return NewCommand(RegAxis, 0x01, 0x00)
}

// SetOutputMode writes the AGPVSEL register. The value is clamped to 0..3.
func SetOutputMode(mode int) Command {
	return NewCommand(RegOutputMode, byte(ClampOutputMode(mode)), 0x00)
}

// SetOrientation writes the installation orientation (0 horizontal, 1 vertical).
func SetOrientation(orientation int) Command {
	return NewCommand(RegOrientation, byte(clamp(orientation, 0, 1)), 0x00)
}

// SetBaud writes the baud code. The value is clamped to 0..255.
func SetBaud(code int) Command {
	return NewCommand(RegBaud, byte(clamp(code, 0, 255)), 0x00)
}

// ClampOutputMode limits an output mode to 0..3.
func ClampOutputMode(mode int) int {
	return clamp(mode, 0, 3)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Return rate limits in Hz
const (
	MinRate = 0.1
	MaxRate = 200.0
)

var rateSteps = []struct {
	upTo float64
	code byte
}{
	{0.15, 0x01},
	{0.75, 0x02},
	{1.5, 0x03},
	{3, 0x04},
	{7.5, 0x05},
	{15, 0x06},
	{35, 0x07},
	{75, 0x08},
	{150, 0x09},
}

const rateCode200Hz byte = 0x0B

// RateCode clamps a requested rate to [MinRate, MaxRate] and maps it to the
// nearest supported code. It returns the code and the clamped rate.
func RateCode(hz float64) (byte, float64) {
	if math.IsNaN(hz) {
		hz = MinRate
	}
	hz = math.Max(MinRate, math.Min(hz, MaxRate))
	for _, s := range rateSteps {
		if hz <= s.upTo {
			return s.code, hz
		}
	}
	return rateCode200Hz, hz
}

var bandwidthSteps = []struct {
	atLeast float64
	code    byte
	nominal int
}{
	{220, 0x00, 256},
	{140, 0x01, 188},
	{70, 0x02, 98},
	{30, 0x03, 42},
	{15, 0x04, 20},
	{7, 0x05, 10},
}

// BandwidthCode maps a requested filter bandwidth to its code and the
// nominal bandwidth in Hz that code selects.
func BandwidthCode(hz float64) (byte, int) {
	for _, s := range bandwidthSteps {
		if hz >= s.atLeast {
			return s.code, s.nominal
		}
	}
	return 0x06, 5
}

// NameVariant selects the ASCII framing of the rename command. Firmware
// revisions disagree on which one they accept.
type NameVariant int

const (
	// NameSpaced frames the name as "WT <name> \r\n".
	NameSpaced NameVariant = iota + 1
	// NameLeadingSpace frames the name as "WT <name>\r\n".
	NameLeadingSpace
	// NameCompact frames the name as "WT<name>\r\n".
	NameCompact
)

// NameVariantFrom maps 1..3 to a variant. Other values select NameSpaced.
func NameVariantFrom(v int) NameVariant {
	if v >= int(NameSpaced) && v <= int(NameCompact) {
		return NameVariant(v)
	}
	return NameSpaced
}

// MaxNameSuffix is the number of characters allowed after the "WT" prefix.
const MaxNameSuffix = 14

// DeviceName normalises a requested name: a leading "WT" is stripped,
// whitespace is removed and the rest is cut to MaxNameSuffix characters
// behind a fresh "WT" prefix. truncated reports whether characters were cut.
func DeviceName(input string) (name string, truncated bool) {
	suffix := strings.TrimPrefix(input, "WT")

	var b strings.Builder
	b.WriteString("WT")
	n := 0
	for _, r := range suffix {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if n < MaxNameSuffix {
			b.WriteRune(r)
		}
		n++
	}
	return b.String(), n > MaxNameSuffix
}

// RenameFrame builds the ASCII rename command for a normalised name.
func RenameFrame(name string, variant NameVariant) []byte {
	switch variant {
	case NameLeadingSpace:
		return []byte("WT " + name + "\r\n")
	case NameCompact:
		return []byte("WT" + name + "\r\n")
	default:
		return []byte("WT " + name + " \r\n")
	}
}

// IsPrintableName reports whether a name only contains printable ASCII.
func IsPrintableName(name string) bool {
	for _, r := range name {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
