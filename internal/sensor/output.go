package sensor

import (
	"fmt"
	"strings"

	"github.com/srg/witctl/internal/witproto"
)

// Status output names
const (
	OutScanning       = "scanning"
	OutDevice         = "device"
	OutResults        = "results"
	OutAutoconnecting = "autoconnecting"
	OutConnected      = "connected"
	OutAxis           = "axis"
	OutOutputMode     = "outputmode"
	OutRate           = "rate"
	OutBandwidth      = "bandwidth"
	OutOrientation    = "orientation"
	OutBaud           = "baud"
	OutPoll           = "poll"
	OutCalibrate      = "calibrate"
	OutMagCal         = "magcal"
	OutXYZero         = "xyzero"
	OutZZero          = "zzero"
	OutSave           = "save"
	OutRestore        = "restore"
	OutName           = "name"
	OutNotice         = "notice"
)

// Output is one outward message: a name and its arguments on the data or
// status channel. Arguments are float64, int or string.
type Output struct {
	Channel witproto.Channel
	Name    string
	Args    []any
}

func (o Output) String() string {
	var b strings.Builder
	b.WriteString(o.Name)
	for _, a := range o.Args {
		b.WriteByte(' ')
		switch v := a.(type) {
		case float64:
			b.WriteString(fmt.Sprintf("%g", v))
		default:
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}

// Outlet receives outputs on the consumer context.
type Outlet interface {
	Emit(Output)
}

// OutletFunc adapts a function to Outlet
type OutletFunc func(Output)

// Emit implements Outlet
func (f OutletFunc) Emit(o Output) { f(o) }

func status(name string, args ...any) Output {
	return Output{Channel: witproto.StatusChannel, Name: name, Args: args}
}

// EventOutput maps a decoded event to its outward message.
func EventOutput(ev witproto.Event) Output {
	name := string(ev.Kind())
	var args []any

	switch e := ev.(type) {
	case witproto.FirmwareVersion:
		switch e.Register {
		case witproto.RegVersion1:
			name = "version1"
		case witproto.RegVersion2:
			name = "version2"
		}
		args = []any{int(e.Value)}
	case witproto.DeviceTime:
		name = "time_" + e.Field.String()
		args = []any{int(e.Value)}
	case witproto.Battery:
		args = []any{e.Volts, e.Percent}
	case witproto.Timestamp:
		args = []any{int(e.Hi), int(e.Lo)}
	default:
		for _, v := range ev.Values() {
			args = append(args, v)
		}
	}
	return Output{Channel: ev.Channel(), Name: name, Args: args}
}
