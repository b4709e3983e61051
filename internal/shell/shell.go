// Package shell maps line-oriented text commands onto a sensor. Each command
// is parsed on the caller's goroutine and executed on the consumer context.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/witproto"
)

// ErrQuit is returned by Execute for quit and exit.
var ErrQuit = errors.New("quit")

// ErrUnknownCommand is returned for a command name with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Device is the command surface of a sensor.
type Device interface {
	StartScan()
	StopScan()
	Results()
	Reset()
	Connect(target string)
	Disconnect()
	SetRate(hz float64)
	SetBandwidth(hz float64)
	SetAxisMode(axes int)
	SetOutputMode(mode int)
	SetOrientation(orientation int)
	SetBaud(code int)
	Poll(kind sensor.PollType, hz float64)
	Calibrate()
	MagCalStart()
	MagCalStop()
	ZeroAngles()
	ZeroZAxis()
	ReadVersion()
	ReadTime()
	ReadRegister(reg byte)
	SaveConfig()
	RestoreConfig()
	SetDeviceName(name string, variant witproto.NameVariant)
}

// Runner executes fn on the consumer context and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// UsageError reports malformed arguments for a known command.
type UsageError struct {
	Usage string
	Err   error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("usage: %s (%v)", e.Usage, e.Err)
	}
	return "usage: " + e.Usage
}

func (e *UsageError) Unwrap() error { return e.Err }

type command struct {
	usage string
	help  string
	// bind validates args and returns the call to run on the consumer context.
	bind func(dev Device, args []string) (func(), error)
}

// Shell dispatches text commands
type Shell struct {
	dev      Device
	runner   Runner
	out      io.Writer
	logger   *logrus.Logger
	about    string
	commands *orderedmap.OrderedMap[string, command]
}

// New creates a shell writing help and errors to out. about is printed by the about command.
func New(dev Device, runner Runner, out io.Writer, about string, logger *logrus.Logger) *Shell {
	if logger == nil {
		logger = logrus.New()
	}
	sh := &Shell{
		dev:      dev,
		runner:   runner,
		out:      out,
		logger:   logger,
		about:    about,
		commands: orderedmap.New[string, command](),
	}
	sh.register()
	return sh
}

func noArgs(call func(Device)) func(Device, []string) (func(), error) {
	return func(dev Device, args []string) (func(), error) {
		if len(args) != 0 {
			return nil, errors.New("takes no arguments")
		}
		return func() { call(dev) }, nil
	}
}

func oneFloat(call func(Device, float64)) func(Device, []string) (func(), error) {
	return func(dev Device, args []string) (func(), error) {
		if len(args) != 1 {
			return nil, errors.New("expects one number")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, err
		}
		return func() { call(dev, v) }, nil
	}
}

func oneInt(call func(Device, int)) func(Device, []string) (func(), error) {
	return func(dev Device, args []string) (func(), error) {
		if len(args) != 1 {
			return nil, errors.New("expects one integer")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, err
		}
		return func() { call(dev, v) }, nil
	}
}

func (sh *Shell) add(name, usage, help string, bind func(Device, []string) (func(), error)) {
	sh.commands.Set(name, command{usage: usage, help: help, bind: bind})
}

func (sh *Shell) register() {
	sh.add("scan", "scan", "start scanning for devices", noArgs(Device.StartScan))
	sh.add("stop", "stop", "stop scanning", noArgs(Device.StopScan))
	sh.add("results", "results", "list devices seen since the last reset", noArgs(Device.Results))
	sh.add("reset", "reset", "stop scanning and forget seen devices", noArgs(Device.Reset))
	sh.add("connect", "connect [name|address]", "connect to a device, or to the first WIT device seen",
		func(dev Device, args []string) (func(), error) {
			if len(args) > 1 {
				return nil, errors.New("expects at most one target")
			}
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return func() { dev.Connect(target) }, nil
		})
	sh.add("disconnect", "disconnect", "drop the current link", noArgs(Device.Disconnect))

	sh.add("rate", "rate <hz>", "set the output rate (0.1..200)", oneFloat(Device.SetRate))
	sh.add("bandwidth", "bandwidth <hz>", "set the filter bandwidth (5..256)", oneFloat(Device.SetBandwidth))
	sh.add("axis", "axis <6|9>", "select 6-axis or 9-axis fusion", oneInt(Device.SetAxisMode))
	sh.add("outputmode", "outputmode <0..3>", "bit 0 selects displacement/speed, bit 1 timestamp", oneInt(Device.SetOutputMode))
	sh.add("orientation", "orientation <0|1>", "set horizontal (0) or vertical (1) mounting", oneInt(Device.SetOrientation))
	sh.add("baud", "baud <code>", "set the UART baud code", oneInt(Device.SetBaud))
	sh.add("poll", "poll <quat|mag|battery|temp> <hz> | poll off", "read a register periodically", sh.bindPoll)

	sh.add("calibrate", "calibrate", "start accelerometer calibration", noArgs(Device.Calibrate))
	sh.add("magcal", "magcal <start|stop>", "start or stop magnetometer calibration",
		func(dev Device, args []string) (func(), error) {
			if len(args) != 1 {
				return nil, errors.New("expects start or stop")
			}
			switch strings.ToLower(args[0]) {
			case "start":
				return dev.MagCalStart, nil
			case "stop":
				return dev.MagCalStop, nil
			}
			return nil, fmt.Errorf("unknown action %q", args[0])
		})
	sh.add("xyzero", "xyzero", "zero the X and Y angles", noArgs(Device.ZeroAngles))
	sh.add("zzero", "zzero", "zero the Z angle (switches to 6-axis)", noArgs(Device.ZeroZAxis))

	sh.add("version", "version", "read the firmware version", noArgs(Device.ReadVersion))
	sh.add("time", "time", "read the on-chip clock", noArgs(Device.ReadTime))
	sh.add("read", "read <quat|mag|battery|temp|0xNN>", "read one register", sh.bindRead)

	sh.add("save", "save", "persist the configuration", noArgs(Device.SaveConfig))
	sh.add("restore", "restore", "restore factory configuration", noArgs(Device.RestoreConfig))
	sh.add("setname", "setname <name> [1|2|3]", "rename the device; variant picks the frame spacing",
		func(dev Device, args []string) (func(), error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, errors.New("expects a name and optional variant")
			}
			variant := witproto.NameSpaced
			if len(args) == 2 {
				v, err := strconv.Atoi(args[1])
				if err != nil {
					return nil, err
				}
				variant = witproto.NameVariantFrom(v)
			}
			name := args[0]
			return func() { dev.SetDeviceName(name, variant) }, nil
		})
}

func (sh *Shell) bindPoll(dev Device, args []string) (func(), error) {
	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		return func() { dev.Poll(sensor.PollNone, 0) }, nil
	}
	if len(args) != 2 {
		return nil, errors.New("expects a type and a rate")
	}
	kind, err := sensor.ParsePollType(args[0])
	if err != nil {
		return nil, err
	}
	hz, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, err
	}
	return func() { dev.Poll(kind, hz) }, nil
}

func (sh *Shell) bindRead(dev Device, args []string) (func(), error) {
	if len(args) != 1 {
		return nil, errors.New("expects a register")
	}
	var reg byte
	if kind, err := sensor.ParsePollType(args[0]); err == nil {
		reg = kind.Register()
	} else {
		v, perr := strconv.ParseUint(args[0], 0, 8)
		if perr != nil {
			return nil, fmt.Errorf("register %q is neither a poll type nor a number: %w", args[0], perr)
		}
		reg = byte(v)
	}
	return func() { dev.ReadRegister(reg) }, nil
}

// Execute parses one line and runs it. Blank lines and # comments are ignored.
func (sh *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "quit", "exit":
		return ErrQuit
	case "help", "?":
		sh.Help()
		return nil
	case "about":
		fmt.Fprintln(sh.out, sh.about)
		return nil
	}

	cmd, ok := sh.commands.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	call, err := cmd.bind(sh.dev, args)
	if err != nil {
		return &UsageError{Usage: cmd.usage, Err: err}
	}

	sh.logger.WithField("command", name).Debug("Dispatching command")
	return sh.runner.Do(ctx, call)
}

// Help writes the command list in registration order.
func (sh *Shell) Help() {
	for pair := sh.commands.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(sh.out, "  %-40s %s\n", pair.Value.usage, pair.Value.help)
	}
	fmt.Fprintf(sh.out, "  %-40s %s\n", "about", "show version information")
	fmt.Fprintf(sh.out, "  %-40s %s\n", "quit", "leave the shell")
}

// Run executes lines from r until EOF, quit, or ctx is done. Command errors
// are printed and do not stop the shell.
func (sh *Shell) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := sh.Execute(ctx, scanner.Text())
		switch {
		case err == nil:
		case errors.Is(err, ErrQuit):
			return nil
		case errors.Is(err, context.Canceled):
			return err
		default:
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
