package shell

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/witproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recorder implements Device and records calls as text.
type recorder struct {
	calls []string
}

func (r *recorder) rec(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) StartScan()                   { r.rec("StartScan") }
func (r *recorder) StopScan()                    { r.rec("StopScan") }
func (r *recorder) Results()                     { r.rec("Results") }
func (r *recorder) Reset()                       { r.rec("Reset") }
func (r *recorder) Connect(target string)        { r.rec("Connect(%q)", target) }
func (r *recorder) Disconnect()                  { r.rec("Disconnect") }
func (r *recorder) SetRate(hz float64)           { r.rec("SetRate(%g)", hz) }
func (r *recorder) SetBandwidth(hz float64)      { r.rec("SetBandwidth(%g)", hz) }
func (r *recorder) SetAxisMode(axes int)         { r.rec("SetAxisMode(%d)", axes) }
func (r *recorder) SetOutputMode(mode int)       { r.rec("SetOutputMode(%d)", mode) }
func (r *recorder) SetOrientation(o int)         { r.rec("SetOrientation(%d)", o) }
func (r *recorder) SetBaud(code int)             { r.rec("SetBaud(%d)", code) }
func (r *recorder) Poll(k sensor.PollType, hz float64) {
	r.rec("Poll(%s,%g)", k, hz)
}
func (r *recorder) Calibrate()            { r.rec("Calibrate") }
func (r *recorder) MagCalStart()          { r.rec("MagCalStart") }
func (r *recorder) MagCalStop()           { r.rec("MagCalStop") }
func (r *recorder) ZeroAngles()           { r.rec("ZeroAngles") }
func (r *recorder) ZeroZAxis()            { r.rec("ZeroZAxis") }
func (r *recorder) ReadVersion()          { r.rec("ReadVersion") }
func (r *recorder) ReadTime()             { r.rec("ReadTime") }
func (r *recorder) ReadRegister(reg byte) { r.rec("ReadRegister(0x%02X)", reg) }
func (r *recorder) SaveConfig()           { r.rec("SaveConfig") }
func (r *recorder) RestoreConfig()        { r.rec("RestoreConfig") }
func (r *recorder) SetDeviceName(name string, v witproto.NameVariant) {
	r.rec("SetDeviceName(%q,%d)", name, int(v))
}

// inline runs tasks on the calling goroutine.
type inline struct{ runs int }

func (i *inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.runs++
	fn()
	return nil
}

type ShellTestSuite struct {
	suite.Suite
	dev    *recorder
	runner *inline
	out    *bytes.Buffer
	sh     *Shell
}

func (suite *ShellTestSuite) SetupTest() {
	suite.dev = &recorder{}
	suite.runner = &inline{}
	suite.out = &bytes.Buffer{}
	suite.sh = New(suite.dev, suite.runner, suite.out, "witctl test", nil)
}

func (suite *ShellTestSuite) TestDispatch() {
	// GOAL: Verify every command line reaches the matching device call with parsed arguments
	//
	// TEST SCENARIO: Execute each line → exactly one recorded call with the expected rendering

	tests := []struct {
		line string
		call string
	}{
		{"scan", "StartScan"},
		{"stop", "StopScan"},
		{"results", "Results"},
		{"reset", "Reset"},
		{"connect", `Connect("")`},
		{"connect WT901BLE68", `Connect("WT901BLE68")`},
		{"disconnect", "Disconnect"},
		{"rate 50", "SetRate(50)"},
		{"RATE 0.5", "SetRate(0.5)"},
		{"bandwidth 98", "SetBandwidth(98)"},
		{"axis 6", "SetAxisMode(6)"},
		{"outputmode 3", "SetOutputMode(3)"},
		{"orientation 1", "SetOrientation(1)"},
		{"baud 6", "SetBaud(6)"},
		{"poll battery 2", "Poll(battery,2)"},
		{"poll quat 50", "Poll(quat,50)"},
		{"poll off", "Poll(none,0)"},
		{"calibrate", "Calibrate"},
		{"magcal start", "MagCalStart"},
		{"magcal STOP", "MagCalStop"},
		{"xyzero", "ZeroAngles"},
		{"zzero", "ZeroZAxis"},
		{"version", "ReadVersion"},
		{"time", "ReadTime"},
		{"read battery", "ReadRegister(0x64)"},
		{"read temp", "ReadRegister(0x40)"},
		{"read 0x3A", "ReadRegister(0x3A)"},
		{"save", "SaveConfig"},
		{"restore", "RestoreConfig"},
		{"setname Glove", `SetDeviceName("Glove",1)`},
		{"setname Glove 3", `SetDeviceName("Glove",3)`},
		{"setname Glove 9", `SetDeviceName("Glove",1)`},
	}

	for _, tt := range tests {
		suite.Run(tt.line, func() {
			suite.dev.calls = nil
			err := suite.sh.Execute(context.Background(), tt.line)
			suite.Require().NoError(err)
			suite.Assert().Equal([]string{tt.call}, suite.dev.calls)
		})
	}
}

func (suite *ShellTestSuite) TestUsageErrors() {
	// GOAL: Verify malformed arguments are rejected before anything runs on the consumer context
	//
	// TEST SCENARIO: Execute bad lines → UsageError naming the usage, no device calls, no runner use

	lines := []string{
		"rate",
		"rate fast",
		"axis 6 9",
		"poll battery",
		"poll sound 5",
		"magcal",
		"magcal pause",
		"read",
		"read 0x100",
		"setname",
		"setname a b c",
		"scan now",
	}
	for _, line := range lines {
		suite.Run(line, func() {
			err := suite.sh.Execute(context.Background(), line)
			var usage *UsageError
			suite.Require().ErrorAs(err, &usage)
			suite.Assert().True(strings.HasPrefix(err.Error(), "usage: "))
		})
	}
	suite.Assert().Empty(suite.dev.calls)
	suite.Assert().Zero(suite.runner.runs)
}

func (suite *ShellTestSuite) TestReadReportsNumberParseError() {
	err := suite.sh.Execute(context.Background(), "read 0xZZ")

	var usage *UsageError
	suite.Require().ErrorAs(err, &usage)
	var numErr *strconv.NumError
	suite.Require().ErrorAs(err, &numErr)
	suite.Assert().Contains(err.Error(), `"0xZZ"`)
	suite.Assert().NotContains(err.Error(), "poll type must be")
	suite.Assert().Empty(suite.dev.calls)
}

func (suite *ShellTestSuite) TestUnknownAndBuiltins() {
	suite.Assert().ErrorIs(suite.sh.Execute(context.Background(), "launch"), ErrUnknownCommand)
	suite.Assert().ErrorIs(suite.sh.Execute(context.Background(), "quit"), ErrQuit)
	suite.Assert().ErrorIs(suite.sh.Execute(context.Background(), "exit"), ErrQuit)
	suite.Assert().NoError(suite.sh.Execute(context.Background(), "   "))
	suite.Assert().NoError(suite.sh.Execute(context.Background(), "# comment"))

	suite.Require().NoError(suite.sh.Execute(context.Background(), "about"))
	suite.Assert().Equal("witctl test\n", suite.out.String())

	suite.out.Reset()
	suite.Require().NoError(suite.sh.Execute(context.Background(), "help"))
	help := suite.out.String()
	suite.Assert().Less(strings.Index(help, "scan"), strings.Index(help, "setname"), "registration order")
	suite.Assert().Contains(help, "poll <quat|mag|battery|temp> <hz> | poll off")
	suite.Assert().Empty(suite.dev.calls)
}

func (suite *ShellTestSuite) TestRunContinuesAfterErrors() {
	// GOAL: Verify a script keeps running past bad lines and stops at quit
	//
	// TEST SCENARIO: Script with an unknown command between valid ones → errors printed, quit ends the run

	script := "scan\nfrobnicate\nrate x\nconnect\nquit\nstop\n"
	err := suite.sh.Run(context.Background(), strings.NewReader(script))
	suite.Require().NoError(err)

	suite.Assert().Equal([]string{"StartScan", `Connect("")`}, suite.dev.calls)
	out := suite.out.String()
	suite.Assert().Contains(out, "error: unknown command: frobnicate")
	suite.Assert().Contains(out, "error: usage: rate <hz>")
}

func (suite *ShellTestSuite) TestRunCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := suite.sh.Run(ctx, strings.NewReader("scan\n"))
	suite.Assert().ErrorIs(err, context.Canceled)
	suite.Assert().Empty(suite.dev.calls)
}

func TestShellTestSuite(t *testing.T) {
	suite.Run(t, new(ShellTestSuite))
}

func TestUsageError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &UsageError{Usage: "rate <hz>", Err: inner}
	require.ErrorIs(t, err, inner)
	assert.Equal(t, "usage: rate <hz> (boom)", err.Error())
	assert.Equal(t, "usage: rate <hz>", (&UsageError{Usage: "rate <hz>"}).Error())
}
