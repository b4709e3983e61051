package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srg/witctl/internal/bluez"
	"github.com/srg/witctl/internal/sensor"
	"github.com/srg/witctl/internal/testutils"
	"github.com/srg/witctl/internal/transport"
	"github.com/srg/witctl/internal/witproto"
	"github.com/srg/witctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func data(name string, args ...any) sensor.Output {
	return sensor.Output{Channel: witproto.DataChannel, Name: name, Args: args}
}

func status(name string, args ...any) sensor.Output {
	return sensor.Output{Channel: witproto.StatusChannel, Name: name, Args: args}
}

func TestPrinter_Text(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, config.FormatText, 0, false)

	p.Emit(status(sensor.OutConnected, 1, "01J0000000000000000000000"))
	p.Emit(data("accel", 0.0, -0.5, 1.0))
	p.Emit(status(sensor.OutNotice, "not connected to device"))
	p.Emit(status(sensor.OutPoll))

	testutils.NewTextAsserter(t).Assert(buf.String(), `
connected 1 01J0000000000000000000000
accel 0 -0.5 1
notice not connected to device
poll
`)
}

func TestPrinter_TextColors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, config.FormatText, 0, true)

	p.Emit(data("gyro", 1.0, 2.0, 3.0))
	p.Emit(status(sensor.OutScanning, 1))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "gyro 1 2 3", string(lines[0]), "data lines stay plain")
	assert.Contains(t, string(lines[1]), "\x1b[36m")
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, config.FormatJSON, 0, false)
	p.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

	p.Emit(status(sensor.OutRate, 50.0, 8))
	p.Emit(status(sensor.OutPoll))

	testutils.NewJSONAsserter(t).WithOptions(testutils.WithIgnoreExtraKeys(false)).AssertLines(buf.String(), `
{"time":"2026-10-18T12:00:00Z","channel":"status","name":"rate","args":[50,8]}
{"time":"2026-10-18T12:00:00Z","channel":"status","name":"poll","args":[]}
`)
}

func TestPrinter_RateLimitsDataOnly(t *testing.T) {
	// GOAL: Verify print_rate throttles the data channel while status lines always pass
	//
	// TEST SCENARIO: 2 lines/s, frozen clock, 10 data + 3 status lines → burst of 2 data, all status, 8 suppressed

	var buf bytes.Buffer
	p := NewPrinter(&buf, config.FormatText, 2, false)
	frozen := time.Unix(1_800_000_000, 0)
	p.now = func() time.Time { return frozen }

	for i := 0; i < 10; i++ {
		p.Emit(data("accel", float64(i), 0.0, 0.0))
		if i%4 == 0 {
			p.Emit(status("battery", 4.1, 100))
		}
	}

	testutils.NewTextAsserter(t).Assert(buf.String(), `
accel 0 0 0
battery 4.1 100
accel 1 0 0
battery 4.1 100
battery 4.1 100
`)
	assert.Equal(t, uint64(8), p.Suppressed())

	// time moves on: tokens refill
	frozen = frozen.Add(time.Second)
	buf.Reset()
	p.Emit(data("accel", 9.0, 0.0, 0.0))
	assert.Equal(t, "accel 9 0 0\n", buf.String())
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		err  error
		hint string
	}{
		{fmt.Errorf("scan: %w", transport.ErrBluetoothOff), "witctl doctor"},
		{bluez.ErrNotRunning, "start bluetoothd"},
		{&transport.NotFoundError{Resource: "device", ID: "WT901"}, "witctl scan"},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		msg := FormatUserError(tt.err)
		assert.Contains(t, msg, tt.err.Error())
		if tt.hint != "" {
			assert.Contains(t, msg, tt.hint)
		} else {
			assert.Equal(t, tt.err.Error(), msg)
		}
	}
}
