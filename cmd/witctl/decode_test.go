package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/witctl/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// az = 1 g, yaw = 90 degrees
	streamingHex = "55 61 00 00 00 00 00 08 00 00 00 00 00 00 00 00 00 00 00 40"
	// 4.10 V
	batteryHex = "55 71 64 00 9A 01"
)

func TestDecode_HexPayloadsText(t *testing.T) {
	out, err := executeCommand(t, "decode", streamingHex, batteryHex)
	require.NoError(t, err)

	testutils.NewTextAsserter(t).Assert(out, `
accel 0 0 1
gyro 0 0 0
angle 0 0 90
battery 4.1 100
`)
}

func TestDecode_TimestampMode(t *testing.T) {
	// GOAL: Verify --output-mode selects the timestamp interpretation of the angle words
	//
	// TEST SCENARIO: Output mode 2 → timestamp hi/lo line, then angle carrying only yaw

	frame := "55 61 00 00 00 00 00 08 00 00 00 00 00 00 10 00 02 00 00 40"
	out, err := executeCommand(t, "decode", "--output-mode", "2", frame)
	require.NoError(t, err)

	testutils.NewTextAsserter(t).Assert(out, `
accel 0 0 1
gyro 0 0 0
timestamp 2 16
angle 0 0 90
`)
}

func TestDecode_JSONFormat(t *testing.T) {
	out, err := executeCommand(t, "decode", "--format", "json", streamingHex, batteryHex)
	require.NoError(t, err)

	testutils.NewJSONAsserter(t).AssertLines(out, `
{"time":"<<PRESENCE>>","channel":"data","name":"accel","args":[0,0,1]}
{"channel":"data","name":"gyro","args":[0,0,0]}
{"channel":"data","name":"angle","args":[0,0,90]}
{"channel":"status","name":"battery","args":[4.1,100]}
`)
}

func TestDecode_StreamFile(t *testing.T) {
	// GOAL: Verify a raw capture with noise between frames is resynchronised
	//
	// TEST SCENARIO: Garbage, one streaming frame, a stray marker, a register frame padded to 20 bytes → both decoded

	frame, err := parseHexPayload(streamingHex)
	require.NoError(t, err)
	quat := make([]byte, 20)
	copy(quat, []byte{0x55, 0x71, 0x51, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	var capture []byte
	capture = append(capture, 0x01, 0x02, 0x55, 0x03)
	capture = append(capture, frame...)
	capture = append(capture, quat...)

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, capture, 0o600))

	out, err := executeCommand(t, "decode", "--file", path)
	require.NoError(t, err)

	testutils.NewTextAsserter(t).Assert(out, `
accel 0 0 1
gyro 0 0 0
angle 0 0 90
quat 0.5 0 0 0
`)
}

func TestDecode_LegacyFrames(t *testing.T) {
	out, err := executeCommand(t, "decode", "--legacy",
		"71 00 00 80 3F 00 00 00 00 00 00 00 00 00 00 00 00")
	require.NoError(t, err)
	testutils.NewTextAsserter(t).Assert(out, "quat 1 0 0 0")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no input", args: []string{"decode"}, wantErr: "provide hex payloads or --file"},
		{name: "bad hex", args: []string{"decode", "55 6"}, wantErr: "invalid hex payload"},
		{name: "nothing decodable", args: []string{"decode", "01 02 03"}, wantErr: ErrNoFrames.Error()},
		{name: "bad format", args: []string{"decode", "--format", "xml", streamingHex}, wantErr: "invalid output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseHexPayload(t *testing.T) {
	for _, in := range []string{"55:71:64", "0x557164", "55 71\t64"} {
		data, err := parseHexPayload(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0x55, 0x71, 0x64}, data)
	}
}
