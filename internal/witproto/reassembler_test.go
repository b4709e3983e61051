package witproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassembler_Resynchronises(t *testing.T) {
	r := NewReassembler(0)
	first := streamingFrame(1, 2, 3)
	second := registerFrame(RegBattery, 380)

	var stream []byte
	stream = append(stream, 0x00, 0x55, 0x13)
	stream = append(stream, first...)
	stream = append(stream, 0xAB)
	stream = append(stream, second...)

	// split writes at awkward boundaries
	_, _ = r.Write(stream[:7])
	f, ok := r.Next()
	assert.False(t, ok)
	assert.Nil(t, f)

	_, _ = r.Write(stream[7:])
	frames := r.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, first, frames[0])
	assert.Equal(t, second, frames[1])
	assert.Equal(t, uint64(3), r.Skipped())
}

func TestReassembler_RepeatedStartMarker(t *testing.T) {
	r := NewReassembler(64)
	frame := streamingFrame(9)

	_, _ = r.Write(append([]byte{0x55}, frame...))
	frames := r.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
}

func TestReassembler_Overflow(t *testing.T) {
	r := NewReassembler(8)
	n, err := r.Write(make([]byte, 20))
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, uint64(12), r.Dropped())
}

func TestLegacy(t *testing.T) {
	frame := streamingFrame(16384, 0, 0, 16384, 0, 0, 0, 0, 16384)
	legacy := EncodeLegacy(frame)
	require.Len(t, legacy, LegacyStreamingLen)

	events := DecodeLegacy(legacy)
	require.Len(t, events, 3)
	assert.Equal(t, []float64{8, 0, 0}, events[0].Values())
	assert.Equal(t, []float64{1000, 0, 0}, events[1].Values())
	assert.Equal(t, []float64{0, 0, 90}, events[2].Values())

	quat := EncodeLegacy(registerFrame(RegQuaternion, 16384, 0, 0, 0))
	require.Len(t, quat, LegacyQuaternionLen)
	events = DecodeLegacy(quat)
	require.Len(t, events, 1)
	assert.Equal(t, Quaternion{W: 0.5}, events[0])

	assert.Nil(t, EncodeLegacy(registerFrame(RegBattery, 400)))
	assert.Nil(t, DecodeLegacy(legacy[:20]))
	assert.Nil(t, DecodeLegacy(nil))
}
