package witproto

import (
	"encoding/binary"
	"math"
)

// Legacy layout: a type byte followed by little-endian float32 values that
// were already scaled to physical units by older firmware bridges.
const (
	LegacyStreamingLen  = 1 + 9*4
	LegacyQuaternionLen = 1 + 4*4
)

// DecodeLegacy decodes the pre-scaled float layout. Type 0x61 carries
// acceleration, angular rate and orientation; type 0x71 carries a quaternion.
func DecodeLegacy(frame []byte) []Event {
	if len(frame) == 0 || len(frame) > MaxFrameLen {
		return nil
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(frame[1+4*i:])))
	}
	switch {
	case frame[0] == TypeStreaming && len(frame) >= LegacyStreamingLen:
		return []Event{
			Acceleration{Vector3{f(0), f(1), f(2)}},
			AngularRate{Vector3{f(3), f(4), f(5)}},
			Orientation{Vector3{f(6), f(7), f(8)}},
		}
	case frame[0] == TypeRegister && len(frame) >= LegacyQuaternionLen:
		return []Event{Quaternion{W: f(0), X: f(1), Y: f(2), Z: f(3)}}
	default:
		return nil
	}
}

// EncodeLegacy converts a primary streaming or quaternion register frame into
// the legacy float layout. It returns nil for anything else.
func EncodeLegacy(frame []byte) []byte {
	put := func(dst []byte, vals ...float64) {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(dst[1+4*i:], math.Float32bits(float32(v)))
		}
	}

	if s, ok := ParseSample(frame); ok {
		out := make([]byte, LegacyStreamingLen)
		out[0] = TypeStreaming
		var vals []float64
		for _, ev := range s.Events(Mode{}) {
			vals = append(vals, ev.Values()...)
		}
		put(out, vals...)
		return out
	}

	if ev, ok := DecodeRegister(frame); ok {
		if q, isQuat := ev.(Quaternion); isQuat {
			out := make([]byte, LegacyQuaternionLen)
			out[0] = TypeRegister
			put(out, q.W, q.X, q.Y, q.Z)
			return out
		}
	}
	return nil
}
