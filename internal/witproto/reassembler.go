package witproto

import (
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// DefaultReassemblerCapacity is the byte backlog kept between reads.
const DefaultReassemblerCapacity = 4096

// Reassembler cuts a continuous byte stream (UART, captured dumps) into
// 20-byte frames, resynchronising on the start marker. It is not safe for
// concurrent use.
type Reassembler struct {
	buf     *ringbuffer.RingBuffer
	frame   [StreamingFrameLen]byte
	n       int
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// NewReassembler creates a reassembler holding at most capacity unread bytes.
func NewReassembler(capacity int) *Reassembler {
	if capacity <= 0 {
		capacity = DefaultReassemblerCapacity
	}
	return &Reassembler{buf: ringbuffer.New(capacity)}
}

// Write buffers stream bytes. Bytes that do not fit are dropped and counted,
// so Write never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	written, _ := r.buf.Write(p)
	if written < len(p) {
		r.dropped.Add(uint64(len(p) - written))
	}
	return len(p), nil
}

// Next returns the next complete frame, or false when more bytes are needed.
// The returned slice is a copy owned by the caller.
func (r *Reassembler) Next() ([]byte, bool) {
	for {
		b, err := r.buf.ReadByte()
		if err != nil {
			return nil, false
		}

		switch r.n {
		case 0:
			if b != FrameStart {
				r.skipped.Add(1)
				continue
			}
		case 1:
			if b != TypeStreaming && b != TypeRegister {
				r.skipped.Add(1)
				if b != FrameStart {
					r.n = 0
				}
				continue
			}
		}

		r.frame[r.n] = b
		r.n++
		if r.n == len(r.frame) {
			r.n = 0
			out := make([]byte, len(r.frame))
			copy(out, r.frame[:])
			return out, true
		}
	}
}

// Frames drains every complete frame currently buffered.
func (r *Reassembler) Frames() [][]byte {
	var out [][]byte
	for {
		f, ok := r.Next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

// Dropped returns the number of bytes lost to backlog overflow.
func (r *Reassembler) Dropped() uint64 { return r.dropped.Load() }

// Skipped returns the number of bytes discarded while resynchronising.
func (r *Reassembler) Skipped() uint64 { return r.skipped.Load() }
