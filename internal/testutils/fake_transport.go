package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/witctl/internal/transport"
)

// Write is one payload recorded by FakeTransport.
type Write struct {
	Data     []byte
	Response bool
}

// FakeTransport is an in-memory transport.Transport. It records every call
// and lets tests inject discovery, notification and disconnect events.
type FakeTransport struct {
	mu        sync.Mutex
	handlers  transport.Handlers
	scanning  bool
	connected bool
	closed    bool

	calls    []string
	writes   []Write
	connects []string

	// ConnectErr is returned by Connect when no gate is installed.
	ConnectErr error
	// StartScanErr is returned by StartScan.
	StartScanErr error

	gate chan error
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns a transport whose connects succeed immediately.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// HoldConnects makes subsequent Connect calls block until Release.
func (f *FakeTransport) HoldConnects() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan error, 16)
}

// SetConnectErr changes the error returned by later Connect calls.
func (f *FakeTransport) SetConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectErr = err
}

// Release completes one held Connect with err.
func (f *FakeTransport) Release(err error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate <- err
	}
}

func (f *FakeTransport) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *FakeTransport) SetHandlers(h transport.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *FakeTransport) StartScan(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartScan")
	if f.StartScanErr != nil {
		return f.StartScanErr
	}
	f.scanning = true
	return nil
}

func (f *FakeTransport) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopScan")
	f.scanning = false
	return nil
}

func (f *FakeTransport) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *FakeTransport) Connect(ctx context.Context, target string) error {
	f.mu.Lock()
	f.record("Connect:" + target)
	f.connects = append(f.connects, target)
	gate, err := f.gate, f.ConnectErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case err = <-gate:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Disconnect")
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.connected = false
	return nil
}

func (f *FakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Write(data []byte) error {
	return f.write(data, false)
}

func (f *FakeTransport) WriteRequest(data []byte) error {
	return f.write(data, true)
}

func (f *FakeTransport) write(data []byte, response bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.writes = append(f.writes, Write{Data: append([]byte(nil), data...), Response: response})
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Close")
	f.closed = true
	return nil
}

// Calls returns the recorded method calls in order.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Connects returns the targets passed to Connect.
func (f *FakeTransport) Connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...)
}

// Writes returns the recorded writes.
func (f *FakeTransport) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WrittenHex returns each recorded write rendered as "FF AA ..".
func (f *FakeTransport) WrittenHex() []string {
	writes := f.Writes()
	out := make([]string, len(writes))
	for i, w := range writes {
		out[i] = fmt.Sprintf("% X", w.Data)
	}
	return out
}

// ResetWrites forgets recorded writes.
func (f *FakeTransport) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Discover injects an advertisement.
func (f *FakeTransport) Discover(identifier, address string) {
	if h := f.handler(); h.Discovered != nil {
		h.Discovered(identifier, address)
	}
}

// Notify injects a notification payload.
func (f *FakeTransport) Notify(data []byte) {
	if h := f.handler(); h.Notification != nil {
		h.Notification(data)
	}
}

// DropLink simulates an unexpected disconnect.
func (f *FakeTransport) DropLink(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	if h := f.handler(); h.Disconnected != nil {
		h.Disconnected(err)
	}
}

// EndScan simulates the stack stopping a scan on its own.
func (f *FakeTransport) EndScan(err error) {
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
	if h := f.handler(); h.ScanStopped != nil {
		h.ScanStopped(err)
	}
}

func (f *FakeTransport) handler() transport.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}
