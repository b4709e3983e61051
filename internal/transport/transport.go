// Package transport defines the boundary between the sensor logic and a BLE
// stack: scanning, connecting, notifications and command writes.
package transport

import "context"

// Vendor GATT identifiers
const (
	ServiceUUID = "0000ffe5-0000-1000-8000-00805f9a34fb"
	NotifyUUID  = "0000ffe4-0000-1000-8000-00805f9a34fb"
	WriteUUID   = "0000ffe9-0000-1000-8000-00805f9a34fb"
)

// Handlers receive transport events. They are invoked on transport-owned
// goroutines and must not block or touch consumer state.
type Handlers struct {
	// Discovered is called for every advertisement seen while scanning.
	Discovered func(identifier, address string)
	// Notification is called with each notification payload. The slice is
	// only valid for the duration of the call.
	Notification func(data []byte)
	// Disconnected is called when an established link drops without Disconnect.
	Disconnected func(err error)
	// ScanStopped is called when a scan ends on its own (timeout, adapter
	// error, parent context), not after StopScan.
	ScanStopped func(err error)
}

// Transport is a single-link BLE central
type Transport interface {
	SetHandlers(h Handlers)

	// StartScan begins scanning in the background and returns immediately.
	StartScan(ctx context.Context) error
	// StopScan cancels the scan and returns without waiting for it to end.
	StopScan() error
	Scanning() bool

	// Connect dials a peripheral by identifier or address, subscribes to the
	// notify characteristic and returns once the link is usable.
	Connect(ctx context.Context, target string) error
	Disconnect() error
	Connected() bool

	// Write sends a command without response.
	Write(data []byte) error
	// WriteRequest sends data as a write request (with response).
	WriteRequest(data []byte) error

	Close() error
}
