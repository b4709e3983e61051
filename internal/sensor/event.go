package sensor

import "github.com/srg/witctl/internal/witproto"

// QueuedEvent is the unit carried from transport goroutines to the consumer
// context. The set of implementations is closed to this package.
type QueuedEvent interface {
	isQueuedEvent()
}

// SampleReceived carries the raw words of a streaming frame. The decode mode
// is applied on the consumer side, which owns it.
type SampleReceived struct {
	Sample witproto.Sample
}

// ReadingsReceived carries events whose meaning does not depend on the decode
// mode: register pages and legacy frames.
type ReadingsReceived struct {
	Events []witproto.Event
}

// DeviceFound reports an advertisement seen while scanning.
type DeviceFound struct {
	Identifier string
	Address    string
}

// ScanningChanged reports that the transport stopped (or started) scanning on its own.
type ScanningChanged struct {
	Scanning bool
	Err      error
}

// LinkLost reports that the transport dropped an established link.
type LinkLost struct {
	Err error
}

// ConnectResult completes an asynchronous connect attempt.
type ConnectResult struct {
	attempt uint64
	Target  string
	Err     error
}

func (SampleReceived) isQueuedEvent()   {}
func (ReadingsReceived) isQueuedEvent() {}
func (DeviceFound) isQueuedEvent()      {}
func (ScanningChanged) isQueuedEvent()  {}
func (LinkLost) isQueuedEvent()         {}
func (ConnectResult) isQueuedEvent()    {}
