package main

import (
	"errors"
	"fmt"

	"github.com/srg/witctl/internal/bluez"
	"github.com/srg/witctl/internal/transport"
)

// Command-level errors
var (
	// ErrNoFrames indicates decode input contained no complete WIT frame.
	ErrNoFrames = errors.New("no frames found in input")
	// ErrConnectFailed indicates stream gave up before a link was established.
	ErrConnectFailed = errors.New("could not connect to sensor")
)

// FormatUserError adds a hint to errors the user can act on.
func FormatUserError(err error) string {
	var notFound *transport.NotFoundError
	switch {
	case errors.Is(err, transport.ErrBluetoothOff):
		return fmt.Sprintf("%v (turn Bluetooth on, or run 'witctl doctor')", err)
	case errors.Is(err, bluez.ErrNotRunning):
		return fmt.Sprintf("%v (start bluetoothd)", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%v (run 'witctl scan' to list nearby sensors)", err)
	default:
		return err.Error()
	}
}
