package sensor

import "time"

// Config holds timing and decoding options
type Config struct {
	// ScanTimeout stops a scan automatically. Zero scans until stopped.
	ScanTimeout time.Duration
	// ConnectTimeout bounds a single transport connect.
	ConnectTimeout time.Duration
	// UnlockSettle is the wait between the unlock key and the register write.
	UnlockSettle time.Duration
	// ConfigSpacing separates the steps of the post-connect configuration.
	ConfigSpacing time.Duration
	// RegisterSpacing separates consecutive register reads.
	RegisterSpacing time.Duration
	// NameSettle is the wait between unlock and the rename frame.
	NameSettle time.Duration
	// NameSaveDelay is the wait between the rename frame and save.
	NameSaveDelay time.Duration
	// LegacyFrames decodes notifications using the pre-scaled float layout.
	LegacyFrames bool
	// QueueCapacity bounds each cross-context event queue (control and telemetry).
	QueueCapacity uint32
}

// DefaultConfig returns the device's documented command turnaround timings.
func DefaultConfig() Config {
	return Config{
		ScanTimeout:     6 * time.Second,
		ConnectTimeout:  30 * time.Second,
		UnlockSettle:    50 * time.Millisecond,
		ConfigSpacing:   30 * time.Millisecond,
		RegisterSpacing: 60 * time.Millisecond,
		NameSettle:      100 * time.Millisecond,
		NameSaveDelay:   10 * time.Millisecond,
		QueueCapacity:   1024,
	}
}
