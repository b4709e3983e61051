// Package goble implements transport.Transport on top of go-ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/groutine"
	"github.com/srg/witctl/internal/transport"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// ChunkSize is the largest payload written in a single ATT write.
const ChunkSize = 20

const scanStopTimeout = 2 * time.Second

var (
	serviceUUID = ble.MustParse(transport.ServiceUUID)
	notifyUUID  = ble.MustParse(transport.NotifyUUID)
	writeUUID   = ble.MustParse(transport.WriteUUID)
)

// Transport is a single-link BLE central backed by go-ble
type Transport struct {
	logger   *logrus.Logger
	handlers atomic.Pointer[transport.Handlers]

	devOnce sync.Once
	dev     ble.Device
	devErr  error

	// advertised maps identifiers and addresses seen in the current scan to
	// the address to dial. Written from the scan callback goroutine.
	advertised atomic.Pointer[hashmap.Map[string, ble.Addr]]

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   <-chan struct{}
	scanGen    uint64
	scanning   atomic.Bool

	connMu     sync.Mutex
	client     ble.Client
	notifyChar *ble.Characteristic
	writeChar  *ble.Characteristic
	linkCancel context.CancelFunc
	connected  atomic.Bool
	dropping   atomic.Bool

	writeMu sync.Mutex
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport. The BLE device is opened lazily on first use.
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Transport{logger: logger}
	t.handlers.Store(&transport.Handlers{})
	t.advertised.Store(hashmap.New[string, ble.Addr]())
	return t
}

func (t *Transport) SetHandlers(h transport.Handlers) {
	t.handlers.Store(&h)
}

func (t *Transport) device() (ble.Device, error) {
	t.devOnce.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			t.devErr = fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
			return
		}
		ble.SetDefaultDevice(dev)
		t.dev = dev
	})
	return t.dev, t.devErr
}

// ----------------------------
// Scanning
// ----------------------------

// StartScan starts a background scan. Advertisements are reported through
// Handlers.Discovered; Handlers.ScanStopped fires if the scan ends on its own.
func (t *Transport) StartScan(ctx context.Context) error {
	dev, err := t.device()
	if err != nil {
		return err
	}

	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	if t.scanning.Load() {
		return transport.ErrScanInProgress
	}

	t.advertised.Store(hashmap.New[string, ble.Addr]())

	prev := t.scanDone
	t.scanGen++
	gen := t.scanGen
	scanCtx, cancel := context.WithCancel(ctx)
	t.scanCancel = cancel
	t.scanning.Store(true)

	t.logger.Info("Starting BLE scan...")

	t.scanDone = groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		if prev != nil {
			// a stopped scan may still be winding down in the stack
			select {
			case <-prev:
			case <-time.After(scanStopTimeout):
				t.logger.Warn("Previous scan is still stopping; starting anyway")
			}
		}
		err := dev.Scan(ctx, true, t.handleAdvertisement)
		if !t.endScan(gen) {
			return
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		err = NormalizeError(err)
		if err != nil {
			t.logger.WithError(err).Warn("BLE scan failed")
		} else {
			t.logger.WithField("device_count", t.advertised.Load().Len()).Info("BLE scan completed")
		}
		if h := t.handlers.Load(); h.ScanStopped != nil {
			h.ScanStopped(err)
		}
	})
	return nil
}

func (t *Transport) handleAdvertisement(adv ble.Advertisement) {
	addr := adv.Addr()
	address := addr.String()
	identifier := strings.TrimSpace(adv.LocalName())
	if identifier == "" {
		identifier = address
	}

	registry := t.advertised.Load()
	_, seen := registry.Get(address)
	registry.Set(address, addr)
	registry.Set(identifier, addr)

	if !seen {
		t.logger.WithFields(logrus.Fields{
			"device":  identifier,
			"address": address,
			"rssi":    adv.RSSI(),
		}).Debug("Discovered new device")
	}

	if h := t.handlers.Load(); h.Discovered != nil {
		h.Discovered(identifier, address)
	}
}

// endScan marks scan gen as finished on its own. It reports false when
// StopScan got there first.
func (t *Transport) endScan(gen uint64) bool {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	if gen != t.scanGen || t.scanCancel == nil {
		return false
	}
	t.scanCancel()
	t.scanCancel = nil
	t.scanning.Store(false)
	return true
}

// StopScan cancels the active scan without waiting for the stack to wind it
// down. Handlers.ScanStopped is not called for a scan stopped this way.
func (t *Transport) StopScan() error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()
	if t.scanCancel == nil {
		return nil
	}
	t.scanCancel()
	t.scanCancel = nil
	t.scanning.Store(false)
	return nil
}

// waitScan waits for the scan goroutine to exit.
func (t *Transport) waitScan(timeout time.Duration) error {
	t.scanMu.Lock()
	done := t.scanDone
	t.scanMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scan did not stop: %w", transport.ErrTimeout)
	}
}

func (t *Transport) Scanning() bool {
	return t.scanning.Load()
}

// ----------------------------
// Connection
// ----------------------------

// Connect dials a device seen in the current scan by identifier or address,
// discovers the vendor service and subscribes to notifications.
func (t *Transport) Connect(ctx context.Context, target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("device address is empty")
	}
	if _, err := t.device(); err != nil {
		return err
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.connected.Load() {
		return transport.ErrAlreadyConnected
	}

	addr, ok := t.advertised.Load().Get(target)
	if !ok {
		return &transport.NotFoundError{Resource: "device", ID: target}
	}

	t.logger.WithField("address", addr.String()).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to connect to device with address %q: %w", addr.String(), NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		t.cancelClient(client)
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	notifyChar, writeChar, err := findCharacteristics(profile)
	if err != nil {
		t.cancelClient(client)
		return err
	}

	err = client.Subscribe(notifyChar, false, func(data []byte) {
		if h := t.handlers.Load(); h.Notification != nil {
			h.Notification(data)
		}
	})
	if err != nil {
		t.cancelClient(client)
		return fmt.Errorf("failed to subscribe to notifications: %w", NormalizeError(err))
	}

	linkCtx, linkCancel := context.WithCancel(context.Background())
	t.client = client
	t.notifyChar = notifyChar
	t.writeChar = writeChar
	t.linkCancel = linkCancel
	t.dropping.Store(false)
	t.connected.Store(true)

	t.monitor(linkCtx, client)

	t.logger.WithFields(logrus.Fields{
		"address":  addr.String(),
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")
	return nil
}

// findCharacteristics locates the notify and write characteristics of the
// vendor service.
func findCharacteristics(profile *ble.Profile) (notify, write *ble.Characteristic, err error) {
	for _, svc := range profile.Services {
		if !svc.UUID.Equal(serviceUUID) {
			continue
		}
		for _, c := range svc.Characteristics {
			switch {
			case c.UUID.Equal(notifyUUID):
				notify = c
			case c.UUID.Equal(writeUUID):
				write = c
			}
		}
		if notify == nil {
			return nil, nil, &transport.NotFoundError{Resource: "characteristic", ID: transport.NotifyUUID}
		}
		if write == nil {
			return nil, nil, &transport.NotFoundError{Resource: "characteristic", ID: transport.WriteUUID}
		}
		return notify, write, nil
	}
	return nil, nil, &transport.NotFoundError{Resource: "service", ID: transport.ServiceUUID}
}

// monitor reports a link drop that was not requested through Disconnect.
func (t *Transport) monitor(ctx context.Context, client ble.Client) {
	groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
		case <-ctx.Done():
			return
		}
		if t.dropping.Load() {
			return
		}

		t.connMu.Lock()
		if t.client == client {
			t.clearLink()
		}
		t.connMu.Unlock()

		t.logger.Warn("BLE stack reported disconnection")
		if h := t.handlers.Load(); h.Disconnected != nil {
			h.Disconnected(transport.ErrNotConnected)
		}
	})
}

func (t *Transport) cancelClient(client ble.Client) {
	if err := client.CancelConnection(); err != nil {
		t.logger.WithError(err).Warn("Failed to cancel connection")
	}
}

// clearLink resets link state. Callers hold connMu.
func (t *Transport) clearLink() {
	if t.linkCancel != nil {
		t.linkCancel()
	}
	t.client = nil
	t.notifyChar = nil
	t.writeChar = nil
	t.linkCancel = nil
	t.connected.Store(false)
}

// Disconnect unsubscribes and drops the link. Handlers.Disconnected is not called.
func (t *Transport) Disconnect() error {
	t.connMu.Lock()
	client, notifyChar := t.client, t.notifyChar
	if client == nil {
		t.connMu.Unlock()
		return transport.ErrNotConnected
	}
	t.dropping.Store(true)
	t.clearLink()
	t.connMu.Unlock()

	t.logger.Info("Disconnecting BLE device...")

	if notifyChar != nil {
		if err := client.Unsubscribe(notifyChar, false); err != nil {
			t.logger.WithError(err).Debug("Failed to unsubscribe during disconnect")
		}
	}
	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", NormalizeError(err))
	}
	return nil
}

func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// ----------------------------
// Writes
// ----------------------------

// Write sends data without response in ChunkSize pieces.
func (t *Transport) Write(data []byte) error {
	return t.write(data, true)
}

// WriteRequest sends data as write requests in ChunkSize pieces.
func (t *Transport) WriteRequest(data []byte) error {
	return t.write(data, false)
}

func (t *Transport) write(data []byte, noRsp bool) error {
	t.connMu.Lock()
	client, char := t.client, t.writeChar
	t.connMu.Unlock()
	if client == nil || char == nil {
		return transport.ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for _, chunk := range Chunks(data, ChunkSize) {
		if err := client.WriteCharacteristic(char, chunk, noRsp); err != nil {
			return fmt.Errorf("failed to write characteristic: %w", NormalizeError(err))
		}
	}
	return nil
}

// Chunks splits data into pieces of at most size bytes.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}

// Close stops scanning, waits for the scan to wind down and drops the link.
func (t *Transport) Close() error {
	var errs []error
	if err := t.StopScan(); err != nil {
		errs = append(errs, err)
	}
	if err := t.waitScan(scanStopTimeout); err != nil {
		errs = append(errs, err)
	}
	if t.Connected() {
		if err := t.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeError maps go-ble errors onto transport errors.
func NormalizeError(err error) error {
	return transport.NormalizeError(err)
}
