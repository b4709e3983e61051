// Package sensor drives one WIT IMU over a BLE transport: scanning with
// autoconnect, the connection lifecycle, device configuration and polling.
//
// A Sensor is owned by a single consumer context (see package loop). Transport
// callbacks only decode frames and push QueuedEvents; every state change and
// every Output happens while the consumer drains the queue or runs a command.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/witctl/internal/devicecache"
	"github.com/srg/witctl/internal/groutine"
	"github.com/srg/witctl/internal/loop"
	"github.com/srg/witctl/internal/queue"
	"github.com/srg/witctl/internal/transport"
	"github.com/srg/witctl/internal/witproto"
)

// State is the externally visible connection state
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type linkState int

const (
	linkIdle linkState = iota
	linkConnecting
	linkConnected
	linkDisconnecting
)

// Notices reported on the status channel
const (
	NoticeNotConnected     = "not connected to device"
	NoticeNoDevice         = "no device connected"
	NoticeAlreadyConnected = "already connected; disconnect first to connect to a new device"
	NoticeClosed           = "sensor closed"
)

// Sensor is the connection/scan manager for one device
type Sensor struct {
	cfg       Config
	transport transport.Transport
	sched     loop.Scheduler
	control   *queue.Queue[QueuedEvent] // lifecycle and discovery
	telemetry *queue.Queue[QueuedEvent] // samples and register pages
	ready     chan struct{}
	reserve   int
	outlet    Outlet
	logger    *logrus.Logger
	cache     *devicecache.Cache

	ctx    context.Context
	cancel context.CancelFunc

	link          linkState
	device        string
	session       string
	attempt       uint64
	connectCancel context.CancelFunc
	rearm         Target

	scanning  bool
	scanTimer loop.Timer
	pending   Target

	mode      witproto.Mode
	axis      witproto.AxisMode
	poll      PollState
	pollTimer loop.Timer
	sequences map[*sequence]struct{}

	closed bool
}

// New creates a sensor bound to a transport. Transport handlers are installed
// immediately; outputs go to outlet.
func New(tr transport.Transport, sched loop.Scheduler, outlet Outlet, cfg Config, logger *logrus.Logger) (*Sensor, error) {
	if tr == nil {
		return nil, errors.New("transport is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if outlet == nil {
		outlet = OutletFunc(func(Output) {})
	}

	control, err := queue.New[QueuedEvent]("sensor-control", cfg.QueueCapacity, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create control queue: %w", err)
	}
	telemetry, err := queue.New[QueuedEvent]("sensor-telemetry", cfg.QueueCapacity, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry queue: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sensor{
		cfg:       cfg,
		transport: tr,
		sched:     sched,
		control:   control,
		telemetry: telemetry,
		ready:     make(chan struct{}, 1),
		reserve:   controlReserve(control.Cap()),
		outlet:    outlet,
		logger:    logger,
		cache:     devicecache.New(),
		ctx:       ctx,
		cancel:    cancel,
		axis:      witproto.Axis9,
		sequences: make(map[*sequence]struct{}),
	}

	tr.SetHandlers(transport.Handlers{
		Discovered:   s.onDiscovered,
		Notification: s.onNotification,
		Disconnected: s.onDisconnected,
		ScanStopped:  s.onScanStopped,
	})
	return s, nil
}

// ----------------------------
// Producer side (transport goroutines)
// ----------------------------

// maxControlReserve bounds the control slots kept free for lifecycle events.
const maxControlReserve = 32

func controlReserve(capacity uint32) int {
	return max(1, min(maxControlReserve, int(capacity)/4))
}

func (s *Sensor) push(q *queue.Queue[QueuedEvent], ev QueuedEvent) {
	if q.Push(ev) {
		s.wake()
	}
}

func (s *Sensor) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Advertisements repeat, so a flood of them is offered with headroom left
// for connect results and link loss, which are never crowded out.
func (s *Sensor) onDiscovered(identifier, address string) {
	if s.control.Offer(DeviceFound{Identifier: identifier, Address: address}, s.reserve) {
		s.wake()
	}
}

func (s *Sensor) onNotification(data []byte) {
	if len(data) == 0 || len(data) > witproto.MaxFrameLen {
		return
	}

	if s.cfg.LegacyFrames {
		if evs := witproto.DecodeLegacy(data); len(evs) > 0 {
			s.push(s.telemetry, ReadingsReceived{Events: evs})
		}
		return
	}

	switch witproto.Classify(data) {
	case witproto.FrameStreaming:
		if sample, ok := witproto.ParseSample(data); ok {
			s.push(s.telemetry, SampleReceived{Sample: sample})
		}
	case witproto.FrameRegister:
		if ev, ok := witproto.DecodeRegister(data); ok {
			s.push(s.telemetry, ReadingsReceived{Events: []witproto.Event{ev}})
		}
	}
}

func (s *Sensor) onDisconnected(err error) {
	s.push(s.control, LinkLost{Err: err})
}

func (s *Sensor) onScanStopped(err error) {
	s.push(s.control, ScanningChanged{Scanning: false, Err: err})
}

// ----------------------------
// Consumer side
// ----------------------------

// Ready is signalled when queued events are waiting for Drain.
func (s *Sensor) Ready() <-chan struct{} {
	return s.ready
}

// Drain handles queued events, control events first, each queue in arrival
// order. Consumer context only.
func (s *Sensor) Drain() {
	s.control.Drain(s.handle)
	s.telemetry.Drain(s.handle)
}

// QueueMetrics exposes the combined event queue counters.
func (s *Sensor) QueueMetrics() queue.Metrics {
	c, t := s.control.Metrics(), s.telemetry.Metrics()
	return queue.Metrics{
		Pushed:   c.Pushed + t.Pushed,
		Drained:  c.Drained + t.Drained,
		Dropped:  c.Dropped + t.Dropped,
		Rejected: c.Rejected + t.Rejected,
		Released: c.Released + t.Released,
	}
}

func (s *Sensor) handle(ev QueuedEvent) {
	if s.closed {
		return
	}
	switch e := ev.(type) {
	case SampleReceived:
		for _, out := range e.Sample.Events(s.mode) {
			s.emit(EventOutput(out))
		}
	case ReadingsReceived:
		for _, out := range e.Events {
			s.emit(EventOutput(out))
		}
	case DeviceFound:
		s.handleDiscovery(e)
	case ScanningChanged:
		s.handleScanning(e)
	case LinkLost:
		s.handleLinkLost(e)
	case ConnectResult:
		s.handleConnectResult(e)
	}
}

func (s *Sensor) emit(o Output) {
	s.outlet.Emit(o)
}

func (s *Sensor) notice(msg string) {
	s.logger.Info(msg)
	s.emit(status(OutNotice, msg))
}

// State returns the combined connection/scan state.
func (s *Sensor) State() State {
	switch s.link {
	case linkConnecting:
		return StateConnecting
	case linkConnected:
		return StateConnected
	case linkDisconnecting:
		return StateDisconnecting
	}
	if s.scanning {
		return StateScanning
	}
	return StateIdle
}

// Connected reports whether a link is established.
func (s *Sensor) Connected() bool { return s.link == linkConnected }

// Scanning reports whether a scan is active.
func (s *Sensor) Scanning() bool { return s.scanning }

// Device returns the identifier being connected to or connected.
func (s *Sensor) Device() string { return s.device }

// Session returns the id of the current connection, empty when not connected.
func (s *Sensor) Session() string { return s.session }

// Pending returns the pending autoconnect target.
func (s *Sensor) Pending() Target { return s.pending }

// Mode returns the active decode mode.
func (s *Sensor) Mode() witproto.Mode { return s.mode }

// Devices returns the devices discovered in the current session.
func (s *Sensor) Devices() []devicecache.Record { return s.cache.Records() }

// ----------------------------
// Scanning
// ----------------------------

// StartScan starts a new scan session: the device cache is cleared along
// with any stale autoconnect target.
func (s *Sensor) StartScan() {
	if s.refuseClosed() {
		return
	}
	s.pending = NoTarget()
	s.beginScan()
}

func (s *Sensor) beginScan() {
	s.cache.Reset()

	if !s.scanning {
		if err := s.transport.StartScan(s.ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to start scan")
			s.notice(fmt.Sprintf("scan failed: %v", err))
			return
		}
		s.scanning = true
		s.logger.WithField("timeout", s.cfg.ScanTimeout).Info("Scanning for BLE devices...")
		s.emit(status(OutScanning, 1))
	}

	s.stopTimer(&s.scanTimer)
	if s.cfg.ScanTimeout > 0 {
		s.scanTimer = s.sched.After(s.cfg.ScanTimeout, func() {
			s.scanTimer = nil
			s.logger.Debug("Scan timeout reached")
			s.StopScan()
		})
	}
}

// StopScan stops an active scan.
func (s *Sensor) StopScan() {
	s.stopTimer(&s.scanTimer)
	if !s.scanning {
		return
	}
	if err := s.transport.StopScan(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scan")
	}
	s.scanning = false
	s.emit(status(OutScanning, 0))
}

func (s *Sensor) handleScanning(e ScanningChanged) {
	if e.Err != nil && !errors.Is(e.Err, context.Canceled) {
		s.logger.WithError(e.Err).Warn("Scan ended with error")
	}
	// a report from a scan that ended before a restart is stale
	if e.Scanning || !s.scanning || s.transport.Scanning() {
		return
	}
	s.stopTimer(&s.scanTimer)
	s.scanning = false
	s.emit(status(OutScanning, 0))
}

// Results re-emits the devices found in the current session followed by the count.
func (s *Sensor) Results() {
	records := s.cache.Records()
	for _, rec := range records {
		s.emit(deviceOutput(rec))
	}
	s.emit(status(OutResults, len(records)))
}

// Reset stops scanning and forgets every discovered device.
func (s *Sensor) Reset() {
	s.StopScan()
	s.cache.Reset()
}

func deviceOutput(rec devicecache.Record) Output {
	return status(OutDevice, string(rec.Class), rec.Address, rec.Identifier)
}

func (s *Sensor) handleDiscovery(e DeviceFound) {
	rec, first := s.cache.Observe(e.Identifier, e.Address)
	if first {
		s.logger.WithFields(logrus.Fields{
			"identifier": rec.Identifier,
			"address":    rec.Address,
			"class":      rec.Class,
		}).Debug("Discovered new device")
		s.emit(deviceOutput(rec))
	}

	// every sighting is matched: a target re-armed after a failed connect
	// must be able to fire on a device that is already cached
	if !s.pending.IsSet() || s.link != linkIdle || !s.scanning {
		return
	}
	if !s.pending.Matches(rec) {
		return
	}

	s.emit(status(OutAutoconnecting, rec.Identifier))
	// cleared before the attempt resolves: one autoconnect per target
	s.pending = NoTarget()
	s.connectTo(rec, NoTarget())
}

// ----------------------------
// Connection lifecycle
// ----------------------------

// Connect connects to a cached device by identifier or address. An empty
// target picks the first cached WIT device. When nothing cached matches, the
// target is kept pending and scanning is started so discovery can connect.
func (s *Sensor) Connect(target string) {
	if s.refuseClosed() {
		return
	}
	if s.link != linkIdle {
		s.pending = NoTarget()
		s.notice(NoticeAlreadyConnected)
		return
	}

	want := ParseTarget(target)
	var candidates []devicecache.Record
	if want.IsAny() {
		candidates = s.cache.WIT()
	} else if rec, ok := s.cache.Lookup(target); ok {
		candidates = []devicecache.Record{rec}
	}

	if len(candidates) > 0 {
		s.pending = NoTarget()
		s.connectTo(candidates[0], want)
		return
	}

	s.logger.WithField("target", want.String()).Info("Starting autoconnect...")
	s.armPending(want)
}

func (s *Sensor) armPending(t Target) {
	s.pending = t
	if !s.scanning {
		s.beginScan()
	}
}

// connectTo issues the transport connect off the consumer context. rearm is
// restored as the pending target if the attempt fails.
func (s *Sensor) connectTo(rec devicecache.Record, rearm Target) {
	s.attempt++
	attempt := s.attempt
	s.link = linkConnecting
	s.device = rec.Identifier
	s.rearm = rearm

	dial := rec.Address
	if dial == "" {
		dial = rec.Identifier
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	s.connectCancel = cancel

	s.logger.WithFields(logrus.Fields{
		"identifier": rec.Identifier,
		"address":    rec.Address,
	}).Info("Connecting to device...")

	tr := s.transport
	groutine.Go(ctx, "ble-connect", func(ctx context.Context) {
		err := tr.Connect(ctx, dial)
		s.push(s.control, ConnectResult{attempt: attempt, Target: rec.Identifier, Err: err})
	})
}

func (s *Sensor) handleConnectResult(e ConnectResult) {
	if e.attempt != s.attempt || s.link != linkConnecting {
		// superseded by disconnect or close; do not leave a stray link behind
		if e.Err == nil {
			if err := s.transport.Disconnect(); err != nil {
				s.logger.WithError(err).Debug("Failed to drop superseded connection")
			}
		}
		return
	}
	if s.connectCancel != nil {
		s.connectCancel()
		s.connectCancel = nil
	}

	if e.Err != nil {
		s.link = linkIdle
		s.device = ""
		s.logger.WithFields(logrus.Fields{
			"identifier": e.Target,
			"error":      e.Err,
		}).Warn("Connect failed")
		s.notice(fmt.Sprintf("connect failed: %v", transport.NormalizeError(e.Err)))

		rearm := s.rearm
		s.rearm = NoTarget()
		if rearm.IsSet() {
			s.armPending(rearm)
		}
		return
	}

	s.link = linkConnected
	s.rearm = NoTarget()
	s.pending = NoTarget()
	s.session = newSessionID(time.Now())
	s.stopPoll(false)

	s.logger.WithFields(logrus.Fields{
		"identifier": e.Target,
		"session":    s.session,
	}).Info("Connected to device")
	s.emit(status(OutConnected, 1, s.session))

	s.configureOnConnect()
}

// configureOnConnect forces a known device configuration: 9-axis fusion,
// output mode 0, 50 Hz and 256 Hz bandwidth.
func (s *Sensor) configureOnConnect() {
	const defaultRate = 50.0
	const defaultBandwidth = 256.0
	rateCode, _ := witproto.RateCode(defaultRate)
	bwCode, _ := witproto.BandwidthCode(defaultBandwidth)

	s.runSequence(
		step{0, func() { s.write(witproto.Unlock) }},
		step{s.cfg.UnlockSettle, func() {
			s.write(witproto.SetAxis(witproto.Axis9))
			s.axis = witproto.Axis9
			s.emit(status(OutAxis, int(witproto.Axis9)))
		}},
		step{s.cfg.ConfigSpacing, func() {
			s.write(witproto.SetOutputMode(0))
			s.mode = witproto.ModeFromOutput(0)
			s.emit(status(OutOutputMode, 0))
		}},
		step{s.cfg.ConfigSpacing, func() {
			s.write(witproto.SetRate(rateCode))
			s.emit(status(OutRate, defaultRate, int(rateCode)))
		}},
		step{s.cfg.ConfigSpacing, func() {
			s.write(witproto.SetBandwidth(bwCode))
			s.emit(status(OutBandwidth, defaultBandwidth))
		}},
	)
}

// Disconnect drops the link (or abandons a connect in progress) and clears
// any pending autoconnect target.
func (s *Sensor) Disconnect() {
	s.pending = NoTarget()
	switch s.link {
	case linkConnected, linkConnecting:
	default:
		s.notice(NoticeNoDevice)
		return
	}
	s.teardownLink()
}

// teardownLink stops the scan, the poll timer and pending work before
// releasing the transport so late callbacks find nothing to act on.
func (s *Sensor) teardownLink() {
	wasConnected := s.link == linkConnected
	s.link = linkDisconnecting

	s.StopScan()
	s.stopPoll(true)
	s.pending = NoTarget()
	s.rearm = NoTarget()
	s.cancelSequences()

	if s.connectCancel != nil {
		s.connectCancel()
		s.connectCancel = nil
	}
	s.attempt++

	if wasConnected {
		if err := s.transport.Disconnect(); err != nil {
			s.logger.WithError(err).Warn("Error disconnecting from device")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"identifier": s.device,
		"session":    s.session,
	}).Info("Disconnected from device")

	s.link = linkIdle
	s.device = ""
	s.session = ""
	if wasConnected {
		s.emit(status(OutConnected, 0))
	}
}

func (s *Sensor) handleLinkLost(e LinkLost) {
	if s.link != linkConnected {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"identifier": s.device,
		"session":    s.session,
		"error":      e.Err,
	}).Warn("Device disconnected")

	s.stopPoll(true)
	s.pending = NoTarget()
	s.cancelSequences()

	s.link = linkIdle
	s.device = ""
	s.session = ""
	s.emit(status(OutConnected, 0))
}

// Close tears the sensor down: scan, poll, pending target and link in that
// order, then discards events that were never consumed.
func (s *Sensor) Close() error {
	if s.closed {
		return nil
	}
	s.StopScan()
	s.stopPoll(true)
	s.pending = NoTarget()
	if s.link != linkIdle {
		s.teardownLink()
	}
	s.cancelSequences()
	s.closed = true
	s.cancel()

	s.control.Close()
	s.telemetry.Close()
	if n := s.control.Discard(nil) + s.telemetry.Discard(nil); n > 0 {
		s.logger.WithField("events", n).Debug("Discarded unconsumed events")
	}
	return s.transport.Close()
}

func (s *Sensor) refuseClosed() bool {
	if s.closed {
		s.logger.Warn(NoticeClosed)
		return true
	}
	return false
}

func (s *Sensor) stopTimer(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func newSessionID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
