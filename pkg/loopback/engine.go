// ABOUTME: Engine owning the ring, clock, refcounts and control state of the loopback device
// ABOUTME: Reference-counted start/stop across two endpoints and two-phase reconfiguration
package loopback

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Config holds engine construction parameters. Zero values take defaults,
// except Volume and Drift where nil means default so that 0 stays configurable.
type Config struct {
	SampleRate          int
	Channels            int
	RingFrames          int
	LatencyFrames       int
	ZeroTimestampPeriod int

	Volume      *float64
	Mute        bool
	Drift       *float64
	ClockSource ClockSource

	DeviceName string
	ShowMirror bool

	HostClock HostClock
	Logger    *log.Logger
}

// Defaults
const (
	DefaultSampleRate          = 48000
	DefaultChannels            = 2
	DefaultRingFrames          = 65536
	DefaultZeroTimestampPeriod = 16384
	DefaultDeviceName          = "Loopback"
)

// Float returns a pointer to v for the optional Config fields
func Float(v float64) *float64 {
	return &v
}

func (c *Config) setDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.RingFrames == 0 {
		c.RingFrames = DefaultRingFrames
	}
	if c.ZeroTimestampPeriod == 0 {
		c.ZeroTimestampPeriod = DefaultZeroTimestampPeriod
	}
	// Copied so the engine never aliases caller memory
	if c.Volume == nil {
		c.Volume = Float(1)
	} else {
		c.Volume = Float(*c.Volume)
	}
	if c.Drift == nil {
		c.Drift = Float(DefaultDrift)
	} else {
		c.Drift = Float(*c.Drift)
	}
	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}
	if c.HostClock == nil {
		c.HostClock = MonotonicHostClock
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

func (c *Config) validate() error {
	if !IsSupportedSampleRate(c.SampleRate) {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedValue, c.SampleRate)
	}
	if c.Channels < 1 || c.RingFrames < 1 || c.LatencyFrames < 0 || c.ZeroTimestampPeriod < 1 {
		return fmt.Errorf("%w: channels %d, ring %d, latency %d, period %d",
			ErrUnsupportedValue, c.Channels, c.RingFrames, c.LatencyFrames, c.ZeroTimestampPeriod)
	}
	if math.IsNaN(*c.Volume) || math.IsNaN(*c.Drift) {
		return fmt.Errorf("%w: volume %v, drift %v", ErrUnsupportedValue, *c.Volume, *c.Drift)
	}
	if c.ClockSource != ClockFixed && c.ClockSource != ClockAdjustable {
		return fmt.Errorf("%w: clock source %d", ErrUnsupportedValue, c.ClockSource)
	}
	return nil
}

// Counters are cumulative transfer statistics
type Counters struct {
	Writes    uint64
	Reads     uint64
	Squelched uint64
	Overloads uint64
}

// Engine is the loopback device core shared by both endpoints.
//
// The state lock guards control values, refcounts and ring allocation. The clock
// has its own lock. Transfer takes neither: it loads the ring through an atomic
// pointer, so a transfer racing StopIO either completes against the ring it
// loaded or fails with ErrNotRunning. Box writers serialize on boxMu and
// persist through the host with the state lock released.
type Engine struct {
	cfg    Config
	host   Host
	logger *log.Logger
	clock  *Clock

	ring   atomic.Pointer[Ring]
	volume atomic.Uint32
	muted  atomic.Bool

	writes    atomic.Uint64
	reads     atomic.Uint64
	squelched atomic.Uint64
	overloads atomic.Uint64

	mu                  sync.Mutex
	sampleRate          int
	requestedSampleRate int
	hostTicks           float64
	adjustedTicks       float64
	clockSource         ClockSource
	drift               float64
	clients             [2]uint64
	allocations         uint64
	reconfig            reconfigSlot
	box                 Box

	boxMu sync.Mutex
}

// New creates an engine and loads persisted box state from host.
// A nil host persists nothing and applies reconfiguration requests immediately.
func New(cfg Config, host Host) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		cfg:                 cfg,
		logger:              cfg.Logger.With("component", "engine"),
		sampleRate:          cfg.SampleRate,
		requestedSampleRate: cfg.SampleRate,
		clockSource:         cfg.ClockSource,
		drift:               clamp(*cfg.Drift, 0, 1),
	}
	e.volume.Store(math.Float32bits(float32(clamp(*cfg.Volume, 0, 1))))
	e.muted.Store(cfg.Mute)
	e.host = host
	if host == nil {
		e.host = inlineHost{engine: e}
	}

	e.hostTicks = HostTicksPerFrame(e.sampleRate)
	e.adjustedTicks = DriftAdjustedTicksPerFrame(e.hostTicks, e.drift)
	e.clock = NewClock(cfg.ZeroTimestampPeriod, e.effectiveTicksLocked(), cfg.HostClock)

	e.loadBox()

	e.logger.Debug("engine created",
		"sample_rate", e.sampleRate,
		"channels", cfg.Channels,
		"ring_frames", cfg.RingFrames+cfg.LatencyFrames,
		"period", cfg.ZeroTimestampPeriod)
	return e, nil
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Channels returns the number of interleaved channels per frame
func (e *Engine) Channels() int {
	return e.cfg.Channels
}

// RingFrames returns the ring capacity including latency frames
func (e *Engine) RingFrames() int {
	return e.cfg.RingFrames + e.cfg.LatencyFrames
}

// Clock returns the virtual clock
func (e *Engine) Clock() *Clock {
	return e.clock
}

func (e *Engine) effectiveTicksLocked() float64 {
	if e.clockSource == ClockAdjustable {
		return e.adjustedTicks
	}
	return e.hostTicks
}

// recomputeTicksLocked keeps both tick rates consistent with the sample rate and drift
func (e *Engine) recomputeTicksLocked() {
	e.hostTicks = HostTicksPerFrame(e.sampleRate)
	e.adjustedTicks = DriftAdjustedTicksPerFrame(e.hostTicks, e.drift)
	e.clock.SetTicksPerFrame(e.effectiveTicksLocked())
}

// StartIO adds a running client to endpoint, allocating the ring on the first one
func (e *Engine) StartIO(endpoint Endpoint) error {
	if !endpoint.Valid() {
		return opError("start io", endpoint, ErrBadObject)
	}

	e.mu.Lock()
	if e.clients[endpoint] == math.MaxUint64 {
		e.mu.Unlock()
		return opError("start io", endpoint, fmt.Errorf("%w: too many clients", ErrIllegalOperation))
	}
	e.clients[endpoint]++
	first := e.clients[endpoint] == 1
	if e.ring.Load() == nil {
		e.clock.Reset()
		e.ring.Store(newRing(e.RingFrames(), e.cfg.Channels, e.cfg.LatencyFrames))
		e.allocations++
		e.logger.Debug("ring allocated", "frames", e.RingFrames(), "channels", e.cfg.Channels)
	}
	clients := e.clients[endpoint]
	e.mu.Unlock()

	e.logger.Debug("start io", "endpoint", endpoint, "clients", clients)
	if first {
		e.host.PropertiesChanged(endpoint.Object(), []Property{PropertyIsRunning})
	}
	return nil
}

// StopIO removes a running client from endpoint, releasing the ring after the last one
func (e *Engine) StopIO(endpoint Endpoint) error {
	if !endpoint.Valid() {
		return opError("stop io", endpoint, ErrBadObject)
	}

	e.mu.Lock()
	if e.clients[endpoint] == 0 {
		e.mu.Unlock()
		return opError("stop io", endpoint, fmt.Errorf("%w: not started", ErrIllegalOperation))
	}
	e.clients[endpoint]--
	last := e.clients[endpoint] == 0
	if e.clients[Primary] == 0 && e.clients[Mirror] == 0 {
		e.ring.Store(nil)
		e.logger.Debug("ring released")
	}
	clients := e.clients[endpoint]
	e.mu.Unlock()

	e.logger.Debug("stop io", "endpoint", endpoint, "clients", clients)
	if last {
		e.host.PropertiesChanged(endpoint.Object(), []Property{PropertyIsRunning})
	}
	return nil
}

// Close stops every client and releases the ring
func (e *Engine) Close() {
	e.mu.Lock()
	var stopped []Endpoint
	for _, ep := range Endpoints {
		if e.clients[ep] > 0 {
			stopped = append(stopped, ep)
		}
		e.clients[ep] = 0
	}
	e.ring.Store(nil)
	e.mu.Unlock()

	for _, ep := range stopped {
		e.host.PropertiesChanged(ep.Object(), []Property{PropertyIsRunning})
	}
}

// IsRunning reports whether endpoint has at least one running client
func (e *Engine) IsRunning(endpoint Endpoint) bool {
	if !endpoint.Valid() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients[endpoint] > 0
}

// Clients returns the running client count of endpoint
func (e *Engine) Clients(endpoint Endpoint) uint64 {
	if !endpoint.Valid() {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients[endpoint]
}

// Live reports whether the ring is allocated
func (e *Engine) Live() bool {
	return e.ring.Load() != nil
}

// LastWriteSampleTime returns the sample time just past the latest write, if any
func (e *Engine) LastWriteSampleTime() (int64, bool) {
	r := e.ring.Load()
	if r == nil {
		return 0, false
	}
	return r.LastWriteSampleTime()
}

// ZeroTimestamp returns the current virtual clock anchor for endpoint
func (e *Engine) ZeroTimestamp(endpoint Endpoint) (Timestamp, error) {
	if !endpoint.Valid() {
		return Timestamp{}, opError("zero timestamp", endpoint, ErrBadObject)
	}
	if e.ring.Load() == nil {
		return Timestamp{}, opError("zero timestamp", endpoint, ErrNotRunning)
	}
	return e.clock.Query(), nil
}

// Transfer moves frames between buf and the ring for one I/O cycle.
// ReadInput reads at cycle.InputTime on StreamInput; WriteMix writes at
// cycle.OutputTime on StreamOutput. buf holds frames interleaved frames.
func (e *Engine) Transfer(endpoint Endpoint, stream StreamID, dir Direction, cycle CycleInfo, frames int, buf []float32) error {
	if !endpoint.Valid() {
		return opError("transfer", endpoint, ErrBadObject)
	}
	switch {
	case dir == ReadInput && stream == StreamInput:
	case dir == WriteMix && stream == StreamOutput:
	default:
		return opError("transfer", endpoint, fmt.Errorf("%w: %s on stream %d", ErrBadObject, dir, stream))
	}

	r := e.ring.Load()
	if r == nil {
		return opError("transfer", endpoint, ErrNotRunning)
	}
	if frames <= 0 || frames > r.frames {
		return opError("transfer", endpoint, fmt.Errorf("%w: frame count %d", ErrBadObject, frames))
	}
	if len(buf) < frames*r.channels {
		return opError("transfer", endpoint, fmt.Errorf("%w: buffer holds %d samples, need %d",
			ErrBadObject, len(buf), frames*r.channels))
	}

	if dir == WriteMix {
		if err := r.write(cycle, frames, buf); err != nil {
			e.overloads.Add(1)
			return opError("transfer", endpoint, err)
		}
		e.writes.Add(1)
		return nil
	}

	volume := math.Float32frombits(e.volume.Load())
	if r.read(cycle.InputTime, frames, buf, e.muted.Load(), volume) {
		e.squelched.Add(1)
	}
	e.reads.Add(1)
	return nil
}

// Counters returns cumulative transfer statistics
func (e *Engine) Counters() Counters {
	return Counters{
		Writes:    e.writes.Load(),
		Reads:     e.reads.Load(),
		Squelched: e.squelched.Load(),
		Overloads: e.overloads.Load(),
	}
}

// SampleRate returns the applied nominal sample rate
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

// TicksPerFrame returns the host and drift-adjusted host ticks per frame
func (e *Engine) TicksPerFrame() (host, adjusted float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hostTicks, e.adjustedTicks
}

// Pending returns the most recent reconfiguration request and its state
func (e *Engine) Pending() Reconfiguration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconfig.current
}

// RequestSampleRateChange stages rate and asks the host to apply it.
// Nothing visible changes until PerformConfigurationChange.
func (e *Engine) RequestSampleRateChange(rate int) error {
	if !IsSupportedSampleRate(rate) {
		return opError("request sample rate", Primary, fmt.Errorf("%w: sample rate %d", ErrUnsupportedValue, rate))
	}

	e.mu.Lock()
	e.requestedSampleRate = rate
	if rate == e.sampleRate && !e.reconfig.pending(ActionSetSampleRate) {
		e.mu.Unlock()
		return nil
	}
	issue, err := e.reconfig.request(ActionSetSampleRate)
	e.mu.Unlock()
	if err != nil {
		return opError("request sample rate", Primary, err)
	}

	e.logger.Debug("sample rate change requested", "rate", rate, "issued", issue)
	if issue {
		e.host.RequestConfigurationChange(Primary, ActionSetSampleRate)
	}
	return nil
}

// PerformConfigurationChange applies the in-flight request for action.
// The host calls it while no transfer is running.
func (e *Engine) PerformConfigurationChange(action Action) error {
	var changes []PropertyChange

	e.mu.Lock()
	if err := e.reconfig.check(action); err != nil {
		e.mu.Unlock()
		return opError("perform", Primary, err)
	}

	switch action {
	case ActionSetSampleRate:
		rate := e.requestedSampleRate
		if !IsSupportedSampleRate(rate) {
			e.reconfig.resolve(ReconfigAborted)
			e.mu.Unlock()
			return opError("perform", Primary, fmt.Errorf("%w: sample rate %d", ErrUnsupportedValue, rate))
		}
		e.sampleRate = rate
		e.recomputeTicksLocked()
		e.clock.Reset()
		changes = append(changes,
			PropertyChange{Object: ObjectDevice, Properties: []Property{PropertyNominalSampleRate}},
			PropertyChange{Object: ObjectDeviceMirror, Properties: []Property{PropertyNominalSampleRate}})

	case ActionEnableDrift, ActionDisableDrift:
		e.clockSource = ClockFixed
		if action == ActionEnableDrift {
			e.clockSource = ClockAdjustable
		}
		e.recomputeTicksLocked()
		changes = append(changes,
			PropertyChange{Object: ObjectClockSource, Properties: []Property{PropertyCurrentItem}},
			PropertyChange{Object: ObjectDevice, Properties: []Property{PropertyControlList}})

	default:
		e.mu.Unlock()
		return opError("perform", Primary, fmt.Errorf("%w: action %s", ErrIllegalOperation, action))
	}
	e.reconfig.resolve(ReconfigApplied)
	rate, source := e.sampleRate, e.clockSource
	e.mu.Unlock()

	e.logger.Info("configuration applied", "action", action, "sample_rate", rate, "clock_source", source)
	e.notify(changes)
	return nil
}

// AbortConfigurationChange drops the in-flight request for action without mutating state
func (e *Engine) AbortConfigurationChange(action Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reconfig.check(action); err != nil {
		return opError("abort", Primary, err)
	}
	e.reconfig.resolve(ReconfigAborted)
	e.logger.Debug("configuration aborted", "action", action)
	return nil
}

func (e *Engine) notify(changes []PropertyChange) {
	for _, c := range changes {
		e.host.PropertiesChanged(c.Object, c.Properties)
	}
}

// State is a point-in-time snapshot of the engine
type State struct {
	SampleRate          int
	RequestedSampleRate int
	Channels            int
	RingFrames          int
	Volume              float64
	VolumeScalar        float64
	VolumeDecibel       float64
	Mute                bool
	Drift               float64
	ClockSource         ClockSource
	HostTicksPerFrame   float64
	AdjustedTicks       float64
	PrimaryClients      uint64
	MirrorClients       uint64
	Pending             Reconfiguration
	Box                 Box
	Counters            Counters

	// LastWriteSampleTime is valid when Written is set
	LastWriteSampleTime int64
	Written             bool
}

// State returns a snapshot of the engine
func (e *Engine) State() State {
	volume := e.Volume()
	lastWrite, written := e.LastWriteSampleTime()

	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		SampleRate:          e.sampleRate,
		RequestedSampleRate: e.requestedSampleRate,
		Channels:            e.cfg.Channels,
		RingFrames:          e.RingFrames(),
		Volume:              volume,
		VolumeScalar:        VolumeToScalar(volume),
		VolumeDecibel:       VolumeToDecibel(volume),
		Mute:                e.muted.Load(),
		Drift:               e.drift,
		ClockSource:         e.clockSource,
		HostTicksPerFrame:   e.hostTicks,
		AdjustedTicks:       e.adjustedTicks,
		PrimaryClients:      e.clients[Primary],
		MirrorClients:       e.clients[Mirror],
		Pending:             e.reconfig.current,
		Box:                 e.box,
		Counters:            e.Counters(),
		LastWriteSampleTime: lastWrite,
		Written:             written,
	}
}
