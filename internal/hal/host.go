// ABOUTME: Software host implementing the engine's Host interface
// ABOUTME: Property fan-out, persisted values and the configuration change worker
package hal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/loopback-go/pkg/loopback"
)

const (
	// DefaultBufferFrames is the I/O cycle size
	DefaultBufferFrames = 512

	subscriberBuffer = 64
	requestBuffer    = 16
)

// Storage persists host values across restarts
type Storage interface {
	Read(key string) (value any, ok bool, err error)
	Write(key string, value any) error
}

// Config holds host configuration
type Config struct {
	// BufferFrames is the number of frames moved per I/O cycle
	BufferFrames int
	// SafetyOffset is how far ahead of the current sample time writes land
	SafetyOffset int
	// Storage persists box values. Nil keeps them in memory.
	Storage Storage
	// OnRunning is called inline when an endpoint starts or stops
	OnRunning func(endpoint loopback.Endpoint, running bool)
	Logger    *log.Logger
}

// Notification is a property change delivered to subscribers
type Notification struct {
	Object     loopback.ObjectID
	Properties []loopback.Property
}

type configRequest struct {
	endpoint loopback.Endpoint
	action   loopback.Action
}

// Host drives a loopback engine
type Host struct {
	config Config
	engine *loopback.Engine
	logger *log.Logger
	now    loopback.HostClock

	memMu  sync.Mutex
	memory map[string]any

	subMu       sync.Mutex
	subscribers map[int]chan Notification
	nextSub     int

	requests chan configRequest

	// attachMu serializes StartIO/StopIO so running notifications arrive in order
	attachMu  sync.Mutex
	clientsMu sync.RWMutex
	producers map[ClientID]*attachment
	consumers map[ClientID]*attachment
	nextID    atomic.Uint64

	// cycleMu is held for the duration of each I/O cycle and each performed change
	cycleMu   sync.Mutex
	cycleTime int64
	synced    bool
	mixBuf    []float32
	readBuf   []float32

	stats         stats
	overloadLimit *rate.Limiter

	closing  atomic.Bool
	started  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the engine and the host driving it
func New(engineConfig loopback.Config, config Config) (*Host, error) {
	if config.BufferFrames == 0 {
		config.BufferFrames = DefaultBufferFrames
	}
	if config.SafetyOffset == 0 {
		config.SafetyOffset = config.BufferFrames
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if engineConfig.Logger == nil {
		engineConfig.Logger = config.Logger
	}
	if config.BufferFrames < 1 || config.SafetyOffset < 0 {
		return nil, fmt.Errorf("invalid buffer frames %d or safety offset %d", config.BufferFrames, config.SafetyOffset)
	}

	h := &Host{
		config:        config,
		logger:        config.Logger.With("component", "hal"),
		memory:        make(map[string]any),
		subscribers:   make(map[int]chan Notification),
		requests:      make(chan configRequest, requestBuffer),
		producers:     make(map[ClientID]*attachment),
		consumers:     make(map[ClientID]*attachment),
		overloadLimit: rate.NewLimiter(rate.Every(time.Second), 1),
		stopChan:      make(chan struct{}),
	}

	engine, err := loopback.New(engineConfig, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if config.BufferFrames > engine.RingFrames() {
		return nil, fmt.Errorf("buffer frames %d exceed ring capacity %d", config.BufferFrames, engine.RingFrames())
	}
	h.engine = engine
	h.now = engine.Config().HostClock

	samples := config.BufferFrames * engine.Channels()
	h.mixBuf = make([]float32, samples)
	h.readBuf = make([]float32, samples)
	return h, nil
}

// Engine returns the driven engine
func (h *Host) Engine() *loopback.Engine {
	return h.engine
}

// Config returns the host configuration
func (h *Host) Config() Config {
	return h.config
}

// Start runs the cycle loop and the configuration worker
func (h *Host) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	h.logger.Info("host starting",
		"buffer_frames", h.config.BufferFrames,
		"safety_offset", h.config.SafetyOffset,
		"sample_rate", h.engine.SampleRate())

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
	go func() {
		defer h.wg.Done()
		h.configWorker()
	}()
}

// Close stops cycles, aborts pending changes, detaches every client and closes the engine
func (h *Host) Close() {
	h.stopOnce.Do(func() {
		h.closing.Store(true)
		close(h.stopChan)
		h.wg.Wait()
		h.drainRequests()

		h.clientsMu.Lock()
		ids := make([]ClientID, 0, len(h.producers)+len(h.consumers))
		for id := range h.producers {
			ids = append(ids, id)
		}
		for id := range h.consumers {
			ids = append(ids, id)
		}
		h.clientsMu.Unlock()
		for _, id := range ids {
			h.Detach(id)
		}

		h.engine.Close()

		h.subMu.Lock()
		for id, ch := range h.subscribers {
			close(ch)
			delete(h.subscribers, id)
		}
		h.subMu.Unlock()
		h.logger.Info("host stopped")
	})
}

// PropertiesChanged fans the change out to subscribers
func (h *Host) PropertiesChanged(object loopback.ObjectID, changed []loopback.Property) {
	h.logger.Debug("properties changed", "object", object, "properties", changed)

	if h.config.OnRunning != nil && h.engine != nil {
		for _, p := range changed {
			if p != loopback.PropertyIsRunning {
				continue
			}
			ep := loopback.Primary
			if object == loopback.ObjectDeviceMirror {
				ep = loopback.Mirror
			}
			h.config.OnRunning(ep, h.engine.IsRunning(ep))
		}
	}

	n := Notification{Object: object, Properties: changed}
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			// Slow subscriber, drop
		}
	}
}

// Subscribe returns a channel of property changes and a function that cancels it
func (h *Host) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, subscriberBuffer)

	h.subMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = ch
	h.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			defer h.subMu.Unlock()
			if _, ok := h.subscribers[id]; ok {
				close(ch)
				delete(h.subscribers, id)
			}
		})
	}
}

// RequestConfigurationChange queues action for the configuration worker
func (h *Host) RequestConfigurationChange(endpoint loopback.Endpoint, action loopback.Action) {
	req := configRequest{endpoint: endpoint, action: action}
	if h.closing.Load() || !h.started.Load() {
		h.logger.Warn("configuration change requested while host is not running, aborting", "action", action)
		h.abort(req)
		return
	}

	select {
	case h.requests <- req:
	default:
		h.logger.Error("configuration queue full, aborting", "action", action)
		h.abort(req)
	}
}

func (h *Host) abort(req configRequest) {
	if err := h.engine.AbortConfigurationChange(req.action); err != nil {
		h.logger.Debug("abort failed", "action", req.action, "error", err)
	}
}

func (h *Host) configWorker() {
	for {
		select {
		case req := <-h.requests:
			h.perform(req)
		case <-h.stopChan:
			return
		}
	}
}

// perform applies req with every I/O cycle paused
func (h *Host) perform(req configRequest) {
	h.cycleMu.Lock()
	defer h.cycleMu.Unlock()

	if h.closing.Load() {
		h.abort(req)
		return
	}

	err := h.engine.PerformConfigurationChange(req.action)
	if err != nil {
		h.logger.Error("configuration change failed", "action", req.action, "error", err)
		return
	}
	// The anchor may have moved, so the next cycle starts from the clock again
	h.synced = false
	h.stats.reconfigurations.Add(1)
}

func (h *Host) drainRequests() {
	for {
		select {
		case req := <-h.requests:
			h.abort(req)
		default:
			return
		}
	}
}

// ReadPersistedValue reads key from storage
func (h *Host) ReadPersistedValue(key string) (any, bool, error) {
	if h.config.Storage != nil {
		return h.config.Storage.Read(key)
	}
	h.memMu.Lock()
	defer h.memMu.Unlock()
	v, ok := h.memory[key]
	return v, ok, nil
}

// WritePersistedValue writes key to storage
func (h *Host) WritePersistedValue(key string, value any) error {
	if h.config.Storage != nil {
		if err := h.config.Storage.Write(key, value); err != nil {
			return fmt.Errorf("failed to persist %q: %w", key, err)
		}
		return nil
	}
	h.memMu.Lock()
	defer h.memMu.Unlock()
	h.memory[key] = value
	return nil
}

// ErrClosed is returned when attaching to a closed host
var ErrClosed = errors.New("host closed")
