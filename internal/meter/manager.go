package meter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/infrastructure/config"
)

// State is the connection lifecycle state of a Manager.
type State int

// Lifecycle states. A Manager starts in StateStopped, moves to
// StateStarting when a connection attempt begins, StateRunning once the
// transport is open, and back to StateStopped on stop or failure.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Default connection loop tuning, overridable via config.
const (
	// defaultConnectTimeout bounds the transport dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultReceiveTimeout is the per-receive wait for a frame.
	defaultReceiveTimeout = 30 * time.Second

	// defaultIdleThreshold is how many consecutive receive timeouts are
	// tolerated before the connection is declared dead. With the 30s
	// receive timeout this is five minutes of silence.
	defaultIdleThreshold = 10

	// defaultPingTimeout is the wait for a ping reply after an idle window.
	defaultPingTimeout = 10 * time.Second

	// defaultRetryDelay is the fixed wait before a reconnect attempt.
	defaultRetryDelay = 15 * time.Second

	// stopPollInterval is how often Stop checks for a closed transport.
	stopPollInterval = 100 * time.Millisecond
)

// Stats holds operational counters for a Manager.
type Stats struct {
	FramesReceived  uint64
	ReadingsDecoded uint64
	DecodeFailures  uint64 // Frames dispatched with a nil reading
	FramesDropped   uint64 // Structurally invalid frames
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	State           string
}

// Options configures a Manager.
type Options struct {
	// Config supplies the endpoint and connection tuning. Zero tuning
	// values fall back to the package defaults.
	Config config.MeterConfig

	// Dialer opens transports to the bridge. Defaults to WebsocketDialer.
	Dialer Dialer

	// Decoders are tried in order for each validated frame.
	// Defaults to the Kaifa decoder alone.
	Decoders []DecodeFunc

	// Logger is optional.
	Logger Logger
}

// Manager owns the connection lifecycle to one meter bridge: it opens
// the transport, survives idle timeouts and dead peers via a ping probe
// and a fixed-delay retry, and fans decoded readings out to subscribers.
//
// Thread Safety:
//   - Start, Stop, Retry, Subscribe, Unsubscribe, State, IsRunning and
//     Stats are safe for concurrent use.
//   - Frame processing and subscriber dispatch happen sequentially on
//     the single connection loop goroutine.
type Manager struct {
	cfg    config.MeterConfig
	dialer Dialer

	frames   *FrameProcessor
	registry *Registry

	mu          sync.Mutex
	state       State
	transport   Transport
	subscribers []Subscriber
	retryTimer  *time.Timer

	// generation identifies the current connection attempt. A stale
	// loop (one superseded by a newer Start) must not touch shared
	// state during its cleanup.
	generation uint64

	// isRunning reports live receipt of data, distinct from the
	// lifecycle state: it turns true on the first received frame and
	// false when a connection attempt is abandoned.
	isRunning atomic.Bool

	// showConnError suppresses repeated identical connection error
	// logs until the next successful receive.
	showConnError atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for cheap reads)
	framesReceived  atomic.Uint64
	readingsDecoded atomic.Uint64
	decodeFailures  atomic.Uint64
	framesDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// NewManager creates a Manager. It does not connect; call Start.
func NewManager(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if len(opts.Decoders) == 0 {
		opts.Decoders = []DecodeFunc{DecodeKaifa}
	}

	frames := NewFrameProcessor(opts.Config.StrictChecksum)
	registry := NewRegistry(opts.Decoders...)
	if opts.Logger != nil {
		frames.SetLogger(opts.Logger)
		registry.SetLogger(opts.Logger)
	}

	m := &Manager{
		cfg:      opts.Config,
		dialer:   opts.Dialer,
		frames:   frames,
		registry: registry,
		logger:   opts.Logger,
	}
	m.showConnError.Store(true)
	return m
}

// Start launches the connection loop. No-op if already running. Any
// pending retry timer is cancelled so a fired Start and a scheduled one
// cannot race each other.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return
	}
	m.cancelRetryTimerLocked()

	// Closing the previous transport makes any in-flight loop exit;
	// bumping the generation marks that loop stale so its cleanup
	// leaves this attempt's state alone.
	m.closeTransportLocked()
	m.state = StateStarting
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.logDebug("starting connection loop", "endpoint", m.cfg.Endpoint())
	go m.run(gen)
}

// Stop cancels any pending retry, marks the manager stopped, waits up
// to timeout for the transport to close on its own, then force-closes
// it. Always returns within timeout plus one close call.
func (m *Manager) Stop(timeout time.Duration) {
	m.logDebug("stopping")

	m.mu.Lock()
	m.cancelRetryTimerLocked()
	m.state = StateStopped
	transport := m.transport
	m.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for transport != nil && !transport.Closed() && time.Now().Before(deadline) {
		time.Sleep(stopPollInterval)
	}

	m.mu.Lock()
	m.closeTransportLocked()
	m.mu.Unlock()

	m.isRunning.Store(false)
	m.logDebug("stopped")
}

// Retry schedules a Start after the configured retry delay. No-op while
// a connection attempt is starting or running, preventing duplicate
// reconnects racing an active connection. Rescheduling replaces any
// pending timer.
func (m *Manager) Retry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStarting || m.state == StateRunning {
		m.logDebug("skip retry", "state", m.state.String())
		return
	}

	m.cancelRetryTimerLocked()

	delay := m.retryDelay()
	m.retryTimer = time.AfterFunc(delay, m.Start)
	m.logInfo("reconnecting to bridge", "delay", delay.String())
}

// Subscribe registers a subscriber. Idempotent: a subscriber already
// registered is not added again.
func (m *Manager) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscribers {
		if existing == sub {
			return
		}
	}
	m.subscribers = append(m.subscribers, sub)
}

// Unsubscribe removes a subscriber. No-op if not registered.
func (m *Manager) Unsubscribe(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.subscribers {
		if existing == sub {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRunning reports whether data has been received on the current
// connection. False until the first frame arrives.
func (m *Manager) IsRunning() bool {
	return m.isRunning.Load()
}

// Stats returns a snapshot of operational counters. LastActivity is the
// zero time until the first frame arrives.
func (m *Manager) Stats() Stats {
	var lastActivity time.Time
	if ts := m.lastActivity.Load(); ts != 0 {
		lastActivity = time.Unix(ts, 0)
	}
	return Stats{
		FramesReceived:  m.framesReceived.Load(),
		ReadingsDecoded: m.readingsDecoded.Load(),
		DecodeFailures:  m.decodeFailures.Load(),
		FramesDropped:   m.framesDropped.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		ReconnectsTotal: m.reconnectsTotal.Load(),
		LastActivity:    lastActivity,
		Connected:       m.IsRunning(),
		State:           m.State().String(),
	}
}

// run is the connection loop: dial, receive until the connection dies,
// then clean up and schedule a retry unless the manager was stopped.
// The transport is closed on every exit path.
func (m *Manager) run(gen uint64) {
	transport, err := m.connect()
	if err != nil {
		if m.showConnError.Load() {
			m.logError("connection to bridge failed", err)
			m.showConnError.Store(false)
		}
		m.errorsTotal.Add(1)
		m.finishAttempt(gen, nil)
		return
	}

	m.mu.Lock()
	// Stop or a newer Start may have raced the dial; don't run against
	// their decision.
	if m.state != StateStarting || gen != m.generation {
		m.mu.Unlock()
		transport.Close()
		m.finishAttempt(gen, transport)
		return
	}
	m.transport = transport
	m.state = StateRunning
	m.mu.Unlock()

	m.logInfo("connected to bridge", "endpoint", m.cfg.Endpoint())
	m.receiveLoop(transport)
	m.finishAttempt(gen, transport)
}

// connect opens a fresh transport to the configured endpoint.
func (m *Manager) connect() (Transport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	return m.dialer.Dial(ctx, m.cfg.Endpoint())
}

// receiveLoop pulls frames until the connection is declared dead: a
// receive error, a failed liveness probe, or idle-timeout exhaustion.
func (m *Manager) receiveLoop(transport Transport) {
	idle := 0
	for m.State() == StateRunning {
		data, err := transport.Receive(m.receiveTimeout())
		switch {
		case err == nil:
			idle = 0
			m.isRunning.Store(true)
			m.processFrame(data)
			m.showConnError.Store(true)

		case errors.Is(err, ErrReceiveTimeout):
			idle++
			if idle > m.idleThreshold() {
				if m.showConnError.Load() {
					m.logError("no data from bridge, reconnecting", nil)
					m.showConnError.Store(false)
				}
				m.isRunning.Store(false)
				return
			}
			m.logDebug("no data in receive window, probing connection")
			if err := transport.Ping(m.pingTimeout()); err != nil {
				if m.showConnError.Load() {
					m.logError("no response to ping, reconnecting", err)
					m.showConnError.Store(false)
				}
				m.isRunning.Store(false)
				return
			}

		case errors.Is(err, ErrTransportClosed):
			m.logDebug("transport closed")
			return

		default:
			if m.showConnError.Load() {
				m.logError("receive failed", err)
				m.showConnError.Store(false)
			}
			m.errorsTotal.Add(1)
			return
		}
	}
}

// processFrame runs one raw message through validation, decoding and
// subscriber dispatch. Decode failure still dispatches a nil reading so
// subscribers observe every frame; structural failures are dropped.
func (m *Manager) processFrame(data []byte) {
	m.framesReceived.Add(1)
	m.lastActivity.Store(time.Now().Unix())

	tokens, err := m.frames.Process(data)
	if err != nil {
		m.framesDropped.Add(1)
		m.logError("invalid frame", err, "length", len(data))
		return
	}

	reading := m.registry.Decode(tokens)
	if reading != nil {
		m.readingsDecoded.Add(1)
	} else {
		m.decodeFailures.Add(1)
	}

	m.dispatch(reading)
}

// dispatch delivers a reading to every subscriber, sequentially in
// registration order. The subscriber slice is snapshotted under the
// lock so concurrent subscribe/unsubscribe never skips or
// double-delivers within one dispatch.
func (m *Manager) dispatch(reading *Reading) {
	m.mu.Lock()
	subscribers := make([]Subscriber, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, sub := range subscribers {
		sub.HandleReading(reading)
	}
}

// finishAttempt closes this attempt's transport and schedules a retry
// unless the manager was explicitly stopped. A stale attempt (one
// superseded by a newer Start) only closes its own transport and leaves
// the lifecycle to its successor.
func (m *Manager) finishAttempt(gen uint64, transport Transport) {
	if transport != nil {
		transport.Close()
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logDebug("superseded connection loop closed")
		return
	}
	m.closeTransportLocked()
	stopped := m.state == StateStopped
	if !stopped {
		m.state = StateStopped
	}
	m.mu.Unlock()

	m.isRunning.Store(false)

	if stopped {
		m.logDebug("connection loop closed")
		return
	}
	m.reconnectsTotal.Add(1)
	m.Retry()
}

// closeTransportLocked closes and clears the transport. Callers hold m.mu.
func (m *Manager) closeTransportLocked() {
	if m.transport == nil {
		return
	}
	m.transport.Close()
	m.transport = nil
}

// cancelRetryTimerLocked stops any pending retry. Callers hold m.mu.
func (m *Manager) cancelRetryTimerLocked() {
	if m.retryTimer == nil {
		return
	}
	m.retryTimer.Stop()
	m.retryTimer = nil
}

func (m *Manager) receiveTimeout() time.Duration {
	if m.cfg.ReceiveTimeout > 0 {
		return m.cfg.GetReceiveTimeout()
	}
	return defaultReceiveTimeout
}

func (m *Manager) pingTimeout() time.Duration {
	if m.cfg.PingTimeout > 0 {
		return m.cfg.GetPingTimeout()
	}
	return defaultPingTimeout
}

func (m *Manager) retryDelay() time.Duration {
	if m.cfg.RetryDelay > 0 {
		return m.cfg.GetRetryDelay()
	}
	return defaultRetryDelay
}

func (m *Manager) idleThreshold() int {
	if m.cfg.IdleThreshold > 0 {
		return m.cfg.IdleThreshold
	}
	return defaultIdleThreshold
}

func (m *Manager) logDebug(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (m *Manager) logInfo(msg string, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (m *Manager) logError(msg string, err error, keysAndValues ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()

	if logger == nil {
		return
	}
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	logger.Error(msg, keysAndValues...)
}
