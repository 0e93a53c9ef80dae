package export

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-meter-core/internal/meter"
)

const defaultStatusInterval = 30 * time.Second

// Status describes the overall bridge condition.
type Status string

const (
	// StatusHealthy indicates the bridge is connected and decoding frames.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates the bridge is running but a dependency
	// (meter stream or broker) is down.
	StatusDegraded Status = "degraded"

	// StatusStopping indicates the bridge is shutting down.
	StatusStopping Status = "stopping"
)

// StatusMessage is the JSON health payload published to the broker.
type StatusMessage struct {
	MeterID       string `json:"meter_id"`
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	// Timestamp is when this message was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Connection mirrors the manager's counters at publish time.
	Connection ConnectionStats `json:"connection"`
}

// ConnectionStats is the meter connection portion of a status message.
type ConnectionStats struct {
	State           string    `json:"state"`
	Connected       bool      `json:"connected"`
	FramesReceived  uint64    `json:"frames_received"`
	ReadingsDecoded uint64    `json:"readings_decoded"`
	DecodeFailures  uint64    `json:"decode_failures"`
	FramesDropped   uint64    `json:"frames_dropped"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity,omitzero"`
}

// StatsSource provides connection statistics.
// This is typically implemented by the meter.Manager.
type StatsSource interface {
	Stats() meter.Stats
}

// StatusReporter publishes periodic bridge health to MQTT.
//
// It samples the connection manager's counters on each tick and
// publishes a retained status message, so dashboards see the last
// known state even between intervals.
type StatusReporter struct {
	meterID   string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher MessagePublisher
	source    StatsSource
	topics    mqtt.Topics

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// StatusReporterConfig holds configuration for the status reporter.
type StatusReporterConfig struct {
	// MeterID identifies the meter in status payloads.
	MeterID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish status. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher MessagePublisher

	// Source provides connection statistics, usually the manager.
	Source StatsSource
}

// NewStatusReporter creates a status reporter.
// Call Start to begin reporting and Stop to shut down.
func NewStatusReporter(cfg StatusReporterConfig) *StatusReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultStatusInterval
	}

	return &StatusReporter{
		meterID:   cfg.MeterID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (r *StatusReporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Start begins periodic status reporting.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (r *StatusReporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop gracefully stops status reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times.
func (r *StatusReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		r.publishStatus(StatusStopping, "bridge shutting down")
	})
}

// PublishNow publishes the current status immediately.
// Useful for forcing an update after a significant event.
func (r *StatusReporter) PublishNow() error {
	status, reason := r.determineStatus()
	return r.publishStatus(status, reason)
}

// reportLoop runs the periodic status reporting.
func (r *StatusReporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish initial status", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.PublishNow(); err != nil {
				r.logError("failed to publish status", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge condition.
func (r *StatusReporter) determineStatus() (Status, string) {
	if r.publisher == nil || !r.publisher.IsConnected() {
		return StatusDegraded, "MQTT disconnected"
	}
	if r.source == nil || !r.source.Stats().Connected {
		return StatusDegraded, "meter stream disconnected"
	}
	return StatusHealthy, ""
}

// publishStatus publishes a retained status message.
func (r *StatusReporter) publishStatus(status Status, reason string) error {
	if r.publisher == nil {
		return nil
	}

	msg := StatusMessage{
		MeterID:       r.meterID,
		Status:        status,
		Reason:        reason,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	}

	if r.source != nil {
		stats := r.source.Stats()
		msg.Connection = ConnectionStats{
			State:           stats.State,
			Connected:       stats.Connected,
			FramesReceived:  stats.FramesReceived,
			ReadingsDecoded: stats.ReadingsDecoded,
			DecodeFailures:  stats.DecodeFailures,
			FramesDropped:   stats.FramesDropped,
			ErrorsTotal:     stats.ErrorsTotal,
			ReconnectsTotal: stats.ReconnectsTotal,
			LastActivity:    stats.LastActivity,
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return r.publisher.Publish(r.topics.SystemHealth(), payload, 1, true)
}

func (r *StatusReporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
