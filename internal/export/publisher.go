package export

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-meter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-meter-core/internal/meter"
)

// Logger is the minimal logging interface for export sinks.
// Implemented by the logging package's Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MessagePublisher is the interface for publishing MQTT messages.
// This is typically implemented by the mqtt.Client.
type MessagePublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Publisher forwards decoded readings to MQTT.
//
// Every reading is published as JSON on the reading topic. Power
// records additionally publish the raw watt value on the power topic,
// identity records publish retained meter info, and hourly energy
// records publish the cumulative counters.
type Publisher struct {
	meterID   string
	qos       byte
	publisher MessagePublisher
	topics    mqtt.Topics

	published atomic.Uint64
	skipped   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates an MQTT sink for the given meter.
//
// Parameters:
//   - meterID: Identifier used in topic paths and payloads
//   - qos: MQTT QoS level for reading publishes (0, 1, or 2)
//   - publisher: The MQTT client
func NewPublisher(meterID string, qos byte, publisher MessagePublisher) *Publisher {
	return &Publisher{
		meterID:   meterID,
		qos:       qos,
		publisher: publisher,
	}
}

// SetLogger sets the logger for this sink.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Published returns the number of readings published so far.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Skipped returns the number of readings that could not be published.
func (p *Publisher) Skipped() uint64 {
	return p.skipped.Load()
}

// HandleReading publishes one decoded reading.
// A nil reading or a disconnected broker is counted as skipped.
func (p *Publisher) HandleReading(reading *meter.Reading) {
	if reading == nil {
		p.skipped.Add(1)
		return
	}
	if p.publisher == nil || !p.publisher.IsConnected() {
		p.skipped.Add(1)
		p.logDebug("broker disconnected, reading dropped", "meter_id", p.meterID)
		return
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		p.skipped.Add(1)
		p.logError("failed to marshal reading", err)
		return
	}

	if err := p.publisher.Publish(p.topics.Reading(p.meterID), payload, p.qos, false); err != nil {
		p.skipped.Add(1)
		p.logError("failed to publish reading", err)
		return
	}
	p.published.Add(1)

	// Raw watt value for consumers that don't want JSON
	watts := strconv.FormatUint(uint64(reading.Effect), 10)
	if err := p.publisher.Publish(p.topics.PowerUsage(p.meterID), []byte(watts), p.qos, false); err != nil {
		p.logError("failed to publish power value", err)
	}

	if reading.Identity != nil {
		p.publishIdentity(reading.Identity)
	}
	if reading.Energy != nil {
		p.publishEnergy(reading)
	}
}

// publishIdentity publishes meter identification, retained so late
// subscribers see it without waiting for the next identity record.
func (p *Publisher) publishIdentity(identity *meter.MeterIdentity) {
	payload, err := json.Marshal(identity)
	if err != nil {
		p.logError("failed to marshal identity", err)
		return
	}
	if err := p.publisher.Publish(p.topics.MeterInfo(p.meterID), payload, p.qos, true); err != nil {
		p.logError("failed to publish meter info", err)
	}
}

// publishEnergy publishes the hourly cumulative counters.
func (p *Publisher) publishEnergy(reading *meter.Reading) {
	payload, err := json.Marshal(reading.Energy)
	if err != nil {
		p.logError("failed to marshal energy counters", err)
		return
	}
	if err := p.publisher.Publish(p.topics.EnergyCounters(p.meterID), payload, p.qos, false); err != nil {
		p.logError("failed to publish energy counters", err)
	}
}

func (p *Publisher) logDebug(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (p *Publisher) logError(msg string, err error) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
