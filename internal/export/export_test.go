package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/meter"
)

// =====================================================================
// Fakes
// =====================================================================

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu         sync.Mutex
	messages   []publishedMessage
	connected  bool
	publishErr error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.messages...)
}

func (f *fakePublisher) find(topic string) (publishedMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.topic == topic {
			return msg, true
		}
	}
	return publishedMessage{}, false
}

type fakeStore struct {
	mu       sync.Mutex
	readings []*meter.Reading
	err      error
}

func (f *fakeStore) RecordReading(_ context.Context, _ string, reading *meter.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, reading)
	return nil
}

type metricCall struct {
	name  string
	watts float64
}

type fakeMetrics struct {
	mu    sync.Mutex
	calls []metricCall
}

func (f *fakeMetrics) WritePowerMetric(_ string, _ time.Time, watts float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, metricCall{"power", watts})
}

func (f *fakeMetrics) WriteEnergyCounters(_ string, _ time.Time, activeImport, _, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, metricCall{"energy", activeImport})
}

type fakeStats struct {
	stats meter.Stats
}

func (f *fakeStats) Stats() meter.Stats {
	return f.stats
}

func powerReading(watts uint32) *meter.Reading {
	return &meter.Reading{
		Timestamp: time.Date(2026, time.March, 14, 15, 9, 26, 0, time.Local),
		Type:      meter.RecordTypePower,
		Effect:    watts,
	}
}

func energyReading() *meter.Reading {
	r := powerReading(1534)
	r.Type = meter.RecordTypeEnergy
	r.Identity = &meter.MeterIdentity{
		Version:   "KFM_001",
		MeterID:   "6970631401234567",
		MeterType: "MA304H3E",
	}
	r.Energy = &meter.EnergyCounters{
		ActiveImport:   2417476,
		ActiveExport:   0,
		ReactiveImport: 1290,
		ReactiveExport: 108608,
	}
	return r
}

// =====================================================================
// Publisher
// =====================================================================

func TestPublisherPowerReading(t *testing.T) {
	pub := &fakePublisher{connected: true}
	sink := NewPublisher("han0", 0, pub)

	sink.HandleReading(powerReading(1534))

	reading, ok := pub.find("graymeter/reading/han0")
	if !ok {
		t.Fatal("no message on reading topic")
	}
	var decoded meter.Reading
	if err := json.Unmarshal(reading.payload, &decoded); err != nil {
		t.Fatalf("unmarshalling reading payload: %v", err)
	}
	if decoded.Effect != 1534 {
		t.Errorf("Effect = %d, want 1534", decoded.Effect)
	}

	power, ok := pub.find("graymeter/power/han0")
	if !ok {
		t.Fatal("no message on power topic")
	}
	if string(power.payload) != "1534" {
		t.Errorf("power payload = %q, want 1534", power.payload)
	}

	if sink.Published() != 1 {
		t.Errorf("Published() = %d, want 1", sink.Published())
	}
	if len(pub.published()) != 2 {
		t.Errorf("published %d messages, want 2", len(pub.published()))
	}
}

func TestPublisherEnergyReading(t *testing.T) {
	pub := &fakePublisher{connected: true}
	sink := NewPublisher("han0", 2, pub)

	sink.HandleReading(energyReading())

	info, ok := pub.find("graymeter/info/han0")
	if !ok {
		t.Fatal("no message on info topic")
	}
	if !info.retained {
		t.Error("meter info should be retained")
	}
	if info.qos != 2 {
		t.Errorf("meter info qos = %d, want configured 2", info.qos)
	}
	var identity meter.MeterIdentity
	if err := json.Unmarshal(info.payload, &identity); err != nil {
		t.Fatalf("unmarshalling identity payload: %v", err)
	}
	if identity.MeterID != "6970631401234567" {
		t.Errorf("MeterID = %q, want 6970631401234567", identity.MeterID)
	}

	energy, ok := pub.find("graymeter/energy/han0")
	if !ok {
		t.Fatal("no message on energy topic")
	}
	var counters meter.EnergyCounters
	if err := json.Unmarshal(energy.payload, &counters); err != nil {
		t.Fatalf("unmarshalling energy payload: %v", err)
	}
	if counters.ActiveImport != 2417476 {
		t.Errorf("ActiveImport = %d, want 2417476", counters.ActiveImport)
	}
}

func TestPublisherSkipsNilReading(t *testing.T) {
	pub := &fakePublisher{connected: true}
	sink := NewPublisher("han0", 0, pub)

	sink.HandleReading(nil)

	if len(pub.published()) != 0 {
		t.Errorf("published %d messages, want 0", len(pub.published()))
	}
	if sink.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", sink.Skipped())
	}
}

func TestPublisherSkipsWhenDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	sink := NewPublisher("han0", 0, pub)

	sink.HandleReading(powerReading(100))

	if len(pub.published()) != 0 {
		t.Errorf("published %d messages, want 0", len(pub.published()))
	}
	if sink.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", sink.Skipped())
	}
}

func TestPublisherCountsPublishErrors(t *testing.T) {
	pub := &fakePublisher{connected: true, publishErr: errors.New("broker gone")}
	sink := NewPublisher("han0", 0, pub)

	sink.HandleReading(powerReading(100))

	if sink.Published() != 0 {
		t.Errorf("Published() = %d, want 0", sink.Published())
	}
	if sink.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", sink.Skipped())
	}
}

// =====================================================================
// Recorder
// =====================================================================

func TestRecorderPersistsReading(t *testing.T) {
	store := &fakeStore{}
	sink := NewRecorder("han0", store)

	sink.HandleReading(powerReading(1534))

	if len(store.readings) != 1 {
		t.Fatalf("store has %d readings, want 1", len(store.readings))
	}
	if store.readings[0].Effect != 1534 {
		t.Errorf("Effect = %d, want 1534", store.readings[0].Effect)
	}
	if sink.Recorded() != 1 {
		t.Errorf("Recorded() = %d, want 1", sink.Recorded())
	}
}

func TestRecorderSkipsNilReading(t *testing.T) {
	store := &fakeStore{}
	sink := NewRecorder("han0", store)

	sink.HandleReading(nil)

	if len(store.readings) != 0 {
		t.Errorf("store has %d readings, want 0", len(store.readings))
	}
}

func TestRecorderCountsFailures(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	sink := NewRecorder("han0", store)

	sink.HandleReading(powerReading(100))

	if sink.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", sink.Failed())
	}
	if sink.Recorded() != 0 {
		t.Errorf("Recorded() = %d, want 0", sink.Recorded())
	}
}

// =====================================================================
// MetricsRecorder
// =====================================================================

func TestMetricsRecorderPowerOnly(t *testing.T) {
	writer := &fakeMetrics{}
	sink := NewMetricsRecorder("han0", writer)

	sink.HandleReading(powerReading(1534))

	if len(writer.calls) != 1 {
		t.Fatalf("writer got %d calls, want 1", len(writer.calls))
	}
	if writer.calls[0].name != "power" || writer.calls[0].watts != 1534 {
		t.Errorf("call = %+v, want power 1534", writer.calls[0])
	}
}

func TestMetricsRecorderEnergyCounters(t *testing.T) {
	writer := &fakeMetrics{}
	sink := NewMetricsRecorder("han0", writer)

	sink.HandleReading(energyReading())

	if len(writer.calls) != 2 {
		t.Fatalf("writer got %d calls, want 2", len(writer.calls))
	}
	if writer.calls[1].name != "energy" || writer.calls[1].watts != 2417476 {
		t.Errorf("call = %+v, want energy 2417476", writer.calls[1])
	}
	if sink.Written() != 1 {
		t.Errorf("Written() = %d, want 1", sink.Written())
	}
}

func TestMetricsRecorderSkipsNilReading(t *testing.T) {
	writer := &fakeMetrics{}
	sink := NewMetricsRecorder("han0", writer)

	sink.HandleReading(nil)

	if len(writer.calls) != 0 {
		t.Errorf("writer got %d calls, want 0", len(writer.calls))
	}
}

// =====================================================================
// StatusReporter
// =====================================================================

func TestStatusReporterHealthy(t *testing.T) {
	pub := &fakePublisher{connected: true}
	source := &fakeStats{stats: meter.Stats{
		Connected:      true,
		State:          "running",
		FramesReceived: 42,
	}}
	reporter := NewStatusReporter(StatusReporterConfig{
		MeterID:   "han0",
		Version:   "1.0.0",
		Publisher: pub,
		Source:    source,
	})

	if err := reporter.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, ok := pub.find("graymeter/system/health")
	if !ok {
		t.Fatal("no message on health topic")
	}
	if !msg.retained {
		t.Error("status should be retained")
	}

	var status StatusMessage
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("unmarshalling status payload: %v", err)
	}
	if status.Status != StatusHealthy {
		t.Errorf("Status = %q, want %q", status.Status, StatusHealthy)
	}
	if status.MeterID != "han0" {
		t.Errorf("MeterID = %q, want han0", status.MeterID)
	}
	if status.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", status.Version)
	}
	if status.Connection.FramesReceived != 42 {
		t.Errorf("FramesReceived = %d, want 42", status.Connection.FramesReceived)
	}
	// LastActivity was never set, so the payload must not carry a
	// timestamp for it.
	if strings.Contains(string(msg.payload), "last_activity") {
		t.Errorf("payload carries last_activity with no activity yet: %s", msg.payload)
	}
}

func TestStatusReporterDegradedWhenMeterDown(t *testing.T) {
	pub := &fakePublisher{connected: true}
	source := &fakeStats{stats: meter.Stats{Connected: false, State: "stopped"}}
	reporter := NewStatusReporter(StatusReporterConfig{
		MeterID:   "han0",
		Publisher: pub,
		Source:    source,
	})

	if err := reporter.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, ok := pub.find("graymeter/system/health")
	if !ok {
		t.Fatal("no message on health topic")
	}

	var status StatusMessage
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("unmarshalling status payload: %v", err)
	}
	if status.Status != StatusDegraded {
		t.Errorf("Status = %q, want %q", status.Status, StatusDegraded)
	}
	if status.Reason == "" {
		t.Error("degraded status should carry a reason")
	}
}

func TestStatusReporterStopPublishesStopping(t *testing.T) {
	pub := &fakePublisher{connected: true}
	reporter := NewStatusReporter(StatusReporterConfig{
		MeterID:   "han0",
		Interval:  time.Hour,
		Publisher: pub,
		Source:    &fakeStats{stats: meter.Stats{Connected: true}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter.Start(ctx)
	reporter.Stop()
	reporter.Stop() // idempotent

	messages := pub.published()
	if len(messages) == 0 {
		t.Fatal("no messages published")
	}

	var status StatusMessage
	last := messages[len(messages)-1]
	if err := json.Unmarshal(last.payload, &status); err != nil {
		t.Fatalf("unmarshalling status payload: %v", err)
	}
	if status.Status != StatusStopping {
		t.Errorf("final Status = %q, want %q", status.Status, StatusStopping)
	}
}
