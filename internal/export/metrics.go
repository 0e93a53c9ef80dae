package export

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/meter"
)

// MetricsWriter is the interface for writing time-series points.
// This is typically implemented by the influxdb.Client. Writes are
// fire-and-forget; the client batches and retries internally.
type MetricsWriter interface {
	WritePowerMetric(meterID string, timestamp time.Time, watts float64)
	WriteEnergyCounters(meterID string, timestamp time.Time, activeImport, activeExport, reactiveImport, reactiveExport float64)
}

// MetricsRecorder writes decoded readings to a time-series database.
//
// Every reading contributes a power sample. Hourly energy records
// additionally write the four cumulative counters.
type MetricsRecorder struct {
	meterID string
	writer  MetricsWriter

	written atomic.Uint64
}

// NewMetricsRecorder creates a time-series sink for the given meter.
func NewMetricsRecorder(meterID string, writer MetricsWriter) *MetricsRecorder {
	return &MetricsRecorder{
		meterID: meterID,
		writer:  writer,
	}
}

// Written returns the number of readings written so far.
func (m *MetricsRecorder) Written() uint64 {
	return m.written.Load()
}

// HandleReading writes one decoded reading. Nil readings are skipped.
func (m *MetricsRecorder) HandleReading(reading *meter.Reading) {
	if reading == nil || m.writer == nil {
		return
	}

	m.writer.WritePowerMetric(m.meterID, reading.Timestamp, float64(reading.Effect))

	if reading.Energy != nil {
		m.writer.WriteEnergyCounters(m.meterID, reading.Timestamp,
			float64(reading.Energy.ActiveImport),
			float64(reading.Energy.ActiveExport),
			float64(reading.Energy.ReactiveImport),
			float64(reading.Energy.ReactiveExport),
		)
	}

	m.written.Add(1)
}
