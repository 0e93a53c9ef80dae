package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/meter"
)

const defaultRecordTimeout = 5 * time.Second

// ReadingStore is the interface for persisting readings.
// This is typically implemented by the history.Store.
type ReadingStore interface {
	RecordReading(ctx context.Context, meterID string, reading *meter.Reading) error
}

// Recorder persists decoded readings to the history store.
type Recorder struct {
	meterID string
	store   ReadingStore
	timeout time.Duration

	recorded atomic.Uint64
	failed   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRecorder creates a history sink for the given meter.
func NewRecorder(meterID string, store ReadingStore) *Recorder {
	return &Recorder{
		meterID: meterID,
		store:   store,
		timeout: defaultRecordTimeout,
	}
}

// SetLogger sets the logger for this sink.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Recorded returns the number of readings persisted so far.
func (r *Recorder) Recorded() uint64 {
	return r.recorded.Load()
}

// Failed returns the number of readings that could not be persisted.
func (r *Recorder) Failed() uint64 {
	return r.failed.Load()
}

// HandleReading persists one decoded reading. Nil readings are skipped.
func (r *Recorder) HandleReading(reading *meter.Reading) {
	if reading == nil || r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.RecordReading(ctx, r.meterID, reading); err != nil {
		r.failed.Add(1)
		r.loggerMu.RLock()
		logger := r.logger
		r.loggerMu.RUnlock()
		if logger != nil {
			logger.Error("failed to record reading", "meter_id", r.meterID, "error", err)
		}
		return
	}
	r.recorded.Add(1)
}
