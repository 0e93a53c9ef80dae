package meter

import "time"

// RecordType identifies which set of metering fields a decoded frame
// carries. Values are the raw record-type tag from the wire.
type RecordType string

// Record types emitted by Kaifa meters.
const (
	// RecordTypePower carries only the instantaneous active power.
	// Emitted roughly every 2.5 seconds.
	RecordTypePower RecordType = "01"

	// RecordTypeIdentity adds the meter identity fields to the power
	// sample. Emitted roughly every 10 seconds.
	RecordTypeIdentity RecordType = "09"

	// RecordTypeEnergy adds the four cumulative energy counters on top
	// of the identity fields. Emitted once per hour.
	RecordTypeEnergy RecordType = "0E"
)

// MeterIdentity holds the text fields identifying the meter hardware.
type MeterIdentity struct {
	// Version is the OBIS list version identifier.
	Version string `json:"version_identifier"`

	// MeterID is the GIAI GS1 meter number.
	MeterID string `json:"meter_id"`

	// MeterType is the vendor model designation.
	MeterType string `json:"meter_type"`
}

// EnergyCounters holds the hourly cumulative energy registers.
// Active values are watt-hours, reactive values are var-hours.
type EnergyCounters struct {
	ActiveImport   uint32 `json:"cumulative_hourly_active_import_energy"`
	ActiveExport   uint32 `json:"cumulative_hourly_active_export_energy"`
	ReactiveImport uint32 `json:"cumulative_hourly_reactive_import_energy"`
	ReactiveExport uint32 `json:"cumulative_hourly_reactive_export_energy"`
}

// Reading is the decoded, typed output of one successfully parsed frame.
//
// Timestamp, Type and Effect are present on every reading. Identity is
// set for record types 09 and 0E; Energy only for 0E.
type Reading struct {
	// Timestamp is the meter's own clock at emission, in local time.
	Timestamp time.Time `json:"time_stamp"`

	// Type is the record-type tag the frame carried.
	Type RecordType `json:"record_type"`

	// Effect is the instantaneous active power import in watts.
	Effect uint32 `json:"effect"`

	Identity *MeterIdentity  `json:"identity,omitempty"`
	Energy   *EnergyCounters `json:"energy,omitempty"`
}

// Subscriber receives decoded readings from a Manager.
//
// HandleReading is invoked once per processed frame, sequentially, in
// subscriber registration order. The reading is nil when a frame passed
// validation but no decoder could interpret it. A blocking subscriber
// stalls receipt of subsequent frames, so implementations must be quick
// or hand work off internally.
// Implementations must have a comparable identity (pointer receivers
// are the norm) so subscribe/unsubscribe can match them.
type Subscriber interface {
	HandleReading(reading *Reading)
}
