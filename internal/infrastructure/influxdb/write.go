package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePowerMetric records an instantaneous power sample from a meter.
//
// The write is non-blocking; data is batched and sent asynchronously.
// The timestamp is the meter's own clock from the decoded frame, not the
// time the bridge received it.
//
// Parameters:
//   - meterID: Identifier for the meter (e.g., "meter-001")
//   - timestamp: Meter clock time of the sample
//   - watts: Active power import in watts
//
// Example:
//
//	client.WritePowerMetric("meter-001", reading.Timestamp, 1534)
func (c *Client) WritePowerMetric(meterID string, timestamp time.Time, watts float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power",
		map[string]string{
			"meter_id": meterID,
		},
		map[string]interface{}{
			"watts": watts,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyCounters records hourly cumulative energy counters from a meter.
//
// Kaifa meters emit the four cumulative registers once per hour. Values
// are in watt-hours as read from the meter.
//
// Parameters:
//   - meterID: Identifier for the meter
//   - timestamp: Meter clock time of the hourly record
//   - activeImport, activeExport: Cumulative active energy (Wh)
//   - reactiveImport, reactiveExport: Cumulative reactive energy (varh)
func (c *Client) WriteEnergyCounters(meterID string, timestamp time.Time, activeImport, activeExport, reactiveImport, reactiveExport float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"meter_id": meterID,
		},
		map[string]interface{}{
			"active_import_wh":   activeImport,
			"active_export_wh":   activeExport,
			"reactive_import_wh": reactiveImport,
			"reactive_export_wh": reactiveExport,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeMetric records a bridge health indicator.
//
// Used for operational metrics like frames received, decode failures,
// and reconnect counts.
//
// Parameters:
//   - meterID: Identifier for the meter the bridge serves
//   - metricName: Metric name (e.g., "frames_received", "reconnects")
//   - value: The metric value
func (c *Client) WriteBridgeMetric(meterID string, metricName string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge",
		map[string]string{
			"meter_id": meterID,
			"metric":   metricName,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
