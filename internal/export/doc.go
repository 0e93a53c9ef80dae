// Package export fans decoded meter readings out to downstream sinks.
//
// Each sink implements meter.Subscriber and is registered on the
// connection manager. Sinks are independent: a slow or failing sink
// never blocks frame reception, and a nil reading (a frame that
// validated but failed to decode) is counted and skipped rather than
// forwarded.
//
// Available sinks:
//   - Publisher: JSON readings and raw power values to MQTT topics
//   - Recorder: readings into the SQLite history store
//   - MetricsRecorder: power and energy series into InfluxDB
//
// StatusReporter is not a sink; it publishes periodic bridge health
// to MQTT from the manager's connection statistics.
package export
