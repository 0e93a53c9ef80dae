// Package influxdb provides InfluxDB connectivity for meter telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, metric writing, and health monitoring tailored to the
// reading pipeline.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Instantaneous power samples (every ~2.5s from the meter)
//   - Hourly cumulative energy counters
//   - Bridge operational metrics
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graymeter",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePowerMetric("han0", reading.Timestamp, 1534)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for the meter's 2.5-second sample cadence.
package influxdb
