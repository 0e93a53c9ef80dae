// Package meter maintains a resilient streaming connection to a HAN
// smart-meter bridge and turns its binary telemetry frames into typed
// readings.
//
// Three pieces compose top-down:
//
//   - Manager owns the connection lifecycle: a Stopped/Starting/Running
//     state machine, idle detection with a ping probe, fixed-delay
//     reconnects, and the subscriber registry.
//   - FrameProcessor validates raw frames (0x7E delimiters, minimum
//     length, CRC-16/X-25 trailer) and emits the payload as an
//     uppercase hex token stream.
//   - Registry tries an ordered list of decoders on each token stream,
//     remembering the last successful one as a fast path. DecodeKaifa
//     is the one concrete decoder, for Kaifa MA304 meters.
//
// # Usage
//
//	manager := meter.NewManager(meter.Options{
//	    Config: cfg.Meter,
//	    Logger: logger,
//	})
//	manager.Subscribe(sub)
//	manager.Start()
//	defer manager.Stop(10 * time.Second)
//
// # Failure Model
//
// No error here is fatal to the process. Bad frames are dropped,
// undecodable frames dispatch a nil reading, and dead connections fall
// through to the retry path. The bridge is designed for unattended,
// indefinite operation.
package meter
