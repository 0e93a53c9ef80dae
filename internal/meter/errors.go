package meter

import "errors"

// Domain errors for the meter package.
var (
	// ErrConnectionFailed is returned when opening a transport to the
	// meter bridge fails.
	ErrConnectionFailed = errors.New("meter: connection to bridge failed")

	// ErrTransportClosed is returned by transport operations after the
	// connection has been closed, locally or by the peer.
	ErrTransportClosed = errors.New("meter: transport closed")

	// ErrReceiveTimeout is returned when no message arrives within the
	// receive wait interval.
	ErrReceiveTimeout = errors.New("meter: receive timed out")

	// ErrPingTimeout is returned when a liveness probe gets no reply
	// within its wait interval.
	ErrPingTimeout = errors.New("meter: ping timed out")

	// ErrInvalidFrame is returned when a raw message fails structural
	// validation (delimiters, minimum length).
	ErrInvalidFrame = errors.New("meter: invalid frame")

	// ErrChecksumMismatch is returned in strict mode when the frame
	// trailer does not match the computed CRC.
	ErrChecksumMismatch = errors.New("meter: checksum mismatch")

	// ErrDecodeFailed is returned when a decoder cannot interpret a
	// token stream. The registry treats this as "try the next decoder",
	// not as a hard failure.
	ErrDecodeFailed = errors.New("meter: decode failed")
)
