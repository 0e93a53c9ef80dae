package meter

import (
	"context"
	"time"
)

// Transport is one duplex connection to the meter bridge.
//
// Implementations own their underlying connection exclusively. Close is
// idempotent and safe to call from any goroutine; the other methods are
// only ever called from the Manager's connection loop.
type Transport interface {
	// Receive waits up to timeout for the next inbound message.
	// Returns ErrReceiveTimeout when nothing arrives in time and
	// ErrTransportClosed once the connection is gone.
	Receive(timeout time.Duration) ([]byte, error)

	// Ping sends a liveness probe and waits up to timeout for the
	// reply. Returns ErrPingTimeout when no reply arrives.
	Ping(timeout time.Duration) error

	// Close tears the connection down. Idempotent.
	Close() error

	// Closed reports whether the connection has been torn down.
	Closed() bool
}

// Dialer opens transports to a meter bridge endpoint. The Manager
// creates a fresh transport for every connection attempt.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// Logger is the optional structured logger accepted by this package's
// components. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
