package meter

import "sync"

// DecodeFunc attempts to interpret a validated token stream as a typed
// reading. A non-nil error means this decoder does not recognise the
// frame; the registry will try the next candidate.
type DecodeFunc func(tokens string) (*Reading, error)

// Registry holds an ordered list of decoders and remembers which one
// succeeded last. The last-successful decoder is tried first on each
// frame, a cheap fast path since consecutive frames from one meter
// almost always share a format.
//
// Decode is only ever called from the Manager's connection loop, so the
// last-successful index needs no locking.
type Registry struct {
	decoders []DecodeFunc
	last     int

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRegistry creates a Registry with decoders tried in the given order.
// The last-successful pointer starts at the first decoder.
func NewRegistry(decoders ...DecodeFunc) *Registry {
	return &Registry{decoders: decoders}
}

// SetLogger sets an optional logger for decode diagnostics.
func (r *Registry) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Decode runs the token stream through the registered decoders and
// returns the first successful reading. Returns nil when no decoder
// recognises the frame; callers still dispatch the nil reading so
// subscribers observe every processed frame.
func (r *Registry) Decode(tokens string) *Reading {
	if len(r.decoders) == 0 {
		return nil
	}

	// Fast path: the decoder that handled the previous frame.
	reading, err := r.decoders[r.last](tokens)
	if err == nil {
		return reading
	}

	for i, decode := range r.decoders {
		if i == r.last {
			continue
		}
		reading, err = decode(tokens)
		if err == nil {
			r.last = i
			return reading
		}
	}

	r.logDebug("no decoder recognised frame", "error", err, "tokens", len(tokens))
	return nil
}

func (r *Registry) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
