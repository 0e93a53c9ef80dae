package meter

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// Frame structure constants.
const (
	// frameDelimiter opens and closes every frame on the wire.
	frameDelimiter = 0x7E

	// minFrameLength is the smallest structurally valid frame:
	// two delimiters, two checksum bytes, and a non-trivial payload.
	minFrameLength = 9

	// checksumLength is the size of the CRC trailer in bytes.
	checksumLength = 2
)

// FrameProcessor validates raw frames and converts them to the token
// form consumed by decoders.
//
// Validation is structural (delimiters, minimum length) plus a CRC
// check. A checksum mismatch is advisory by default: serial-to-network
// bridges are noisy enough that dropping every bad-CRC frame loses real
// data. Strict mode rejects them instead.
type FrameProcessor struct {
	strict bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewFrameProcessor creates a FrameProcessor.
//
// When strict is true, frames with a bad CRC trailer are rejected
// instead of decoded anyway.
func NewFrameProcessor(strict bool) *FrameProcessor {
	return &FrameProcessor{strict: strict}
}

// SetLogger sets an optional logger for validation diagnostics.
func (p *FrameProcessor) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Process validates one raw frame and returns its payload as an
// uppercase hexadecimal token stream with the delimiters and checksum
// trailer stripped.
//
// Returns ErrInvalidFrame for structural failures, and
// ErrChecksumMismatch for CRC failures in strict mode only.
func (p *FrameProcessor) Process(raw []byte) (string, error) {
	if len(raw) < minFrameLength {
		return "", fmt.Errorf("%w: length %d below minimum %d", ErrInvalidFrame, len(raw), minFrameLength)
	}
	if raw[0] != frameDelimiter || raw[len(raw)-1] != frameDelimiter {
		return "", fmt.Errorf("%w: missing frame delimiters", ErrInvalidFrame)
	}

	// Strip delimiters, then split payload from the CRC trailer.
	payload := raw[1 : len(raw)-1]
	body := payload[:len(payload)-checksumLength]
	trailer := binary.LittleEndian.Uint16(payload[len(payload)-checksumLength:])

	if computed := Checksum(body); computed != trailer {
		if p.strict {
			return "", fmt.Errorf("%w: computed %04X, trailer %04X", ErrChecksumMismatch, computed, trailer)
		}
		p.logWarn("checksum mismatch, decoding anyway",
			"computed", fmt.Sprintf("%04X", computed),
			"trailer", fmt.Sprintf("%04X", trailer))
	}

	return strings.ToUpper(hex.EncodeToString(body)), nil
}

func (p *FrameProcessor) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
