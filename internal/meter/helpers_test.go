package meter

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

// Canonical test fixtures for a Kaifa MA304.
var (
	testTimestamp = time.Date(2026, time.March, 14, 15, 9, 26, 0, time.Local)
	testIdentity  = MeterIdentity{
		Version:   "KFM_001",
		MeterID:   "6970631401234567",
		MeterType: "MA304H3E",
	}
	testEnergy = EnergyCounters{
		ActiveImport:   2417476,
		ActiveExport:   0,
		ReactiveImport: 1290,
		ReactiveExport: 108608,
	}
)

// buildKaifaPayload constructs the delimiter- and trailer-stripped
// payload of a frame carrying the given record type, with the length
// byte covering exactly this payload.
func buildKaifaPayload(t *testing.T, recordType RecordType, ts time.Time, effect uint32, identity *MeterIdentity, energy *EnergyCounters) []byte {
	t.Helper()

	// Fixed 16-byte header: address, length (patched below), HDLC
	// control 0x10 at byte 5, filler for the rest.
	payload := []byte{
		0xA0, 0x00, 0x01, 0x02, 0x01, 0x10, 0x5A, 0x87,
		0xE6, 0xE7, 0x00, 0x0F, 0x00, 0x00, 0x00, 0x00,
	}

	// Timestamp block: tag, length, 2-byte year, month, day, weekday,
	// hour, minute, second, then deviation and status filler.
	payload = append(payload, 0x09, 0x0C)
	payload = append(payload,
		byte(ts.Year()>>8), byte(ts.Year()),
		byte(ts.Month()), byte(ts.Day()), byte(ts.Weekday()),
		byte(ts.Hour()), byte(ts.Minute()), byte(ts.Second()),
	)
	payload = append(payload, 0xFF, 0x80, 0x00, 0x00)

	// Data tag and record type.
	payload = append(payload, 0x02, recordTypeByte(t, recordType))

	appendUint32 := func(tag byte, v uint32) {
		payload = append(payload, tag, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	appendText := func(lengthByte byte, text string) {
		payload = append(payload, 0x09, lengthByte)
		payload = append(payload, []byte(text)...)
	}

	switch recordType {
	case RecordTypePower:
		appendUint32(0x06, effect)

	case RecordTypeIdentity, RecordTypeEnergy:
		if identity == nil {
			identity = &testIdentity
		}
		appendText(0x07, identity.Version)
		appendText(0x10, identity.MeterID)
		appendText(0x08, identity.MeterType)
		appendUint32(0x06, effect)

		if recordType == RecordTypeEnergy {
			if energy == nil {
				energy = &testEnergy
			}
			// The hourly record repeats reactive power and phase
			// values the decoder skips: 39 bytes of filler.
			payload = append(payload, make([]byte, 39)...)
			appendUint32(0x06, energy.ActiveImport)
			appendUint32(0x06, energy.ActiveExport)
			appendUint32(0x06, energy.ReactiveImport)
			appendUint32(0x06, energy.ReactiveExport)
		}

	default:
		// Unknown record types carry an arbitrary body.
		appendUint32(0x06, effect)
	}

	if len(payload) > 0xFF {
		t.Fatalf("payload too long for length byte: %d", len(payload))
	}
	payload[1] = byte(len(payload))
	return payload
}

// buildKaifaTokens returns the token-stream form of a payload, as
// FrameProcessor would emit it.
func buildKaifaTokens(t *testing.T, recordType RecordType, ts time.Time, effect uint32, identity *MeterIdentity, energy *EnergyCounters) string {
	t.Helper()
	payload := buildKaifaPayload(t, recordType, ts, effect, identity, energy)
	return strings.ToUpper(hex.EncodeToString(payload))
}

// buildFrame wraps a payload in delimiters and a valid CRC trailer.
func buildFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	crc := Checksum(payload)
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, frameDelimiter)
	frame = append(frame, payload...)
	frame = append(frame, byte(crc), byte(crc>>8))
	frame = append(frame, frameDelimiter)
	return frame
}

func recordTypeByte(t *testing.T, recordType RecordType) byte {
	t.Helper()
	b, err := hex.DecodeString(string(recordType))
	if err != nil || len(b) != 1 {
		t.Fatalf("bad record type %q", recordType)
	}
	return b[0]
}

// waitFor polls cond every 10ms until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
