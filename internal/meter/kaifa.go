package meter

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Kaifa protocol constants, in hex-digit offsets into the token stream.
// These are fixed for the single supported firmware revision, not
// derived from a schema.
const (
	// kaifaControlField is the HDLC control field every frame carries.
	kaifaControlField = "10"

	// kaifaHeaderLen is the fixed header skipped before the payload.
	kaifaHeaderLen = 32

	// kaifaDataTag marks the start of the data payload.
	kaifaDataTag = "02"
)

// DecodeKaifa interprets a validated token stream as a reading from a
// Kaifa MA304 meter.
//
// Frame layout after the fixed header: a timestamp block, a data tag,
// a record-type tag, then fields at fixed offsets depending on the
// record type. Returns ErrDecodeFailed (wrapped) when the stream is not
// a recognisable Kaifa frame; no partial reading is ever returned.
func DecodeKaifa(tokens string) (*Reading, error) {
	if len(tokens) < kaifaHeaderLen+32 {
		return nil, fmt.Errorf("%w: kaifa: frame too short (%d tokens)", ErrDecodeFailed, len(tokens))
	}
	if tokens[10:12] != kaifaControlField {
		return nil, fmt.Errorf("%w: kaifa: unknown control field %q", ErrDecodeFailed, tokens[10:12])
	}

	declared, err := strconv.ParseUint(tokens[2:4], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: kaifa: bad length field: %w", ErrDecodeFailed, err)
	}
	if int(declared)*2 != len(tokens) {
		return nil, fmt.Errorf("%w: kaifa: declared length %d, actual %d", ErrDecodeFailed, declared*2, len(tokens))
	}

	buf := tokens[kaifaHeaderLen:]

	txt := buf[28:]
	if txt[:2] != kaifaDataTag {
		return nil, fmt.Errorf("%w: kaifa: unknown data tag %q", ErrDecodeFailed, txt[:2])
	}

	timestamp, err := parseKaifaTimestamp(buf)
	if err != nil {
		return nil, err
	}

	recordType := RecordType(txt[2:4])
	txt = txt[4:]

	reading := &Reading{
		Timestamp: timestamp,
		Type:      recordType,
	}

	switch recordType {
	case RecordTypePower:
		reading.Effect, err = hexUint32(txt, 2)
		if err != nil {
			return nil, err
		}

	case RecordTypeIdentity, RecordTypeEnergy:
		identity := &MeterIdentity{}

		// Three length-prefixed text fields at fixed offsets:
		// 7-byte version, 16-byte meter ID, 8-byte meter type.
		identity.Version, txt, err = hexText(txt, 4, 18)
		if err != nil {
			return nil, err
		}
		identity.MeterID, txt, err = hexText(txt, 4, 36)
		if err != nil {
			return nil, err
		}
		identity.MeterType, txt, err = hexText(txt, 4, 20)
		if err != nil {
			return nil, err
		}
		reading.Identity = identity

		reading.Effect, err = hexUint32(txt, 2)
		if err != nil {
			return nil, err
		}

		if recordType == RecordTypeEnergy {
			// Skip the effect field and a block of reactive power and
			// phase values the hourly record repeats but we don't use.
			if len(txt) < 88 {
				return nil, fmt.Errorf("%w: kaifa: truncated energy record", ErrDecodeFailed)
			}
			txt = txt[88:]

			energy := &EnergyCounters{}
			for _, counter := range []*uint32{
				&energy.ActiveImport,
				&energy.ActiveExport,
				&energy.ReactiveImport,
				&energy.ReactiveExport,
			} {
				*counter, err = hexUint32(txt, 2)
				if err != nil {
					return nil, err
				}
				txt = txt[10:]
			}
			reading.Energy = energy
		}

	default:
		return nil, fmt.Errorf("%w: kaifa: unknown record type %q", ErrDecodeFailed, recordType)
	}

	return reading, nil
}

// parseKaifaTimestamp reads the 6-field timestamp block: a 2-byte year
// then 1 byte each for month, day, weekday (skipped), hour, minute and
// second. The meter clock is local time.
func parseKaifaTimestamp(buf string) (time.Time, error) {
	year, err := strconv.ParseUint(buf[4:8], 16, 16)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: kaifa: bad year: %w", ErrDecodeFailed, err)
	}

	fields := [5]uint64{}
	for i, span := range [5][2]int{{8, 10}, {10, 12}, {14, 16}, {16, 18}, {18, 20}} {
		fields[i], err = strconv.ParseUint(buf[span[0]:span[1]], 16, 8)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: kaifa: bad timestamp field: %w", ErrDecodeFailed, err)
		}
	}
	month, day, hour, minute, second := fields[0], fields[1], fields[2], fields[3], fields[4]

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: kaifa: timestamp out of range %02d-%02d %02d:%02d:%02d",
			ErrDecodeFailed, month, day, hour, minute, second)
	}

	return time.Date(int(year), time.Month(month), int(day),
		int(hour), int(minute), int(second), 0, time.Local), nil
}

// hexUint32 parses a 4-byte big-endian integer starting at offset.
func hexUint32(s string, offset int) (uint32, error) {
	if len(s) < offset+8 {
		return 0, fmt.Errorf("%w: kaifa: truncated integer field", ErrDecodeFailed)
	}
	v, err := strconv.ParseUint(s[offset:offset+8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: kaifa: bad integer field: %w", ErrDecodeFailed, err)
	}
	return uint32(v), nil
}

// hexText decodes the hex-encoded ASCII field spanning [start, end) and
// returns the remaining token stream after the field.
func hexText(s string, start, end int) (string, string, error) {
	if len(s) < end {
		return "", "", fmt.Errorf("%w: kaifa: truncated text field", ErrDecodeFailed)
	}
	decoded, err := hex.DecodeString(s[start:end])
	if err != nil {
		return "", "", fmt.Errorf("%w: kaifa: bad text field: %w", ErrDecodeFailed, err)
	}
	return string(decoded), s[end:], nil
}
