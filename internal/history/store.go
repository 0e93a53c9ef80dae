package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-meter-core/internal/meter"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Entry is one persisted reading.
type Entry struct {
	ID        int64
	MeterID   string
	Reading   meter.Reading
	CreatedAt time.Time
}

// Store persists decoded readings in the readings table.
//
// It keeps the full reading as JSON plus hot columns (record type,
// effect) for filtering without unmarshalling.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordReading inserts one decoded reading.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - meterID: Identifier of the meter the reading came from
//   - reading: The decoded reading; must not be nil
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) RecordReading(ctx context.Context, meterID string, reading *meter.Reading) error {
	if meterID == "" {
		return fmt.Errorf("meter id is required")
	}
	if reading == nil {
		return fmt.Errorf("reading is required")
	}

	readingJSON, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshalling reading: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO readings (meter_id, record_type, effect, reading) VALUES (?, ?, ?, ?)",
		meterID,
		string(reading.Type),
		reading.Effect,
		string(readingJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	return nil
}

// Recent returns the newest readings for a meter, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - meterID: Identifier of the meter
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: Entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (s *Store) Recent(ctx context.Context, meterID string, limit int) ([]Entry, error) {
	if meterID == "" {
		return nil, fmt.Errorf("meter id is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meter_id, reading, created_at
		 FROM readings
		 WHERE meter_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		meterID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var readingJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.MeterID, &readingJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}

		if err := json.Unmarshal([]byte(readingJSON), &entry.Reading); err != nil {
			return nil, fmt.Errorf("unmarshalling reading: %w", err)
		}

		timestamp, err := parseStoredTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return entries, nil
}

// Prune deletes readings older than the given retention period.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention period; entries older than now-olderThan are deleted
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM readings WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseStoredTimestamp parses a created_at value stored by SQLite.
func parseStoredTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse("2006-01-02 15:04:05", value)
	if err == nil {
		return timestamp.UTC(), nil
	}

	fallback, fallbackErr := time.Parse(time.RFC3339, value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
