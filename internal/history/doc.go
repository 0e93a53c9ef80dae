// Package history persists decoded meter readings to SQLite.
//
// Each reading is stored as a JSON document alongside hot columns
// (record type, effect) so dashboards can filter without unmarshalling.
// Retention is enforced by Prune, typically driven by a timer in the
// main loop.
//
// The package expects the readings table created by the embedded
// migrations; open the database through the database package with the
// migrations package blank-imported.
package history
