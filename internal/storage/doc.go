// Package storage persists extracted trading records.
//
// It currently supports:
//   - SQLite database file (default)
//   - In-memory store (tests, throwaway runs)
//
// The store is the single source of truth for message_id deduplication:
// InsertIfAbsent is atomic per message_id, so concurrent ingestion of the
// same upstream message never yields two inserts.
package storage
