package storage

import (
	"context"
	"time"

	"tradewatch/internal/record"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default when empty)
//   - "memory": process-local store, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// QueryFilter selects a page of records.
//
// Symbol is an optional exact match against the normalized symbol
// (callers pass it through record.NormalizeSymbol, so matching is
// case-insensitive at the API boundary). Skip/Limit page through
// records newest-first by insertion order; a result shorter than Limit
// means there are no further pages.
type QueryFilter struct {
	Symbol string
	Skip   int
	Limit  int
}

// DefaultQueryLimit applies when QueryFilter.Limit is zero.
const DefaultQueryLimit = 50

// Store is the persistence API used by the ingest pipeline and the
// HTTP layer.
type Store interface {
	// InsertIfAbsent stores the record unless its message_id already
	// exists. It returns true when this call performed the insert;
	// exactly one of any set of concurrent callers sharing a
	// message_id observes true. A duplicate is a no-op, not an error.
	InsertIfAbsent(ctx context.Context, r record.TradingRecord) (bool, error)

	// Query returns records newest-first by insertion order.
	Query(ctx context.Context, f QueryFilter) ([]record.TradingRecord, error)

	// PreviousFor returns the most recent record for symbol inserted
	// strictly before the record identified by beforeMessageID. The
	// second result is false when no such record exists.
	PreviousFor(ctx context.Context, symbol string, beforeMessageID int64) (record.TradingRecord, bool, error)

	// PruneOlderThan deletes records issued before cutoff and reports
	// how many were removed. Used by the optional retention job.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
