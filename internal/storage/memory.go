package storage

import (
	"context"
	"sync"
	"time"

	"tradewatch/internal/record"
)

// memoryStore keeps records in insertion order behind a mutex. It backs
// tests and throwaway runs; semantics mirror the sqlite driver.
type memoryStore struct {
	mu      sync.Mutex
	records []record.TradingRecord
	byID    map[int64]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{byID: map[int64]struct{}{}}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) InsertIfAbsent(_ context.Context, r record.TradingRecord) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.MessageID]; ok {
		return false, nil
	}
	m.byID[r.MessageID] = struct{}{}
	m.records = append(m.records, cloneRecord(r))
	return true, nil
}

func (m *memoryStore) Query(_ context.Context, f QueryFilter) ([]record.TradingRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]record.TradingRecord, 0, limit)
	skipped := 0
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		if f.Symbol != "" && r.Symbol != f.Symbol {
			continue
		}
		if skipped < skip {
			skipped++
			continue
		}
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (m *memoryStore) PreviousFor(_ context.Context, symbol string, beforeMessageID int64) (record.TradingRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := -1
	for i, r := range m.records {
		if r.MessageID == beforeMessageID {
			pos = i
			break
		}
	}
	for i := pos - 1; i >= 0; i-- {
		if m.records[i].Symbol == symbol {
			return cloneRecord(m.records[i]), true, nil
		}
	}
	return record.TradingRecord{}, false, nil
}

func (m *memoryStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var removed int64
	for _, r := range m.records {
		if r.IssuedAt.Before(cutoff) {
			delete(m.byID, r.MessageID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

// cloneRecord copies the level slices so callers can't mutate stored state.
func cloneRecord(r record.TradingRecord) record.TradingRecord {
	cp := r
	cp.Buy = append([]float64(nil), r.Buy...)
	cp.TP = append([]float64(nil), r.TP...)
	return cp
}
