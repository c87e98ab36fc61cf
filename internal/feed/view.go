package feed

import (
	"sort"
	"sync"

	"tradewatch/internal/record"
)

// trendDepth is how many records per symbol a single-topic view keeps.
// Two is enough to compute the trend indicator.
const trendDepth = 2

// DefaultWindow bounds per-symbol retention on an all-topics view.
const DefaultWindow = 16

// View is the reconciler's local state: the most recent records per
// symbol, deduplicated by message_id. Live events and history backfill
// both funnel through Apply, so replays and reconnect races collapse
// into no-ops.
type View struct {
	mu      sync.RWMutex
	window  int
	seen    map[int64]struct{}
	floor   map[string]int64 // highest message_id evicted per symbol
	symbols map[string][]record.TradingRecord // newest last
}

// NewView builds a view retaining up to window records per symbol.
// window <= 0 selects DefaultWindow. A view backing a single-topic feed
// should use NewTrendView instead.
func NewView(window int) *View {
	if window <= 0 {
		window = DefaultWindow
	}
	return &View{
		window:  window,
		seen:    map[int64]struct{}{},
		floor:   map[string]int64{},
		symbols: map[string][]record.TradingRecord{},
	}
}

// NewTrendView builds a view that keeps only the two most recent
// records per symbol.
func NewTrendView() *View { return NewView(trendDepth) }

// Apply merges one record into the view. It reports false when the
// record was already applied (same message_id) or is no newer than
// records the window has already discarded, which makes replays from
// overlapping history pages and buffered live events harmless.
func (v *View) Apply(r record.TradingRecord) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Ids at or below the symbol's floor were applied and later evicted;
	// a backfill page overlapping that range must not re-fire them.
	if r.MessageID <= v.floor[r.Symbol] {
		return false
	}
	if _, dup := v.seen[r.MessageID]; dup {
		return false
	}
	v.seen[r.MessageID] = struct{}{}

	rs := v.symbols[r.Symbol]

	// Insert by message_id so a backfilled older record lands before a
	// live one that arrived first. Upstream ids are monotonic per
	// channel, so they order records by issue time.
	i := sort.Search(len(rs), func(i int) bool { return rs[i].MessageID > r.MessageID })
	rs = append(rs, record.TradingRecord{})
	copy(rs[i+1:], rs[i:])
	rs[i] = r

	if len(rs) > v.window {
		evicted := rs[:len(rs)-v.window]
		for _, e := range evicted {
			delete(v.seen, e.MessageID)
		}
		// rs is sorted by message_id, so the last evicted entry carries
		// the new floor.
		if hi := evicted[len(evicted)-1].MessageID; hi > v.floor[r.Symbol] {
			v.floor[r.Symbol] = hi
		}
		rs = append(rs[:0:0], rs[len(rs)-v.window:]...)
	}
	v.symbols[r.Symbol] = rs
	return true
}

// Latest returns the most recent record for symbol.
func (v *View) Latest(symbol string) (record.TradingRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rs := v.symbols[symbol]
	if len(rs) == 0 {
		return record.TradingRecord{}, false
	}
	return rs[len(rs)-1], true
}

// Trend compares the two most recent records for symbol. With fewer
// than two records retained the result is TrendNone.
func (v *View) Trend(symbol string) record.Trend {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rs := v.symbols[symbol]
	if len(rs) < 2 {
		return record.TrendNone
	}
	return record.TrendBetween(rs[len(rs)-2], rs[len(rs)-1])
}

// Records returns the retained records for symbol, oldest first.
func (v *View) Records(symbol string) []record.TradingRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]record.TradingRecord(nil), v.symbols[symbol]...)
}

// Symbols lists every symbol with at least one retained record.
func (v *View) Symbols() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.symbols))
	for s := range v.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len reports the total number of retained records.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, rs := range v.symbols {
		n += len(rs)
	}
	return n
}
