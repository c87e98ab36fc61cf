package feed

import (
	"testing"
	"time"

	"tradewatch/internal/record"
)

func rec(id int64, symbol string, primary float64) record.TradingRecord {
	return record.TradingRecord{
		MessageID: id,
		IssuedAt:  time.Date(2025, 12, 19, 14, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		Symbol:    symbol,
		Buy:       []float64{primary},
		TP:        []float64{primary + 10},
		SL:        primary - 10,
	}
}

func TestViewDeduplicatesByMessageID(t *testing.T) {
	t.Parallel()
	v := NewView(0)

	if !v.Apply(rec(1, "MPIX", 100)) {
		t.Fatal("first apply reported duplicate")
	}
	if v.Apply(rec(1, "MPIX", 999)) {
		t.Fatal("second apply of same message_id was not a no-op")
	}
	if got := v.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	latest, ok := v.Latest("MPIX")
	if !ok || latest.PrimaryBuy() != 100 {
		t.Fatalf("latest = %+v, want original record", latest)
	}
}

func TestViewOrdersBackfillBeforeLive(t *testing.T) {
	t.Parallel()
	v := NewView(0)

	// Live event lands first, then history backfill delivers the older
	// record. Latest must still be the higher message_id.
	v.Apply(rec(7, "MPIX", 110))
	v.Apply(rec(3, "MPIX", 100))

	latest, _ := v.Latest("MPIX")
	if latest.MessageID != 7 {
		t.Fatalf("latest message_id = %d, want 7", latest.MessageID)
	}
	rs := v.Records("MPIX")
	if len(rs) != 2 || rs[0].MessageID != 3 || rs[1].MessageID != 7 {
		t.Fatalf("records = %v", rs)
	}
	if got := v.Trend("MPIX"); got != record.TrendUp {
		t.Fatalf("trend = %v, want up", got)
	}
}

func TestTrendViewRetainsTwoPerSymbol(t *testing.T) {
	t.Parallel()
	v := NewTrendView()

	for i := int64(1); i <= 5; i++ {
		v.Apply(rec(i, "MPIX", float64(100+i)))
	}
	rs := v.Records("MPIX")
	if len(rs) != 2 || rs[0].MessageID != 4 || rs[1].MessageID != 5 {
		t.Fatalf("retained = %v, want records 4 and 5", rs)
	}

	// Evicted ids may legitimately arrive again via backfill overlap;
	// they were applied once already and must stay no-ops.
	if v.Apply(rec(1, "MPIX", 101)) {
		t.Fatal("evicted record re-applied as new")
	}
	rs = v.Records("MPIX")
	if len(rs) != 2 || rs[0].MessageID != 4 || rs[1].MessageID != 5 {
		t.Fatalf("window changed after replay: %v", rs)
	}
}

func TestViewReplayOfEvictedRecordIsNoOp(t *testing.T) {
	t.Parallel()
	v := NewTrendView()

	// Fill past the window so id 10 gets evicted, then replay it as an
	// overlapping backfill page would after a long disconnect.
	for _, id := range []int64{10, 20, 30} {
		v.Apply(rec(id, "MPIX", float64(id)))
	}
	if v.Apply(rec(10, "MPIX", 10)) {
		t.Fatal("replay of evicted record reported as new")
	}
	if got := v.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	// The cutoff is per symbol: another symbol's record with a lower id
	// is genuinely new.
	if !v.Apply(rec(5, "BBCA", 500)) {
		t.Fatal("unrelated symbol rejected by another symbol's cutoff")
	}
}

func TestViewTrendDirections(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		first  float64
		second float64
		want   record.Trend
	}{
		{"up", 100, 105, record.TrendUp},
		{"down", 105, 100, record.TrendDown},
		{"flat", 100, 100, record.TrendNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewTrendView()
			v.Apply(rec(1, "BBCA", tc.first))
			v.Apply(rec(2, "BBCA", tc.second))
			if got := v.Trend("BBCA"); got != tc.want {
				t.Fatalf("trend = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestViewSingleRecordHasNoTrend(t *testing.T) {
	t.Parallel()
	v := NewTrendView()
	v.Apply(rec(1, "MPIX", 100))
	if got := v.Trend("MPIX"); got != record.TrendNone {
		t.Fatalf("trend = %v, want none", got)
	}
	if got := v.Trend("UNKNOWN"); got != record.TrendNone {
		t.Fatalf("trend for unknown symbol = %v, want none", got)
	}
}

func TestViewSymbolsIsolated(t *testing.T) {
	t.Parallel()
	v := NewView(0)
	v.Apply(rec(1, "MPIX", 100))
	v.Apply(rec(2, "BBCA", 500))
	v.Apply(rec(3, "MPIX", 105))

	syms := v.Symbols()
	if len(syms) != 2 || syms[0] != "BBCA" || syms[1] != "MPIX" {
		t.Fatalf("symbols = %v", syms)
	}
	if len(v.Records("BBCA")) != 1 || len(v.Records("MPIX")) != 2 {
		t.Fatalf("per-symbol retention mixed records across symbols")
	}
}
