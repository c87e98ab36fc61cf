package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tradewatch/internal/record"
	logx "tradewatch/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "plans.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func testRecord(id int64, symbol string, primary float64, issued time.Time) record.TradingRecord {
	return record.TradingRecord{
		MessageID: id,
		IssuedAt:  issued,
		Symbol:    symbol,
		Buy:       []float64{primary, primary - 5, primary - 10},
		TP:        []float64{primary + 10, primary + 20},
		SL:        primary - 15,
	}
}

func TestInsertIfAbsentIdempotent(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := testRecord(1, "MPIX", 100, time.Now().UTC())

			ins, err := st.InsertIfAbsent(ctx, r)
			if err != nil || !ins {
				t.Fatalf("first insert = (%v, %v), want (true, nil)", ins, err)
			}
			ins, err = st.InsertIfAbsent(ctx, r)
			if err != nil {
				t.Fatalf("second insert: %v", err)
			}
			if ins {
				t.Fatal("duplicate message_id reported as inserted")
			}

			got, err := st.Query(ctx, QueryFilter{})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("stored %d records, want 1", len(got))
			}
			if got[0].Buy[0] != 100 || got[0].Buy[1] != 95 || got[0].Buy[2] != 90 {
				t.Fatalf("buy order not preserved: %v", got[0].Buy)
			}
		})
	}
}

func TestInsertRejectsPartialRecords(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			bad := testRecord(7, "MPIX", 100, time.Now())
			bad.TP = nil
			if _, err := st.InsertIfAbsent(context.Background(), bad); err == nil {
				t.Fatal("expected validation error for record without tp levels")
			}
			got, _ := st.Query(context.Background(), QueryFilter{})
			if len(got) != 0 {
				t.Fatalf("partial record was persisted: %v", got)
			}
		})
	}
}

func TestQueryOrderFilterPagination(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 12, 19, 10, 0, 0, 0, time.UTC)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := int64(1); i <= 25; i++ {
				sym := "MPIX"
				if i%2 == 0 {
					sym = "BBCA"
				}
				if _, err := st.InsertIfAbsent(ctx, testRecord(i, sym, float64(100+i), base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("insert %d: %v", i, err)
				}
			}

			// Newest-first by insertion order.
			page, err := st.Query(ctx, QueryFilter{Limit: 10})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(page) != 10 || page[0].MessageID != 25 || page[9].MessageID != 16 {
				t.Fatalf("unexpected first page: %v", ids(page))
			}

			// Pagination terminates with a short page; union covers the set.
			seen := map[int64]struct{}{}
			for skip := 0; ; skip += 10 {
				page, err := st.Query(ctx, QueryFilter{Skip: skip, Limit: 10})
				if err != nil {
					t.Fatalf("query skip=%d: %v", skip, err)
				}
				for _, r := range page {
					if _, dup := seen[r.MessageID]; dup {
						t.Fatalf("message %d returned twice", r.MessageID)
					}
					seen[r.MessageID] = struct{}{}
				}
				if len(page) < 10 {
					break
				}
			}
			if len(seen) != 25 {
				t.Fatalf("pages covered %d records, want 25", len(seen))
			}

			// Symbol filter.
			mpix, err := st.Query(ctx, QueryFilter{Symbol: "MPIX", Limit: 100})
			if err != nil {
				t.Fatalf("query symbol: %v", err)
			}
			if len(mpix) != 13 {
				t.Fatalf("MPIX records = %d, want 13", len(mpix))
			}
			for _, r := range mpix {
				if r.Symbol != "MPIX" {
					t.Fatalf("filter leaked symbol %q", r.Symbol)
				}
			}
		})
	}
}

func TestPreviousFor(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 12, 19, 10, 0, 0, 0, time.UTC)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inserts := []record.TradingRecord{
				testRecord(1, "MPIX", 100, base),
				testRecord(2, "BBCA", 500, base.Add(time.Minute)),
				testRecord(3, "MPIX", 105, base.Add(2*time.Minute)),
			}
			for _, r := range inserts {
				if _, err := st.InsertIfAbsent(ctx, r); err != nil {
					t.Fatalf("insert %d: %v", r.MessageID, err)
				}
			}

			prev, ok, err := st.PreviousFor(ctx, "MPIX", 3)
			if err != nil || !ok {
				t.Fatalf("PreviousFor = (%v, %v)", ok, err)
			}
			if prev.MessageID != 1 {
				t.Fatalf("previous = %d, want 1 (same symbol only)", prev.MessageID)
			}
			if got := record.TrendBetween(prev, inserts[2]); got != record.TrendUp {
				t.Fatalf("trend = %v, want up", got)
			}

			if _, ok, err := st.PreviousFor(ctx, "MPIX", 1); err != nil || ok {
				t.Fatalf("oldest record must have no predecessor, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestPruneOlderThan(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := int64(1); i <= 5; i++ {
				if _, err := st.InsertIfAbsent(ctx, testRecord(i, "MPIX", 100, base.AddDate(0, 0, int(i)))); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}
			removed, err := st.PruneOlderThan(ctx, base.AddDate(0, 0, 4))
			if err != nil {
				t.Fatalf("prune: %v", err)
			}
			if removed != 3 {
				t.Fatalf("removed = %d, want 3", removed)
			}
			left, _ := st.Query(ctx, QueryFilter{})
			if len(left) != 2 {
				t.Fatalf("left = %d, want 2", len(left))
			}
		})
	}
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			r := testRecord(99, "MPIX", 100, time.Now().UTC())

			const callers = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ins, err := st.InsertIfAbsent(context.Background(), r)
					if err != nil {
						t.Errorf("insert: %v", err)
						return
					}
					if ins {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("%d callers observed Inserted, want exactly 1", wins)
			}
		})
	}
}

func ids(rs []record.TradingRecord) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.MessageID
	}
	return out
}
