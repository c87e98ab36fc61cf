package record

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"MPIX", "MPIX"},
		{"mpix", "MPIX"},
		{" mpix: ", "MPIX"},
		{"BBCA [Sy]:", "BBCA"},
		{"bbca (IDX)", "BBCA"},
		{"GOTO4", "GOTO4"},
		{":", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrendBetween(t *testing.T) {
	t.Parallel()
	mk := func(primary float64) TradingRecord {
		return TradingRecord{Buy: []float64{primary, primary - 5}}
	}
	if got := TrendBetween(mk(100), mk(105)); got != TrendUp {
		t.Fatalf("trend = %v, want up", got)
	}
	if got := TrendBetween(mk(105), mk(100)); got != TrendDown {
		t.Fatalf("trend = %v, want down", got)
	}
	if got := TrendBetween(mk(100), mk(100)); got != TrendNone {
		t.Fatalf("trend = %v, want none", got)
	}
}

func TestWireShape(t *testing.T) {
	t.Parallel()
	r := TradingRecord{
		MessageID: 9,
		IssuedAt:  time.Date(2025, 12, 19, 14, 3, 5, 0, time.UTC),
		Symbol:    "MPIX",
		Buy:       []float64{100, 95, 90},
		TP:        []float64{110},
		SL:        85,
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"message_id", "datetime", "name", "buy", "tp", "sl"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("wire payload missing %q: %s", key, b)
		}
	}
	if m["datetime"] != "2025-12-19T14:03:05Z" {
		t.Fatalf("datetime = %v, want RFC 3339", m["datetime"])
	}
	buy, _ := m["buy"].([]any)
	if len(buy) != 3 || buy[0].(float64) != 100 {
		t.Fatalf("buy = %v, order must survive encoding", m["buy"])
	}
}
