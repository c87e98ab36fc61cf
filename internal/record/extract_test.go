package record

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const validPlan = "[19/12/2025 14:03:05]\n" +
	"Trading Plan MPIX [Sy]:\n" +
	"📝 Buy: 100, 95, 90\n" +
	"🟢 TP: 110, 120\n" +
	"🔴 SL: 85"

func TestExtractValid(t *testing.T) {
	t.Parallel()
	r, err := Extract(validPlan, 42)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if r.MessageID != 42 {
		t.Fatalf("MessageID = %d, want 42", r.MessageID)
	}
	want := time.Date(2025, 12, 19, 14, 3, 5, 0, time.UTC)
	if !r.IssuedAt.Equal(want) {
		t.Fatalf("IssuedAt = %v, want %v", r.IssuedAt, want)
	}
	if r.Symbol != "MPIX" {
		t.Fatalf("Symbol = %q, want MPIX", r.Symbol)
	}
	if len(r.Buy) != 3 || r.Buy[0] != 100 || r.Buy[1] != 95 || r.Buy[2] != 90 {
		t.Fatalf("Buy = %v, order must be preserved", r.Buy)
	}
	if len(r.TP) != 2 || r.TP[0] != 110 || r.TP[1] != 120 {
		t.Fatalf("TP = %v", r.TP)
	}
	if r.SL != 85 {
		t.Fatalf("SL = %v, want 85", r.SL)
	}
}

func TestExtractSymbolVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "plain", line: "Trading Plan MPIX", want: "MPIX"},
		{name: "trailing colon", line: "Trading Plan MPIX:", want: "MPIX"},
		{name: "bracket tag", line: "Trading Plan MPIX [Sy]:", want: "MPIX"},
		{name: "paren tag", line: "Trading Plan bbca (IDX)", want: "BBCA"},
		{name: "lowercase", line: "Trading Plan mpix:", want: "MPIX"},
		{name: "alnum", line: "Trading Plan GOTO4 [Sy]:", want: "GOTO4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := strings.Replace(validPlan, "Trading Plan MPIX [Sy]:", tt.line, 1)
			r, err := Extract(raw, 1)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if r.Symbol != tt.want {
				t.Fatalf("Symbol = %q, want %q", r.Symbol, tt.want)
			}
		})
	}
}

func TestExtractRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		mut   func(string) string
		check func(error) bool
	}{
		{
			name:  "missing header brackets",
			mut:   func(s string) string { return strings.Replace(s, "[19/12/2025 14:03:05]", "19/12/2025 14:03:05", 1) },
			check: func(err error) bool { return errors.Is(err, ErrMalformedHeader) },
		},
		{
			name:  "bad timestamp format",
			mut:   func(s string) string { return strings.Replace(s, "19/12/2025", "2025-12-19", 1) },
			check: func(err error) bool { return errors.Is(err, ErrMalformedHeader) },
		},
		{
			name: "missing plan line",
			mut:  func(s string) string { return strings.Replace(s, "Trading Plan MPIX [Sy]:", "hello there", 1) },
			check: func(err error) bool {
				var me *MissingSectionError
				return errors.As(err, &me) && me.Section == "name"
			},
		},
		{
			name:  "empty symbol",
			mut:   func(s string) string { return strings.Replace(s, "Trading Plan MPIX [Sy]:", "Trading Plan :", 1) },
			check: func(err error) bool { return errors.Is(err, ErrEmptySymbol) },
		},
		{
			name: "missing buy section",
			mut:  func(s string) string { return strings.Replace(s, "📝 Buy: 100, 95, 90\n", "", 1) },
			check: func(err error) bool {
				var me *MissingSectionError
				return errors.As(err, &me) && me.Section == "buy"
			},
		},
		{
			name: "empty tp list",
			mut:  func(s string) string { return strings.Replace(s, "🟢 TP: 110, 120", "🟢 TP:", 1) },
			check: func(err error) bool {
				var me *MissingSectionError
				return errors.As(err, &me) && me.Section == "tp"
			},
		},
		{
			name: "missing sl",
			mut:  func(s string) string { return strings.Replace(s, "\n🔴 SL: 85", "", 1) },
			check: func(err error) bool {
				var me *MissingSectionError
				return errors.As(err, &me) && me.Section == "sl"
			},
		},
		{
			name: "non-numeric buy token",
			mut:  func(s string) string { return strings.Replace(s, "95", "ninety-five", 1) },
			check: func(err error) bool {
				var ne *InvalidNumberError
				return errors.As(err, &ne) && ne.Section == "buy" && ne.Token == "ninety-five"
			},
		},
		{
			name: "comma decimal separator",
			mut:  func(s string) string { return strings.Replace(s, "🔴 SL: 85", "🔴 SL: 85,5x", 1) },
			check: func(err error) bool {
				var ne *InvalidNumberError
				return errors.As(err, &ne) && ne.Section == "sl"
			},
		},
		{
			name: "multi-value sl",
			mut:  func(s string) string { return strings.Replace(s, "🔴 SL: 85", "🔴 SL: 85, 80", 1) },
			check: func(err error) bool {
				var ne *InvalidNumberError
				return errors.As(err, &ne) && ne.Section == "sl"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.mut(validPlan), 1)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtractDecimalLevels(t *testing.T) {
	t.Parallel()
	raw := strings.Replace(validPlan, "📝 Buy: 100, 95, 90", "📝 Buy: 100.5 95.25", 1)
	r, err := Extract(raw, 7)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(r.Buy) != 2 || r.Buy[0] != 100.5 || r.Buy[1] != 95.25 {
		t.Fatalf("Buy = %v", r.Buy)
	}
}
