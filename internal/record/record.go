// Package record defines the structured trading plan extracted from one
// channel message, its wire encoding, and the trend comparison used by
// consumers.
package record

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// TradingRecord is the canonical structured unit of the pipeline.
//
// MessageID is assigned by the upstream channel and is the sole
// deduplication key. Records are immutable once stored.
//
// The JSON tags are the wire contract for both the live feed and the
// history endpoint. IssuedAt marshals as RFC 3339 (ISO-8601).
type TradingRecord struct {
	MessageID int64     `json:"message_id"`
	IssuedAt  time.Time `json:"datetime"`
	Symbol    string    `json:"name"`
	Buy       []float64 `json:"buy"`
	TP        []float64 `json:"tp"`
	SL        float64   `json:"sl"`
}

// Validate reports whether the record satisfies the storage invariants:
// non-empty symbol, at least one buy and take-profit level, and a
// parsed timestamp. Partial records are never persisted.
func (r TradingRecord) Validate() error {
	switch {
	case r.MessageID == 0:
		return errors.New("record: message_id is zero")
	case r.IssuedAt.IsZero():
		return errors.New("record: timestamp is zero")
	case r.Symbol == "":
		return errors.New("record: symbol is empty")
	case len(r.Buy) == 0:
		return errors.New("record: no buy levels")
	case len(r.TP) == 0:
		return errors.New("record: no take-profit levels")
	}
	return nil
}

// PrimaryBuy returns the first buy level. Order of buy levels is
// meaningful and preserved end to end; the first entry drives the trend
// comparison.
func (r TradingRecord) PrimaryBuy() float64 {
	if len(r.Buy) == 0 {
		return 0
	}
	return r.Buy[0]
}

// NormalizeSymbol canonicalizes an instrument symbol for storage and
// filter comparison: the leading alphanumeric token, uppercased.
// Trailing qualifiers in parentheses/brackets (market tags) and
// trailing colons are discarded.
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)

	// Cut at a qualifier like "(IDX)" or "[Sy]:".
	if i := strings.IndexAny(s, "([{"); i >= 0 {
		s = s[:i]
	}

	// Keep the leading alphanumeric run only.
	end := len(s)
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			end = i
			break
		}
	}
	return strings.ToUpper(s[:end])
}

// Trend is the direction of a record's primary buy level relative to
// the immediately preceding record for the same symbol.
type Trend int

const (
	TrendNone Trend = iota // equal primary levels, or no prior record
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "none"
	}
}

// TrendBetween compares cur against prev (the immediately preceding
// record for the same symbol, by arrival order). Strictly greater is
// upward, strictly less is downward, equal gives no indicator.
func TrendBetween(prev, cur TradingRecord) Trend {
	switch {
	case cur.PrimaryBuy() > prev.PrimaryBuy():
		return TrendUp
	case cur.PrimaryBuy() < prev.PrimaryBuy():
		return TrendDown
	default:
		return TrendNone
	}
}
