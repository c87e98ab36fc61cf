package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message grammar (one message per trading plan):
//
//	[19/12/2025 14:03:05]
//	Trading Plan MPIX [Sy]:
//	📝 Buy: 100, 95, 90
//	🟢 TP: 110, 120
//	🔴 SL: 85
//
// Extraction is all-or-nothing: any missing section or unparseable
// token rejects the whole message. The header timestamp is mandatory;
// ingestion time is never substituted, so arrival ordering stays
// meaningful for trend comparison.

// headerLayout is the only accepted timestamp format.
const headerLayout = "02/01/2006 15:04:05"

const (
	planMarker = "Trading Plan"

	sectionBuy = "📝 Buy:"
	sectionTP  = "🟢 TP:"
	sectionSL  = "🔴 SL:"
)

// ErrMalformedHeader means the first line is not a bracketed timestamp
// in the accepted format.
var ErrMalformedHeader = errors.New("extract: malformed header")

// ErrEmptySymbol means the plan line was found but no symbol token
// survived normalization.
var ErrEmptySymbol = errors.New("extract: empty symbol")

// MissingSectionError reports a required section that is absent or has
// no values.
type MissingSectionError struct {
	Section string
}

func (e *MissingSectionError) Error() string {
	return "extract: missing section " + e.Section
}

// InvalidNumberError reports an unparseable token inside a numeric
// section. The token is kept for logging.
type InvalidNumberError struct {
	Section string
	Token   string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("extract: invalid number %q in section %s", e.Token, e.Section)
}

// Extract parses one raw channel message into a TradingRecord. It is a
// pure function: no state, no side effects. Every returned error is
// terminal for the message.
func Extract(raw string, messageID int64) (*TradingRecord, error) {
	lines := splitLines(raw)
	if len(lines) < 2 {
		return nil, ErrMalformedHeader
	}

	issuedAt, err := parseHeader(lines[0])
	if err != nil {
		return nil, err
	}

	symbol, err := parseSymbol(lines[1])
	if err != nil {
		return nil, err
	}

	buy, err := parseLevels(lines, sectionBuy, "buy")
	if err != nil {
		return nil, err
	}
	tp, err := parseLevels(lines, sectionTP, "tp")
	if err != nil {
		return nil, err
	}
	sl, err := parseStopLoss(lines)
	if err != nil {
		return nil, err
	}

	r := &TradingRecord{
		MessageID: messageID,
		IssuedAt:  issuedAt,
		Symbol:    symbol,
		Buy:       buy,
		TP:        tp,
		SL:        sl,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func splitLines(raw string) []string {
	lines := strings.Split(raw, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r \t")
	}
	return lines
}

func parseHeader(line string) (time.Time, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return time.Time{}, ErrMalformedHeader
	}
	t, err := time.Parse(headerLayout, strings.Trim(line, "[]"))
	if err != nil {
		return time.Time{}, ErrMalformedHeader
	}
	return t, nil
}

func parseSymbol(line string) (string, error) {
	_, rest, ok := strings.Cut(line, planMarker)
	if !ok {
		return "", &MissingSectionError{Section: "name"}
	}
	sym := NormalizeSymbol(rest)
	if sym == "" {
		return "", ErrEmptySymbol
	}
	return sym, nil
}

// parseLevels finds the section line by prefix and parses its
// comma/space-separated values. Decimal parsing is locale-insensitive
// (dot decimal separator only).
func parseLevels(lines []string, prefix, section string) ([]float64, error) {
	body, ok := sectionBody(lines, prefix)
	if !ok {
		return nil, &MissingSectionError{Section: section}
	}

	tokens := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return nil, &MissingSectionError{Section: section}
	}

	out := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, &InvalidNumberError{Section: section, Token: tok}
		}
		out = append(out, v)
	}
	return out, nil
}

func parseStopLoss(lines []string) (float64, error) {
	body, ok := sectionBody(lines, sectionSL)
	if !ok {
		return 0, &MissingSectionError{Section: "sl"}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, &MissingSectionError{Section: "sl"}
	}
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, &InvalidNumberError{Section: "sl", Token: body}
	}
	return v, nil
}

func sectionBody(lines []string, prefix string) (string, bool) {
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), prefix) {
			return strings.TrimPrefix(strings.TrimSpace(l), prefix), true
		}
	}
	return "", false
}
