// Package csvcodec parses staged CSV input and formats SELECT results back
// to CSV, without a quoting layer: fields must not contain embedded commas
// or line terminators, by wire-format contract.
package csvcodec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mtsmys/cep-go/internal/column"
)

// ParseResult is the outcome of parsing one CSV payload: the header split
// into field names and the data rows split into positional fields.
type ParseResult struct {
	Header []string
	Rows   [][]string
}

// Parse splits csv into a header line and data rows. Line terminators
// "\r\n" and "\n" are both accepted on input; trailing blank lines are
// ignored. Parse does not validate field count against any catalog — that
// is the caller's job, since it needs the table's column list to do so.
func Parse(csv string) (ParseResult, error) {
	lines := splitLines(csv)
	if len(lines) == 0 {
		return ParseResult{}, fmt.Errorf("csvcodec: empty input, no header")
	}

	header := strings.Split(lines[0], ",")
	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, ","))
	}
	return ParseResult{Header: header, Rows: rows}, nil
}

func splitLines(csv string) []string {
	normalized := strings.ReplaceAll(csv, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	// Drop a single trailing empty line produced by a final terminator.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ValidateRowWidth reports an error if any row's field count does not
// match the expected column count.
func ValidateRowWidth(rows [][]string, want int) error {
	for i, row := range rows {
		if len(row) != want {
			return fmt.Errorf("csvcodec: row %d has %d fields, want %d", i, len(row), want)
		}
	}
	return nil
}

// SelectResult holds one formatted SELECT: resolved origin-name header and
// already-stringified rows, ready to join with CRLF.
type SelectResult struct {
	OriginNames []string
	Rows        [][]string
}

// FormatSelect renders a SelectResult as CRLF-terminated CSV. It returns
// ("", false) when rows is empty — the spec's "empty" sentinel — even if
// the header would otherwise be valid.
func FormatSelect(result SelectResult) (string, bool) {
	if len(result.Rows) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(strings.Join(result.OriginNames, ","))
	b.WriteString("\r\n")
	for _, row := range result.Rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\r\n")
	}
	return b.String(), true
}

// FormatValue renders a single scanned column value per its declared type,
// per spec §4.5: INTEGER as decimal, REAL/FLOAT/DOUBLE with full double
// precision, TEXT raw, BLOB as unchunked Base64, and NULL as the literal
// string "NULL".
func FormatValue(typ column.Type, value any) string {
	if value == nil {
		return "NULL"
	}
	switch typ {
	case column.Integer, column.DateTime:
		return fmt.Sprintf("%d", toInt64(value))
	case column.Real, column.Numeric:
		// Shortest representation that round-trips the float64, padded to
		// at least six fractional digits (1 -> "1.000000").
		f := toFloat64(value)
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s
		}
		dot := strings.IndexByte(s, '.')
		if dot < 0 {
			s += "."
			dot = len(s) - 1
		}
		if frac := len(s) - dot - 1; frac < 6 {
			s += strings.Repeat("0", 6-frac)
		}
		return s
	case column.Blob:
		b, ok := value.([]byte)
		if !ok {
			b = []byte(fmt.Sprintf("%v", value))
		}
		return base64.StdEncoding.EncodeToString(b)
	case column.Bool:
		if toInt64(value) != 0 {
			return "1"
		}
		return "0"
	default:
		switch v := value.(type) {
		case []byte:
			return string(v)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		i, _ := strconv.ParseInt(fmt.Sprintf("%v", v), 10, 64)
		return i
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		f, _ := strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
		return f
	}
}
