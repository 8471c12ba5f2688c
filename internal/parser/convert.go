package parser

// convert.go holds the cell-level conversion helpers for user-supplied
// tabular data. Uploaded files arrive with every format quirk imaginable:
//   - multiple date formats (US, EU, ISO, two-digit years)
//   - currency symbols and thousands separators in amounts
//   - accounting-style negatives "(12.34)"
//   - Excel formula prefixes (="value") and stray quotes
//   - broken UTF-8 from legacy spreadsheet exports
//
// All parse helpers report validity instead of returning errors so callers
// can accumulate row diagnostics without aborting.

import (
	"bytes"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// numericRegex validates a numeric string after cleanup. Matches integers,
// decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot controls how 2-digit years are read. A parsed year more
// than this many years in the future is pushed back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate parses a calendar date in any supported layout.
// Reports ok=false for empty or unparseable input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// 4-digit year layouts first, they are unambiguous.
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseAmount parses a decimal amount, tolerating currency symbols,
// thousands separators, and accounting-format negatives.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula prefix (="..."), stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return s
}

// headerIndex maps lowercased column names to their position in a row.
type headerIndex map[string]int

// makeHeaderIndex builds a headerIndex from a header row.
func makeHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// cell returns the cleaned value of the named column, or "" when the column
// is absent or the row is short.
func (h headerIndex) cell(row []string, name string) string {
	pos, ok := h[name]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character so the CSV reader never chokes on legacy encodings.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// isEmptyRow reports whether every cell in the row is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
