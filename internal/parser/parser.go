// Package parser turns uploaded spreadsheet and CSV bytes into normalized
// expense and category rows plus row-indexed parse diagnostics.
//
// Column binding is by fixed column identity (id, date, description,
// category, amount, notes), matched case-insensitively against the header
// row, never by fuzzy header inference. Results are deterministic for the
// same input bytes.
//
// Rows with an unparseable date or amount are reported in Errors but still
// returned in Expenses, so a preview can show the user exactly what is
// wrong before anything is written. Only structural failures (unreadable
// file, missing expenses sheet) are returned as an error.
package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Kind identifies the physical format of an uploaded file.
type Kind string

const (
	// KindCSV is a flat comma-separated file of expense rows.
	KindCSV Kind = "csv"
	// KindWorkbook is an XLSX workbook with an "expenses" sheet and an
	// optional "categories" sheet.
	KindWorkbook Kind = "xlsx"
)

// Expense column identities. The header row must contain the required ones.
const (
	colID          = "id"
	colDate        = "date"
	colDescription = "description"
	colCategory    = "category"
	colAmount      = "amount"
	colNotes       = "notes"
)

// Category sheet column identities.
const (
	colName  = "name"
	colColor = "color"
)

// ExpenseSheet and CategorySheet are the workbook sheet names.
const (
	ExpenseSheet  = "expenses"
	CategorySheet = "categories"
)

var requiredExpenseColumns = []string{colDate, colDescription, colCategory, colAmount}

// ExpenseRow is one normalized expense record from the file. Row is its
// 1-based position in the source with the header counted as row 1, stable
// from parse through import through error export.
//
// Date and Amount carry validity flags instead of being dropped on parse
// failure; the raw text is kept for diagnostics.
type ExpenseRow struct {
	Row         int             `json:"row"`
	ID          string          `json:"id,omitempty"`
	Date        time.Time       `json:"date"`
	DateValid   bool            `json:"dateValid"`
	RawDate     string          `json:"rawDate"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	AmountValid bool            `json:"amountValid"`
	RawAmount   string          `json:"rawAmount"`
	Notes       string          `json:"notes,omitempty"`
}

// CategoryRow is one row from the optional categories sheet.
type CategoryRow struct {
	Row   int    `json:"row"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// RowError is a row-indexed parse diagnostic. Warnings (blank category)
// do not block import; hard errors make the row fail validation later.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	Warning bool   `json:"warning,omitempty"`
}

// ParsedData is the immutable output of one parse. Recomputing it from the
// same bytes always yields the same result.
type ParsedData struct {
	Expenses   []ExpenseRow  `json:"expenses"`
	Categories []CategoryRow `json:"categories"`
	Errors     []RowError    `json:"errors"`
}

// DetectKind maps a file name to its Kind. An unsupported extension is a
// fatal error: the pipeline never starts for files we cannot read.
func DetectKind(filename string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return KindCSV, nil
	case ".xlsx":
		return KindWorkbook, nil
	default:
		return "", fmt.Errorf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(filename))
	}
}

// Parse reads file bytes of the given kind into normalized rows.
// The returned error is fatal (unreadable file, missing expenses sheet);
// per-row problems are accumulated in ParsedData.Errors instead.
func Parse(data []byte, kind Kind) (*ParsedData, error) {
	switch kind {
	case KindCSV:
		return parseCSV(data)
	case KindWorkbook:
		return parseWorkbook(data)
	default:
		return nil, fmt.Errorf("unknown file kind %q", kind)
	}
}

func parseCSV(data []byte) (*ParsedData, error) {
	r := csv.NewReader(bytes.NewReader(sanitizeUTF8(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	parsed := &ParsedData{Categories: []CategoryRow{}}
	if err := parseExpenseRows(records, parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func parseWorkbook(data []byte) (*ParsedData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	expenseSheet := findSheet(f, ExpenseSheet)
	if expenseSheet == "" {
		return nil, fmt.Errorf("workbook has no %q sheet", ExpenseSheet)
	}

	records, err := f.GetRows(expenseSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", expenseSheet, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", ExpenseSheet)
	}

	parsed := &ParsedData{Categories: []CategoryRow{}}
	if err := parseExpenseRows(records, parsed); err != nil {
		return nil, err
	}

	// The categories sheet is optional; its absence is not an error.
	if catSheet := findSheet(f, CategorySheet); catSheet != "" {
		catRows, err := f.GetRows(catSheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", catSheet, err)
		}
		parseCategoryRows(catRows, parsed)
	}

	return parsed, nil
}

// findSheet locates a sheet by name, case-insensitively.
func findSheet(f *excelize.File, name string) string {
	for _, sheet := range f.GetSheetList() {
		if strings.EqualFold(sheet, name) {
			return sheet
		}
	}
	return ""
}

// parseExpenseRows binds the header row and converts every data row.
// records[0] is the header (row 1); data rows are numbered from 2.
func parseExpenseRows(records [][]string, parsed *ParsedData) error {
	header := makeHeaderIndex(records[0])
	for _, col := range requiredExpenseColumns {
		if _, ok := header[col]; !ok {
			return fmt.Errorf("missing required column %q", col)
		}
	}

	parsed.Expenses = make([]ExpenseRow, 0, len(records)-1)

	for i, rec := range records[1:] {
		rowNum := i + 2
		if isEmptyRow(rec) {
			continue
		}

		row := ExpenseRow{
			Row:         rowNum,
			ID:          header.cell(rec, colID),
			RawDate:     header.cell(rec, colDate),
			Description: header.cell(rec, colDescription),
			Category:    header.cell(rec, colCategory),
			RawAmount:   header.cell(rec, colAmount),
			Notes:       header.cell(rec, colNotes),
		}

		row.Date, row.DateValid = ParseDate(row.RawDate)
		if !row.DateValid {
			parsed.Errors = append(parsed.Errors, RowError{
				Row:     rowNum,
				Message: fmt.Sprintf("invalid date %q", row.RawDate),
			})
		}

		row.Amount, row.AmountValid = ParseAmount(row.RawAmount)
		if !row.AmountValid {
			row.Amount = decimal.Zero
			parsed.Errors = append(parsed.Errors, RowError{
				Row:     rowNum,
				Message: fmt.Sprintf("invalid amount %q", row.RawAmount),
			})
		}

		if row.Category == "" {
			parsed.Errors = append(parsed.Errors, RowError{
				Row:     rowNum,
				Message: "blank category, row will be imported as uncategorized",
				Warning: true,
			})
		}

		parsed.Expenses = append(parsed.Expenses, row)
	}

	return nil
}

// parseCategoryRows converts the optional categories sheet. A sheet with
// only a header (or nothing at all) yields an empty slice.
func parseCategoryRows(records [][]string, parsed *ParsedData) {
	if len(records) < 2 {
		return
	}

	header := makeHeaderIndex(records[0])
	if _, ok := header[colName]; !ok {
		return
	}

	for i, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		name := header.cell(rec, colName)
		if name == "" {
			continue
		}
		parsed.Categories = append(parsed.Categories, CategoryRow{
			Row:   i + 2,
			ID:    header.cell(rec, colID),
			Name:  name,
			Color: header.cell(rec, colColor),
		})
	}
}
