package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
)

// expenseHeader is the column order for exported expenses. It matches the
// parser's column identities so exported files round-trip: re-importing
// with preserveIds and skip-duplicates is a no-op.
var expenseHeader = []string{"id", "date", "description", "category", "amount", "notes"}

var categoryHeader = []string{"id", "name", "color"}

const dateLayout = "2006-01-02"

// WriteExpensesCSV writes the flat CSV form of the ledger. Category ids
// are rendered as names, the label form the parser matches on.
func WriteExpensesCSV(w io.Writer, expenses []model.Expense, categories []model.Category) error {
	names := categoryNames(categories)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(expenseHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write(expenseRecord(e, names)); err != nil {
			return fmt.Errorf("write expense %s: %w", e.ID, err)
		}
	}
	return cw.Error()
}

// WriteWorkbook writes the two-sheet XLSX form: an "expenses" sheet and a
// "categories" sheet.
func WriteWorkbook(w io.Writer, expenses []model.Expense, categories []model.Category) error {
	names := categoryNames(categories)

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, parser.ExpenseSheet, expenseHeader, len(expenses), func(i int) []interface{} {
		rec := expenseRecord(expenses[i], names)
		return toAnySlice(rec)
	}); err != nil {
		return err
	}

	if err := writeSheet(f, parser.CategorySheet, categoryHeader, len(categories), func(i int) []interface{} {
		c := categories[i]
		return []interface{}{c.ID, c.Name, c.Color}
	}); err != nil {
		return err
	}

	// Drop the implicit default sheet so the workbook holds exactly the
	// two sheets the parser knows.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []string, rows int, record func(i int) []interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %q: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write %q header: %w", name, err)
	}
	for i := 0; i < rows; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell for row %d: %w", i+2, err)
		}
		rec := record(i)
		if err := f.SetSheetRow(name, cell, &rec); err != nil {
			return fmt.Errorf("write %q row %d: %w", name, i+2, err)
		}
	}
	return nil
}

func expenseRecord(e model.Expense, names map[string]string) []string {
	return []string{
		e.ID,
		e.Date.Format(dateLayout),
		e.Description,
		names[e.CategoryID],
		e.Amount.String(),
		e.Notes,
	}
}

func categoryNames(categories []model.Category) map[string]string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

func toAnySlice(rec []string) []interface{} {
	out := make([]interface{}, len(rec))
	for i, v := range rec {
		out[i] = v
	}
	return out
}
