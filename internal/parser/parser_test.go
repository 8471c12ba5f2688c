package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		filename string
		want     Kind
		wantErr  bool
	}{
		{"expenses.csv", KindCSV, false},
		{"EXPENSES.CSV", KindCSV, false},
		{"book.xlsx", KindWorkbook, false},
		{"Book.XLSX", KindWorkbook, false},
		{"data.xls", "", true},
		{"data.json", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		got, err := DetectKind(tt.filename)
		if tt.wantErr {
			assert.Error(t, err, "DetectKind(%q)", tt.filename)
			continue
		}
		require.NoError(t, err, "DetectKind(%q)", tt.filename)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"id,date,description,category,amount,notes",
		"3f1c8a4e-9a1b-4c6d-8e2f-0123456789ab,2024-01-15,Groceries run,Food,$45.99,weekly shop",
		",01/20/2024,Gas,Transport,30.00,",
		",2024-01-25,Refund,Shopping,(12.50),returned item",
	}, "\n")

	parsed, err := Parse([]byte(csvData), KindCSV)
	require.NoError(t, err)
	require.Len(t, parsed.Expenses, 3)
	assert.Empty(t, parsed.Errors)

	first := parsed.Expenses[0]
	assert.Equal(t, 2, first.Row, "data rows start at 2, header is row 1")
	assert.Equal(t, "3f1c8a4e-9a1b-4c6d-8e2f-0123456789ab", first.ID)
	assert.True(t, first.DateValid)
	assert.Equal(t, "2024-01-15", first.Date.Format("2006-01-02"))
	assert.Equal(t, "Groceries run", first.Description)
	assert.Equal(t, "Food", first.Category)
	assert.True(t, first.AmountValid)
	assert.Equal(t, "45.99", first.Amount.String())
	assert.Equal(t, "weekly shop", first.Notes)

	assert.Equal(t, 3, parsed.Expenses[1].Row)
	assert.Equal(t, "2024-01-20", parsed.Expenses[1].Date.Format("2006-01-02"))

	assert.Equal(t, "-12.5", parsed.Expenses[2].Amount.String())
}

func TestParseCSV_RowDiagnostics(t *testing.T) {
	csvData := strings.Join([]string{
		"date,description,category,amount",
		"2024-01-15,Good row,Food,10.00",
		"not-a-date,Bad date,Food,10.00",
		"2024-01-17,Bad amount,Food,abc",
		"2024-01-18,Blank category,,5.00",
	}, "\n")

	parsed, err := Parse([]byte(csvData), KindCSV)
	require.NoError(t, err)

	// Bad rows are kept so the preview can show them.
	require.Len(t, parsed.Expenses, 4)

	require.Len(t, parsed.Errors, 3)

	assert.Equal(t, 3, parsed.Errors[0].Row)
	assert.Contains(t, parsed.Errors[0].Message, "invalid date")
	assert.False(t, parsed.Errors[0].Warning)
	assert.False(t, parsed.Expenses[1].DateValid)

	assert.Equal(t, 4, parsed.Errors[1].Row)
	assert.Contains(t, parsed.Errors[1].Message, "invalid amount")
	assert.False(t, parsed.Expenses[2].AmountValid)

	// Blank category is a warning, not a hard error.
	assert.Equal(t, 5, parsed.Errors[2].Row)
	assert.True(t, parsed.Errors[2].Warning)
}

func TestParseCSV_SkipsEmptyRows(t *testing.T) {
	csvData := strings.Join([]string{
		"date,description,category,amount",
		"2024-01-15,First,Food,10.00",
		",,,",
		"2024-01-17,Second,Food,20.00",
	}, "\n")

	parsed, err := Parse([]byte(csvData), KindCSV)
	require.NoError(t, err)
	require.Len(t, parsed.Expenses, 2)

	// Row numbers still count the blank line.
	assert.Equal(t, 2, parsed.Expenses[0].Row)
	assert.Equal(t, 4, parsed.Expenses[1].Row)
}

func TestParseCSV_MissingRequiredColumn(t *testing.T) {
	csvData := "date,description,amount\n2024-01-15,No category column,10.00\n"

	_, err := Parse([]byte(csvData), KindCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"category"`)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	parsed, err := Parse([]byte("date,description,category,amount\n"), KindCSV)
	require.NoError(t, err)
	assert.Empty(t, parsed.Expenses)
	assert.Empty(t, parsed.Errors)
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, err := Parse([]byte(""), KindCSV)
	assert.Error(t, err)
}

func TestParseCSV_HeaderCaseInsensitive(t *testing.T) {
	csvData := "Date,DESCRIPTION,Category,Amount\n2024-01-15,Lunch,Food,12.00\n"

	parsed, err := Parse([]byte(csvData), KindCSV)
	require.NoError(t, err)
	require.Len(t, parsed.Expenses, 1)
	assert.Equal(t, "Lunch", parsed.Expenses[0].Description)
}

func buildWorkbook(t *testing.T, expenseRows [][]interface{}, categoryRows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "expenses"))

	header := []interface{}{"id", "date", "description", "category", "amount", "notes"}
	require.NoError(t, f.SetSheetRow("expenses", "A1", &header))
	for i, row := range expenseRows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("expenses", cell, &row))
	}

	if categoryRows != nil {
		_, err := f.NewSheet("categories")
		require.NoError(t, err)
		catHeader := []interface{}{"id", "name", "color"}
		require.NoError(t, f.SetSheetRow("categories", "A1", &catHeader))
		for i, row := range categoryRows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow("categories", cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t,
		[][]interface{}{
			{"", "2024-02-01", "Rent", "Housing", "1200.00", ""},
			{"", "2024-02-03", "Coffee", "Food", "4.50", "morning"},
		},
		[][]interface{}{
			{"", "Housing", "#ff0000"},
			{"", "Food", "#00ff00"},
		},
	)

	parsed, err := Parse(data, KindWorkbook)
	require.NoError(t, err)

	require.Len(t, parsed.Expenses, 2)
	assert.Equal(t, 2, parsed.Expenses[0].Row)
	assert.Equal(t, "Rent", parsed.Expenses[0].Description)
	assert.Equal(t, "1200", parsed.Expenses[0].Amount.String())
	assert.Equal(t, "morning", parsed.Expenses[1].Notes)

	require.Len(t, parsed.Categories, 2)
	assert.Equal(t, "Housing", parsed.Categories[0].Name)
	assert.Equal(t, "#ff0000", parsed.Categories[0].Color)
}

func TestParseWorkbook_NoCategorySheet(t *testing.T) {
	data := buildWorkbook(t,
		[][]interface{}{
			{"", "2024-02-01", "Rent", "Housing", "1200.00", ""},
		},
		nil,
	)

	parsed, err := Parse(data, KindWorkbook)
	require.NoError(t, err)
	assert.Len(t, parsed.Expenses, 1)
	assert.Empty(t, parsed.Categories)
}

func TestParseWorkbook_MissingExpensesSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "something else"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = Parse(buf.Bytes(), KindWorkbook)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"expenses"`)
}

func TestParseWorkbook_SheetNameCaseInsensitive(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Expenses"))
	header := []interface{}{"date", "description", "category", "amount"}
	require.NoError(t, f.SetSheetRow("Expenses", "A1", &header))
	row := []interface{}{"2024-02-01", "Rent", "Housing", "1200.00"}
	require.NoError(t, f.SetSheetRow("Expenses", "A2", &row))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	parsed, err := Parse(buf.Bytes(), KindWorkbook)
	require.NoError(t, err)
	assert.Len(t, parsed.Expenses, 1)
}

func TestParseWorkbook_NotAWorkbook(t *testing.T) {
	_, err := Parse([]byte("this is not a zip archive"), KindWorkbook)
	assert.Error(t, err)
}

func TestParse_UnknownKind(t *testing.T) {
	_, err := Parse([]byte("x"), Kind("pdf"))
	assert.Error(t, err)
}
