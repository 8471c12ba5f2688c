package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
	"github.com/spendlog/spendlog/internal/store"
)

const testUser = "user-1"

// mkRow builds an expense row the way the parser would, validity flags
// included.
func mkRow(num int, date, desc, cat, amount string) parser.ExpenseRow {
	r := parser.ExpenseRow{
		Row:         num,
		RawDate:     date,
		Description: desc,
		Category:    cat,
		RawAmount:   amount,
	}
	r.Date, r.DateValid = parser.ParseDate(date)
	r.Amount, r.AmountValid = parser.ParseAmount(amount)
	return r
}

func defaultOpts() Options {
	return Options{
		AutoCreateCategories: true,
		ConflictStrategy:     ImportAsNew,
	}
}

func TestRun_AllSuccess(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Groceries", "Food", "45.99"),
		mkRow(3, "2024-01-16", "Gas", "Transport", "30.00"),
		mkRow(4, "2024-01-17", "Lunch", "Food", "12.50"),
	}

	result, err := e.Run(context.Background(), testUser, rows, nil, nil, defaultOpts(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Success)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, len(rows), result.Total())

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, expenses, 3)
}

func TestRun_FailureIsolation(t *testing.T) {
	st := store.NewMemory()
	st.FailCreateExpense = func(e model.Expense) error {
		if e.Description == "boom" {
			return errors.New("write refused")
		}
		return nil
	}
	e := NewEngine(st, nil)

	var rows []parser.ExpenseRow
	for i := 0; i < 10; i++ {
		rows = append(rows, mkRow(i+2, "2024-01-15", "ok", "Food", fmt.Sprintf("10.%02d", i)))
	}
	rows[4] = mkRow(6, "2024-01-15", "zero amount", "Food", "0")
	rows[6] = mkRow(8, "2024-01-15", "boom", "Food", "10.00")

	result, err := e.Run(context.Background(), testUser, rows, nil, nil, defaultOpts(), nil)
	require.NoError(t, err, "per-row failures must not abort the run")

	assert.Equal(t, 8, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 10, result.Total())

	require.Len(t, result.Errors, 2)
	assert.Equal(t, 6, result.Errors[0].Row)
	assert.Equal(t, KindValidation, result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Message, "greater than zero")
	assert.Equal(t, 8, result.Errors[1].Row)
	assert.Equal(t, KindStorage, result.Errors[1].Kind)
}

func TestRun_InvalidDateAndAmountRows(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "not-a-date", "bad date", "Food", "10.00"),
		mkRow(3, "2024-01-15", "bad amount", "Food", "abc"),
		mkRow(4, "2024-01-15", "fine", "Food", "10.00"),
	}

	result, err := e.Run(context.Background(), testUser, rows, nil, nil, defaultOpts(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Message, "invalid date")
	assert.Contains(t, result.Errors[1].Message, "invalid amount")
}

func TestRun_AutoCreatesCategoryOnce(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Latte", "Coffee Shops", "4.50"),
		mkRow(3, "2024-01-16", "Espresso", "coffee shops", "3.00"),
		mkRow(4, "2024-01-17", "Mocha", "  Coffee Shops ", "5.00"),
	}
	catRows := []parser.CategoryRow{
		{Row: 2, Name: "Coffee Shops", Color: "#6f4e37"},
	}

	result, err := e.Run(context.Background(), testUser, rows, catRows, nil, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Success)

	cats, err := st.ListCategories(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, cats, 1, "three rows sharing a label create one category")
	assert.Equal(t, "Coffee Shops", cats[0].Name)
	assert.Equal(t, "#6f4e37", cats[0].Color, "color comes from the categories sheet")

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	for _, exp := range expenses {
		assert.Equal(t, cats[0].ID, exp.CategoryID)
	}
}

func TestRun_AutoCreateDisabled(t *testing.T) {
	st := store.NewMemory()
	existing, err := st.CreateCategory(context.Background(), testUser, model.Category{Name: "Food"})
	require.NoError(t, err)
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Groceries", "Food", "45.99"),
		mkRow(3, "2024-01-16", "Mystery 1", "Unknown A", "10.00"),
		mkRow(4, "2024-01-17", "Mystery 2", "Unknown B", "20.00"),
	}

	opts := Options{AutoCreateCategories: false, ConflictStrategy: ImportAsNew}
	cats, err := st.ListCategories(context.Background(), testUser)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), testUser, rows, nil, cats, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	for _, ie := range result.Errors {
		assert.Equal(t, KindCategory, ie.Kind)
		assert.Contains(t, ie.Message, "auto-create is disabled")
	}

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, existing.ID, expenses[0].CategoryID)
}

func TestRun_BlankCategoryIsUncategorized(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "No label", "", "9.99"),
	}

	// Blank resolves even with auto-create off; blank is policy, not a label.
	opts := Options{AutoCreateCategories: false, ConflictStrategy: ImportAsNew}
	result, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	cats, err := st.ListCategories(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, model.UncategorizedName, cats[0].Name)
}

func TestRun_SkipDuplicates(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Groceries", "Food", "45.99"),
		mkRow(3, "2024-01-16", "Gas", "Transport", "30.00"),
	}
	opts := Options{AutoCreateCategories: true, ConflictStrategy: SkipDuplicates}

	first, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Success)

	// Re-importing the same file is idempotent.
	cats, err := st.ListCategories(context.Background(), testUser)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), testUser, rows, nil, cats, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Success)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Failed)

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)
}

func TestRun_SkipDuplicatesWithinFile(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Groceries", "Food", "45.99"),
		mkRow(3, "2024-01-15", "Groceries", "Food", "45.99"),
	}
	opts := Options{AutoCreateCategories: true, ConflictStrategy: SkipDuplicates}

	result, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Skipped)
}

func TestRun_Overwrite(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Groceries", "Food", "45.99"),
	}
	opts := Options{AutoCreateCategories: true, ConflictStrategy: Overwrite}

	_, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)

	before, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// Same fingerprint, new notes: the existing record is updated in place.
	updated := mkRow(2, "2024-01-15", "Groceries", "Food", "45.99")
	updated.Notes = "card ending 1234"
	cats, err := st.ListCategories(context.Background(), testUser)
	require.NoError(t, err)

	result, err := e.Run(context.Background(), testUser, []parser.ExpenseRow{updated}, nil, cats, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	after, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, after, 1, "overwrite must not grow the ledger")
	assert.Equal(t, before[0].ID, after[0].ID, "overwrite keeps the original id")
	assert.Equal(t, "card ending 1234", after[0].Notes)
}

func TestRun_MatchNotes(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Coffee", "Food", "4.50"),
		mkRow(3, "2024-01-15", "Coffee", "Food", "4.50"),
	}
	rows[0].Notes = "morning"
	rows[1].Notes = "afternoon"

	// With notes in the comparator, two same-day coffees are distinct.
	opts := Options{AutoCreateCategories: true, ConflictStrategy: SkipDuplicates, MatchNotes: true}
	result, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 0, result.Skipped)
}

func TestRun_PreserveIDs(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	keepID := uuid.New().String()
	rows := []parser.ExpenseRow{
		mkRow(2, "2024-01-15", "Keep my id", "Food", "10.00"),
		mkRow(3, "2024-01-16", "Bogus id", "Food", "20.00"),
	}
	rows[0].ID = keepID
	rows[1].ID = "exp-42"

	opts := Options{AutoCreateCategories: true, ConflictStrategy: ImportAsNew, PreserveIDs: true}
	result, err := e.Run(context.Background(), testUser, rows, nil, nil, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, expenses, 2)

	byDesc := map[string]model.Expense{}
	for _, exp := range expenses {
		byDesc[exp.Description] = exp
	}
	assert.Equal(t, keepID, byDesc["Keep my id"].ID)
	assert.NotEqual(t, "exp-42", byDesc["Bogus id"].ID, "non-UUID ids are replaced")
	_, err = uuid.Parse(byDesc["Bogus id"].ID)
	assert.NoError(t, err)
}

func TestRun_IgnoresFileIDsByDefault(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	fileID := uuid.New().String()
	rows := []parser.ExpenseRow{mkRow(2, "2024-01-15", "X", "Food", "10.00")}
	rows[0].ID = fileID

	result, err := e.Run(context.Background(), testUser, rows, nil, nil, defaultOpts(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	expenses, err := st.ListExpenses(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotEqual(t, fileID, expenses[0].ID)
}

func TestRun_InvalidOptions(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil)

	_, err := e.Run(context.Background(), testUser, nil, nil, nil, Options{ConflictStrategy: "merge"}, nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRun_ContextCancelled(t *testing.T) {
	e := NewEngine(store.NewMemory(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []parser.ExpenseRow{mkRow(2, "2024-01-15", "X", "Food", "10.00")}
	_, err := e.Run(ctx, testUser, rows, nil, nil, defaultOpts(), nil)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	st := store.NewMemory()
	e := NewEngine(st, nil)

	var rows []parser.ExpenseRow
	for i := 0; i < 5; i++ {
		rows = append(rows, mkRow(i+2, "2024-01-15", "row", "Food", "10.00"))
	}

	var seen []int
	onProgress := func(current, total int, _ string) {
		assert.Equal(t, 5, total)
		seen = append(seen, current)
	}

	_, err := e.Run(context.Background(), testUser, rows, nil, nil, defaultOpts(), onProgress)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}
