package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
	"github.com/spendlog/spendlog/internal/store"
)

// Engine runs one import over a parsed file. Rows are processed strictly
// sequentially in input order: conflict detection depends on state
// accumulated by earlier rows, and monotonic progress requires row order.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

// NewEngine creates an Engine over the given ledger store.
func NewEngine(s store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, log: log}
}

// Run imports the parsed expense rows for one user.
//
// The returned error is fatal only: the store unreachable before any row
// was attempted, or the run context cancelled. Per-row failures never
// abort the run; they are collected in Result.Errors and the run
// continues, so a 500-row file with 3 bad rows still imports the other
// 497. For any completed run Success+Skipped+Failed == len(rows).
func (e *Engine) Run(
	ctx context.Context,
	userID string,
	rows []parser.ExpenseRow,
	catRows []parser.CategoryRow,
	existing []model.Category,
	opts Options,
	onProgress ProgressFunc,
) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, Fatal("invalid options", err)
	}
	if onProgress == nil {
		onProgress = func(int, int, string) {}
	}

	resolver := newCategoryResolver(e.store, userID, existing, catRows, opts.AutoCreateCategories)

	dups, err := e.loadDuplicateState(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: []ImportError{}}
	total := len(rows)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, Fatal("import interrupted", err)
		}

		e.processRow(ctx, userID, row, opts, resolver, dups, result)
		onProgress(i+1, total, fmt.Sprintf("processed row %d of %d", i+1, total))
	}

	e.log.Info("import run finished",
		"user_id", userID,
		"total", total,
		"success", result.Success,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, nil
}

// processRow handles one row: category resolution, validation, conflict
// resolution, write. Exactly one of Success/Skipped/Failed is incremented.
func (e *Engine) processRow(
	ctx context.Context,
	userID string,
	row parser.ExpenseRow,
	opts Options,
	resolver *categoryResolver,
	dups *duplicateState,
	result *Result,
) {
	// Category resolution happens before validation: the first occurrence
	// of a new label creates its category even when the row itself later
	// fails a business rule.
	categoryID, err := resolver.resolve(ctx, row.Category)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, ImportError{
			Row:     row.Row,
			Kind:    errorKind(err),
			Message: err.Error(),
		})
		return
	}

	if msg := validateRow(row); msg != "" {
		result.Failed++
		result.Errors = append(result.Errors, ImportError{
			Row:     row.Row,
			Kind:    KindValidation,
			Message: msg,
		})
		return
	}

	expense := model.Expense{
		ID:          newExpenseID(row, opts),
		UserID:      userID,
		Date:        row.Date,
		Description: row.Description,
		CategoryID:  categoryID,
		Amount:      row.Amount,
		Notes:       row.Notes,
	}

	if opts.ConflictStrategy != ImportAsNew {
		key := expense.Key(opts.MatchNotes)
		if prior, isDup := dups.lookup(key); isDup {
			if opts.ConflictStrategy == SkipDuplicates {
				result.Skipped++
				return
			}
			// Overwrite: replace the fields of the record we collided with.
			expense.ID = prior.ID
			if err := e.store.UpdateExpense(ctx, expense); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ImportError{
					Row:     row.Row,
					Kind:    KindStorage,
					Message: fmt.Sprintf("storage write failed: %v", err),
				})
				return
			}
			dups.remember(key, expense)
			result.Success++
			return
		}
	}

	// Each write is independent: a storage failure is recorded for this
	// row only and the run continues.
	if err := e.store.CreateExpense(ctx, expense); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, ImportError{
			Row:     row.Row,
			Kind:    KindStorage,
			Message: fmt.Sprintf("storage write failed: %v", err),
		})
		return
	}

	if opts.ConflictStrategy != ImportAsNew {
		dups.remember(expense.Key(opts.MatchNotes), expense)
	}
	result.Success++
}

// validateRow applies the business rules. Returns "" when the row is
// importable.
func validateRow(row parser.ExpenseRow) string {
	if !row.DateValid {
		return fmt.Sprintf("invalid date %q", row.RawDate)
	}
	if !row.AmountValid {
		return fmt.Sprintf("invalid amount %q", row.RawAmount)
	}
	if !row.Amount.IsPositive() {
		return fmt.Sprintf("amount must be greater than zero, got %s", row.Amount)
	}
	return ""
}

// newExpenseID picks the record id for a row. Ids from the file are only
// honored when the user asked to preserve them and the id is a real UUID.
func newExpenseID(row parser.ExpenseRow, opts Options) string {
	if opts.PreserveIDs && row.ID != "" {
		if parsed, err := uuid.Parse(row.ID); err == nil {
			return parsed.String()
		}
	}
	return uuid.New().String()
}

// duplicateState tracks the fingerprints of existing ledger records plus
// everything imported so far in this run. Run-local by construction: two
// concurrent runs can never cross-contaminate each other's state.
type duplicateState struct {
	byKey map[string]model.Expense
}

// loadDuplicateState preloads the user's ledger fingerprints when the
// strategy needs duplicate detection. A store failure here happens before
// any row is attempted and is therefore fatal.
func (e *Engine) loadDuplicateState(ctx context.Context, userID string, opts Options) (*duplicateState, error) {
	dups := &duplicateState{byKey: make(map[string]model.Expense)}
	if opts.ConflictStrategy == ImportAsNew {
		return dups, nil
	}

	existing, err := e.store.ListExpenses(ctx, userID)
	if err != nil {
		return nil, Fatal("load existing expenses", err)
	}
	for _, exp := range existing {
		dups.byKey[exp.Key(opts.MatchNotes)] = exp
	}
	return dups, nil
}

func (d *duplicateState) lookup(key string) (model.Expense, bool) {
	e, ok := d.byKey[key]
	return e, ok
}

func (d *duplicateState) remember(key string, e model.Expense) {
	d.byKey[key] = e
}

func errorKind(err error) ErrorKind {
	if _, ok := err.(*categoryError); ok {
		return KindCategory
	}
	return KindStorage
}
