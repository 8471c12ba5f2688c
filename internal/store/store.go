// Package store persists the user's ledger: categories and expenses.
//
// The importer consumes the Store interface and never talks to Postgres
// directly, so tests run against the in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/spendlog/spendlog/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the remote ledger store contract.
//
// Every write is an independent operation: the importer relies on one
// failed row write not affecting any other row.
type Store interface {
	// Ping verifies the store is reachable. Used before a run starts so
	// an unreachable store is a fatal error, not 500 per-row errors.
	Ping(ctx context.Context) error

	ListCategories(ctx context.Context, userID string) ([]model.Category, error)
	CreateCategory(ctx context.Context, userID string, c model.Category) (model.Category, error)

	ListExpenses(ctx context.Context, userID string) ([]model.Expense, error)
	CreateExpense(ctx context.Context, e model.Expense) error
	UpdateExpense(ctx context.Context, e model.Expense) error
}
