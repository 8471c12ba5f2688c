package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spendlog/spendlog/internal/model"
)

// DBTX is the subset of pgx operations the store needs.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres is the pgx-backed ledger store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// ListCategories returns all categories for a user, name order.
func (p *Postgres) ListCategories(ctx context.Context, userID string) ([]model.Category, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, color, icon FROM categories WHERE user_id = $1 ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		var id pgtype.UUID
		var color, icon pgtype.Text
		if err := rows.Scan(&id, &c.Name, &color, &icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.ID = uuid.UUID(id.Bytes).String()
		c.Color = color.String
		c.Icon = icon.String
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CreateCategory inserts a category and returns it with its assigned id.
func (p *Postgres) CreateCategory(ctx context.Context, userID string, c model.Category) (model.Category, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO categories (id, user_id, name, color, icon) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, userID, c.Name, textOrNull(c.Color), textOrNull(c.Icon),
	)
	if err != nil {
		return model.Category{}, fmt.Errorf("create category %q: %w", c.Name, err)
	}
	return c, nil
}

// ListExpenses returns all expenses for a user, date then id order.
func (p *Postgres) ListExpenses(ctx context.Context, userID string) ([]model.Expense, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, expense_date, description, category_id, amount::text, notes
		   FROM expenses WHERE user_id = $1 ORDER BY expense_date, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		var e model.Expense
		var id, categoryID pgtype.UUID
		var date pgtype.Date
		var amount string
		var notes pgtype.Text
		if err := rows.Scan(&id, &date, &e.Description, &categoryID, &amount, &notes); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.ID = uuid.UUID(id.Bytes).String()
		e.UserID = userID
		e.Date = date.Time
		if categoryID.Valid {
			e.CategoryID = uuid.UUID(categoryID.Bytes).String()
		}
		e.Notes = notes.String
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// CreateExpense inserts a single expense row.
func (p *Postgres) CreateExpense(ctx context.Context, e model.Expense) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO expenses (id, user_id, expense_date, description, category_id, amount, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, pgtype.Date{Time: e.Date, Valid: true}, e.Description,
		uuidOrNull(e.CategoryID), e.Amount.String(), textOrNull(e.Notes),
	)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// UpdateExpense replaces the stored fields of an existing expense.
func (p *Postgres) UpdateExpense(ctx context.Context, e model.Expense) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE expenses
		    SET expense_date = $1, description = $2, category_id = $3, amount = $4, notes = $5
		  WHERE id = $6 AND user_id = $7`,
		pgtype.Date{Time: e.Date, Valid: true}, e.Description, uuidOrNull(e.CategoryID),
		e.Amount.String(), textOrNull(e.Notes), e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update expense %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func uuidOrNull(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}
