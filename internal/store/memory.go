package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spendlog/spendlog/internal/model"
)

// Memory is an in-process Store used by tests and local development.
// Failure injection hooks let importer tests exercise per-row storage
// failures without a database.
type Memory struct {
	mu         sync.RWMutex
	categories map[string][]model.Category // userID -> categories
	expenses   map[string][]model.Expense  // userID -> expenses

	// FailCreateExpense, when set, is consulted before each expense write;
	// a non-nil return is surfaced as the write error.
	FailCreateExpense func(e model.Expense) error
	// FailPing, when set, makes Ping fail.
	FailPing error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		categories: make(map[string][]model.Category),
		expenses:   make(map[string][]model.Expense),
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.FailPing
}

func (m *Memory) ListCategories(ctx context.Context, userID string) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cats := make([]model.Category, len(m.categories[userID]))
	copy(cats, m.categories[userID])
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (m *Memory) CreateCategory(ctx context.Context, userID string, c model.Category) (model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.categories[userID] = append(m.categories[userID], c)
	return c, nil
}

func (m *Memory) ListExpenses(ctx context.Context, userID string) ([]model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expenses := make([]model.Expense, len(m.expenses[userID]))
	copy(expenses, m.expenses[userID])
	return expenses, nil
}

func (m *Memory) CreateExpense(ctx context.Context, e model.Expense) error {
	if m.FailCreateExpense != nil {
		if err := m.FailCreateExpense(e); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expenses[e.UserID] = append(m.expenses[e.UserID], e)
	return nil
}

func (m *Memory) UpdateExpense(ctx context.Context, e model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.expenses[e.UserID] {
		if existing.ID == e.ID {
			m.expenses[e.UserID][i] = e
			return nil
		}
	}
	return ErrNotFound
}
