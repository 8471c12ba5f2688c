// Package model defines the ledger records shared by the parser, importer,
// store and web layers. It has no dependencies on storage or transport.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedName is the reserved category that expenses with a blank
// label resolve to. It is created on demand like any other category.
const UncategorizedName = "Uncategorized"

// Category is a user-owned expense category. Names are unique per user
// after normalization (see NormalizeLabel).
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// Expense is one ledger record. Amount is an exact decimal in the user's
// currency units; Date carries no time-of-day component.
type Expense struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	CategoryID  string          `json:"categoryId"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes,omitempty"`
}

// NormalizeLabel reduces a raw category label to its comparison form:
// surrounding whitespace trimmed, case folded. "  Shopping " and "SHOPPING"
// both normalize to "shopping".
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Fingerprint is the duplicate-detection key for an expense. Two rows with
// the same fingerprint are considered the same transaction by the
// skip-duplicates and overwrite strategies.
//
// The comparator is (date, normalized description, amount). Notes join the
// key only when matchNotes is set; time-of-day never participates since
// Date is date-only.
func Fingerprint(date time.Time, description string, amount decimal.Decimal, notes string, matchNotes bool) string {
	key := date.Format("2006-01-02") + "|" + NormalizeLabel(description) + "|" + amount.String()
	if matchNotes {
		key += "|" + NormalizeLabel(notes)
	}
	return key
}

// Key returns the expense's own fingerprint.
func (e Expense) Key(matchNotes bool) string {
	return Fingerprint(e.Date, e.Description, e.Amount, e.Notes, matchNotes)
}
