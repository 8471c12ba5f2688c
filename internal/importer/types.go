// Package importer orchestrates bulk ledger imports: category resolution,
// validation, conflict resolution, per-row writes with failure isolation,
// progress reporting and result aggregation.
package importer

import (
	"fmt"
)

// ConflictStrategy governs how a row that duplicates an existing or
// already-imported record is handled.
type ConflictStrategy string

const (
	// ImportAsNew writes every row as a brand-new record regardless of
	// any id it carries.
	ImportAsNew ConflictStrategy = "import-as-new"
	// SkipDuplicates counts duplicate rows as skipped instead of writing
	// them. Re-importing a clean file a second time skips every row.
	SkipDuplicates ConflictStrategy = "skip-duplicates"
	// Overwrite replaces the existing record's fields when a duplicate
	// is found.
	Overwrite ConflictStrategy = "overwrite"
)

// Options are the user-selected import settings. They may only change
// while a session is in Preview; once a run starts they are frozen.
type Options struct {
	AutoCreateCategories bool             `json:"autoCreateCategories"`
	ConflictStrategy     ConflictStrategy `json:"conflictStrategy"`
	PreserveIDs          bool             `json:"preserveIds"`

	// MatchNotes folds the notes field into the duplicate-detection
	// fingerprint. Off by default: the comparator is (date, description,
	// amount).
	MatchNotes bool `json:"matchNotes,omitempty"`
}

// Validate checks the options are internally consistent.
func (o Options) Validate() error {
	switch o.ConflictStrategy {
	case ImportAsNew, SkipDuplicates, Overwrite:
		return nil
	case "":
		return fmt.Errorf("%w: conflictStrategy is required", ErrInvalidOptions)
	default:
		return fmt.Errorf("%w: unknown conflictStrategy %q", ErrInvalidOptions, o.ConflictStrategy)
	}
}

// Result is the immutable outcome of one completed run.
// Success + Skipped + Failed always equals the input row count, and
// Errors holds one entry per failed row in row-number order.
type Result struct {
	Success int           `json:"success"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors"`
}

// Total is the number of input rows the run accounted for.
func (r *Result) Total() int {
	return r.Success + r.Skipped + r.Failed
}

// State is the lifecycle of one import session.
type State string

const (
	// StatePreview: file parsed, mapping computed, waiting for the user
	// to confirm options.
	StatePreview State = "preview"
	// StateImporting: a run is in flight; options are frozen.
	StateImporting State = "importing"
	// StateComplete: the run finished; Result is available and immutable.
	StateComplete State = "complete"
	// StateFailed: a fatal error stopped the pipeline before or during
	// the run. Terminal.
	StateFailed State = "failed"
)

// Progress is one progress event for an in-flight run.
type Progress struct {
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns run progress as 0-100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Current * 100) / p.Total
}

// ProgressFunc receives a progress update after each processed row.
type ProgressFunc func(current, total int, message string)
