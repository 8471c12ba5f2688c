// Package category reconciles raw category labels from an uploaded file
// against a user's existing category set.
//
// Matching is deliberately narrow: a label matches a category exactly when
// the two are equal after trimming surrounding whitespace and case folding.
// That makes "  Shopping ", "SHOPPING" and "Shopping" resolve to the same
// category while a genuinely new label like "New Category 1" stays
// unmatched instead of being coerced into something unrelated.
//
// Match is a pure function over its inputs; it is safe to call repeatedly
// for live preview as the user toggles import options.
package category

import (
	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
)

// Mapping is the resolved relationship between one raw label and the
// user's category set. Matched is nil for an unknown label, which makes
// the label a candidate for auto-creation or for failure depending on the
// import options.
type Mapping struct {
	Matched *model.Category `json:"matched"`
}

// Match resolves each distinct raw label against the existing categories.
// The returned map is keyed by the raw label as it appeared in the file.
func Match(labels []string, existing []model.Category) map[string]Mapping {
	byName := make(map[string]*model.Category, len(existing))
	for i := range existing {
		byName[model.NormalizeLabel(existing[i].Name)] = &existing[i]
	}

	result := make(map[string]Mapping, len(labels))
	for _, label := range labels {
		if _, done := result[label]; done {
			continue
		}
		result[label] = Mapping{Matched: byName[model.NormalizeLabel(label)]}
	}
	return result
}

// Labels extracts the distinct non-blank raw labels from expense rows in
// first-seen order. Blank labels are resolved separately (uncategorized)
// and never participate in matching.
func Labels(rows []parser.ExpenseRow) []string {
	seen := make(map[string]bool, len(rows))
	var labels []string
	for _, r := range rows {
		if r.Category == "" || seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		labels = append(labels, r.Category)
	}
	return labels
}
