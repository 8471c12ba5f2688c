package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
	"github.com/spendlog/spendlog/internal/store"
)

// categoryError marks a CategoryResolutionError: an unmatched label with
// auto-creation disabled.
type categoryError struct {
	label string
}

func (e *categoryError) Error() string {
	return fmt.Sprintf("category %q does not exist and auto-create is disabled", e.label)
}

// categoryResolver maps raw labels to category ids for one run.
//
// State is run-local: byName starts from the categories that existed when
// the run began and absorbs every category created during the run, so N
// rows sharing one new label produce exactly one category and no repeat
// remote lookups.
type categoryResolver struct {
	store      store.Store
	userID     string
	autoCreate bool

	byName map[string]model.Category // normalized name -> category
	colors map[string]string         // normalized name -> color from the categories sheet
}

func newCategoryResolver(
	s store.Store,
	userID string,
	existing []model.Category,
	catRows []parser.CategoryRow,
	autoCreate bool,
) *categoryResolver {
	r := &categoryResolver{
		store:      s,
		userID:     userID,
		autoCreate: autoCreate,
		byName:     make(map[string]model.Category, len(existing)),
		colors:     make(map[string]string, len(catRows)),
	}
	for _, c := range existing {
		r.byName[model.NormalizeLabel(c.Name)] = c
	}
	// The categories sheet does not create categories eagerly; it supplies
	// display colors for the ones auto-creation ends up making.
	for _, cr := range catRows {
		r.colors[model.NormalizeLabel(cr.Name)] = cr.Color
	}
	return r
}

// resolve returns the category id for a raw label.
//
// A blank label resolves to the reserved uncategorized category, which is
// created on demand regardless of the auto-create option: blank is a
// policy case, not a file label. An unmatched non-blank label is created
// only when auto-creation is on, and only once per run.
func (r *categoryResolver) resolve(ctx context.Context, label string) (string, error) {
	name := label
	policy := false
	if model.NormalizeLabel(label) == "" {
		name = model.UncategorizedName
		policy = true
	}

	key := model.NormalizeLabel(name)
	if c, ok := r.byName[key]; ok {
		return c.ID, nil
	}

	if !policy && !r.autoCreate {
		return "", &categoryError{label: label}
	}

	// Categories keep the label's original casing, minus surrounding
	// whitespace.
	created, err := r.store.CreateCategory(ctx, r.userID, model.Category{
		Name:  strings.TrimSpace(name),
		Color: r.colors[key],
	})
	if err != nil {
		return "", fmt.Errorf("create category %q: %w", name, err)
	}

	r.byName[key] = created
	return created.ID, nil
}
