package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlog/spendlog/internal/model"
	"github.com/spendlog/spendlog/internal/parser"
)

func TestMatch(t *testing.T) {
	existing := []model.Category{
		{ID: "c1", Name: "Shopping"},
		{ID: "c2", Name: "Food & Drink"},
	}

	mapping := Match([]string{"Shopping", "SHOPPING", "  shopping ", "Food & Drink", "New Category 1"}, existing)

	require.Len(t, mapping, 5)

	for _, label := range []string{"Shopping", "SHOPPING", "  shopping "} {
		m := mapping[label]
		require.NotNil(t, m.Matched, "label %q should match", label)
		assert.Equal(t, "c1", m.Matched.ID)
	}

	require.NotNil(t, mapping["Food & Drink"].Matched)
	assert.Equal(t, "c2", mapping["Food & Drink"].Matched.ID)

	// Unknown labels stay unmatched instead of being coerced.
	assert.Nil(t, mapping["New Category 1"].Matched)
}

func TestMatch_NoExistingCategories(t *testing.T) {
	mapping := Match([]string{"Anything"}, nil)
	require.Len(t, mapping, 1)
	assert.Nil(t, mapping["Anything"].Matched)
}

func TestMatch_Empty(t *testing.T) {
	assert.Empty(t, Match(nil, []model.Category{{ID: "c1", Name: "Shopping"}}))
}

func TestLabels(t *testing.T) {
	rows := []parser.ExpenseRow{
		{Category: "Food"},
		{Category: "Transport"},
		{Category: "Food"},
		{Category: ""},
		{Category: "Housing"},
	}

	got := Labels(rows)
	assert.Equal(t, []string{"Food", "Transport", "Housing"}, got)
}

func TestLabels_AllBlank(t *testing.T) {
	assert.Empty(t, Labels([]parser.ExpenseRow{{Category: ""}, {Category: ""}}))
}
