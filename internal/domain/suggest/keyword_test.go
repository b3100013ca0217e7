package suggest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordSuggesterSubstringMatch(t *testing.T) {
	coffeeID := uuid.New()
	groceriesID := uuid.New()
	vocab := []TagOption{
		{ID: coffeeID, Name: "Coffee"},
		{ID: groceriesID, Name: "Groceries"},
	}
	rows := []Row{
		{ID: uuid.New(), Description: "STARBUCKS COFFEE 003"},
		{ID: uuid.New(), Description: "SHELL PETROL"},
	}

	s := NewKeywordSuggester(discardLogger())
	got := s.SuggestTags(context.Background(), rows, vocab)

	require.Len(t, got, 1)
	assert.Equal(t, rows[0].ID, got[0].RowID)
	assert.Equal(t, []uuid.UUID{coffeeID}, got[0].TagIDs)
}

func TestKeywordSuggesterCaseInsensitive(t *testing.T) {
	rentID := uuid.New()
	rows := []Row{{ID: uuid.New(), Description: "monthly rent payment"}}

	s := NewKeywordSuggester(discardLogger())
	got := s.SuggestTags(context.Background(), rows, []TagOption{{ID: rentID, Name: "RENT"}})

	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{rentID}, got[0].TagIDs)
}

func TestKeywordSuggesterFuzzyTypo(t *testing.T) {
	groceriesID := uuid.New()
	rows := []Row{{ID: uuid.New(), Description: "WEEKLY GROCERRIES SHOP"}}

	s := NewKeywordSuggester(discardLogger())
	got := s.SuggestTags(context.Background(), rows, []TagOption{{ID: groceriesID, Name: "Groceries"}})

	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{groceriesID}, got[0].TagIDs)
}

func TestKeywordSuggesterShortTagsStayExact(t *testing.T) {
	gymID := uuid.New()
	vocab := []TagOption{{ID: gymID, Name: "Gym"}}

	s := NewKeywordSuggester(discardLogger())

	// A one-letter slip on a three-letter tag must not match.
	got := s.SuggestTags(context.Background(),
		[]Row{{ID: uuid.New(), Description: "GYN VISIT"}}, vocab)
	assert.Empty(t, got)

	got = s.SuggestTags(context.Background(),
		[]Row{{ID: uuid.New(), Description: "GYM MEMBERSHIP"}}, vocab)
	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{gymID}, got[0].TagIDs)
}

func TestKeywordSuggesterNoDuplicateTags(t *testing.T) {
	coffeeID := uuid.New()
	rows := []Row{{ID: uuid.New(), Description: "COFFEE AND MORE COFFEE"}}

	s := NewKeywordSuggester(discardLogger())
	got := s.SuggestTags(context.Background(), rows, []TagOption{{ID: coffeeID, Name: "Coffee"}})

	require.Len(t, got, 1)
	assert.Equal(t, []uuid.UUID{coffeeID}, got[0].TagIDs)
}

func TestKeywordSuggesterCapsTagsPerRow(t *testing.T) {
	vocab := []TagOption{
		{ID: uuid.New(), Name: "Coffee"},
		{ID: uuid.New(), Name: "Groceries"},
		{ID: uuid.New(), Name: "Snacks"},
		{ID: uuid.New(), Name: "Household"},
		{ID: uuid.New(), Name: "Drinks"},
	}
	rows := []Row{{ID: uuid.New(), Description: "COFFEE GROCERIES SNACKS HOUSEHOLD DRINKS"}}

	s := NewKeywordSuggester(discardLogger())
	got := s.SuggestTags(context.Background(), rows, vocab)

	require.Len(t, got, 1)
	assert.Len(t, got[0].TagIDs, 3)
}

func TestKeywordSuggesterEmptyInputs(t *testing.T) {
	s := NewKeywordSuggester(discardLogger())

	assert.Empty(t, s.SuggestTags(context.Background(), nil, []TagOption{{ID: uuid.New(), Name: "Coffee"}}))
	assert.Empty(t, s.SuggestTags(context.Background(), []Row{{ID: uuid.New(), Description: "X"}}, nil))
}
