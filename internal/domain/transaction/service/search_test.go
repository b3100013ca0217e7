package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
)

func indexedTransaction(projectID uuid.UUID, description string) *repository.Transaction {
	return &repository.Transaction{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Description: description,
	}
}

func TestSearchScopedToProject(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)

	household := uuid.New()
	other := uuid.New()

	coffee := indexedTransaction(household, "Coffee at Blue Bottle")
	groceries := indexedTransaction(household, "Weekly groceries")
	otherCoffee := indexedTransaction(other, "Coffee beans subscription")

	require.NoError(t, index.Add(coffee))
	require.NoError(t, index.Add(groceries))
	require.NoError(t, index.Add(otherCoffee))

	ids, err := index.Search(household, "coffee", 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, coffee.ID, ids[0])
}

func TestSearchToleratesTypos(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)

	projectID := uuid.New()
	txn := indexedTransaction(projectID, "Monthly Spotify subscription")
	require.NoError(t, index.Add(txn))

	// One edit away still matches
	ids, err := index.Search(projectID, "spotfy", 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, txn.ID, ids[0])
}

func TestSearchNoMatch(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)

	projectID := uuid.New()
	require.NoError(t, index.Add(indexedTransaction(projectID, "Rent payment")))

	ids, err := index.Search(projectID, "helicopter", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRemoveDropsTransaction(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)

	projectID := uuid.New()
	txn := indexedTransaction(projectID, "Gym membership")
	require.NoError(t, index.Add(txn))
	require.NoError(t, index.Remove(txn.ID))

	ids, err := index.Search(projectID, "gym", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRefreshAndStaleness(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)

	projectID := uuid.New()
	assert.True(t, index.Stale(projectID), "never-refreshed project starts stale")

	entries := []repository.IndexEntry{
		{ID: uuid.New(), ProjectID: projectID, Description: "Bakery run"},
		{ID: uuid.New(), ProjectID: projectID, Description: "Train ticket"},
	}
	require.NoError(t, index.Refresh(projectID, entries))
	assert.False(t, index.Stale(projectID))

	ids, err := index.Search(projectID, "bakery", 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, entries[0].ID, ids[0])

	assert.True(t, index.Stale(uuid.New()), "other projects stay stale")
}
