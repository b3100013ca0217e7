package suggest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseSuggestions(t *testing.T) {
	coffeeID := uuid.New()
	foodID := uuid.New()
	vocab := map[string]uuid.UUID{
		"coffee": coffeeID,
		"food":   foodID,
	}
	chunk := []Row{
		{ID: uuid.New(), Description: "STARBUCKS"},
		{ID: uuid.New(), Description: "TESCO"},
	}

	tests := []struct {
		name    string
		raw     string
		want    map[uuid.UUID][]uuid.UUID
		wantErr bool
	}{
		{
			name: "clean array",
			raw:  `[{"row":0,"tags":["Coffee"]},{"row":1,"tags":["Food"]}]`,
			want: map[uuid.UUID][]uuid.UUID{
				chunk[0].ID: {coffeeID},
				chunk[1].ID: {foodID},
			},
		},
		{
			name: "code fenced response",
			raw:  "```json\n[{\"row\":0,\"tags\":[\"Coffee\"]}]\n```",
			want: map[uuid.UUID][]uuid.UUID{chunk[0].ID: {coffeeID}},
		},
		{
			name: "surrounding commentary",
			raw:  `Here are my suggestions: [{"row":1,"tags":["food"]}] Hope that helps!`,
			want: map[uuid.UUID][]uuid.UUID{chunk[1].ID: {foodID}},
		},
		{
			name: "case insensitive tag names",
			raw:  `[{"row":0,"tags":["COFFEE"]}]`,
			want: map[uuid.UUID][]uuid.UUID{chunk[0].ID: {coffeeID}},
		},
		{
			name: "unknown tags discarded",
			raw:  `[{"row":0,"tags":["Coffee","Crypto"]}]`,
			want: map[uuid.UUID][]uuid.UUID{chunk[0].ID: {coffeeID}},
		},
		{
			name: "duplicate tags deduplicated",
			raw:  `[{"row":0,"tags":["Coffee","coffee"]}]`,
			want: map[uuid.UUID][]uuid.UUID{chunk[0].ID: {coffeeID}},
		},
		{
			name: "row index out of bounds discarded",
			raw:  `[{"row":7,"tags":["Coffee"]},{"row":-1,"tags":["Food"]}]`,
			want: map[uuid.UUID][]uuid.UUID{},
		},
		{
			name: "rows with no usable tags omitted",
			raw:  `[{"row":0,"tags":["Crypto"]},{"row":1,"tags":[]}]`,
			want: map[uuid.UUID][]uuid.UUID{},
		},
		{
			name:    "no array at all",
			raw:     "I could not classify these transactions.",
			wantErr: true,
		},
		{
			name:    "broken json",
			raw:     `[{"row": oops}]`,
			wantErr: true,
		},
		{
			name:    "wrong shape",
			raw:     `[{"row":"zero","tags":["Coffee"]}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.raw, chunk, vocab)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			byRow := make(map[uuid.UUID][]uuid.UUID)
			for _, s := range got {
				byRow[s.RowID] = s.TagIDs
			}
			assert.Equal(t, tt.want, byRow)
		})
	}
}

func TestParseSuggestionsCapsTagsPerRow(t *testing.T) {
	vocab := make(map[string]uuid.UUID)
	ordered := make([]uuid.UUID, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		id := uuid.New()
		vocab[name] = id
		ordered = append(ordered, id)
	}
	chunk := []Row{{ID: uuid.New(), Description: "EVERYTHING STORE"}}

	// An over-eager model response keeps only the first three tags
	got, err := parseSuggestions(`[{"row":0,"tags":["a","b","c","d","e"]}]`, chunk, vocab)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ordered[:3], got[0].TagIDs)
}

func TestExtractArray(t *testing.T) {
	span, ok := extractArray(`noise [1,2] tail`)
	require.True(t, ok)
	assert.Equal(t, "[1,2]", span)

	_, ok = extractArray("no brackets here")
	assert.False(t, ok)

	_, ok = extractArray("] backwards [")
	assert.False(t, ok)
}

func TestSuggestTagsSkipsFailedChunks(t *testing.T) {
	coffeeID := uuid.New()
	vocab := []TagOption{{ID: coffeeID, Name: "Coffee"}}

	rows := make([]Row, 45)
	for i := range rows {
		rows[i] = Row{ID: uuid.New(), Description: fmt.Sprintf("ROW %d", i)}
	}

	calls := 0
	generate := func(_ context.Context, prompt string) (string, error) {
		calls++
		if calls == 2 {
			return "", fmt.Errorf("model unavailable")
		}
		return `[{"row":0,"tags":["Coffee"]}]`, nil
	}

	s := newGeminiSuggesterWithGenerate(generate, discardLogger())
	got := s.SuggestTags(context.Background(), rows, vocab)

	assert.Equal(t, 3, calls)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0].ID, got[0].RowID)
	assert.Equal(t, rows[40].ID, got[1].RowID)
}

func TestSuggestTagsAllChunksFailReturnsEmpty(t *testing.T) {
	generate := func(_ context.Context, _ string) (string, error) {
		return "", fmt.Errorf("model unavailable")
	}

	s := newGeminiSuggesterWithGenerate(generate, discardLogger())
	got := s.SuggestTags(context.Background(),
		[]Row{{ID: uuid.New(), Description: "ANYTHING"}},
		[]TagOption{{ID: uuid.New(), Name: "Coffee"}},
	)

	assert.Empty(t, got)
}

func TestSuggestTagsEmptyInputsSkipModel(t *testing.T) {
	generate := func(_ context.Context, _ string) (string, error) {
		t.Fatal("generate should not be called")
		return "", nil
	}
	s := newGeminiSuggesterWithGenerate(generate, discardLogger())

	assert.Empty(t, s.SuggestTags(context.Background(), nil, []TagOption{{ID: uuid.New(), Name: "Coffee"}}))
	assert.Empty(t, s.SuggestTags(context.Background(), []Row{{ID: uuid.New()}}, nil))
}

func TestBuildPrompt(t *testing.T) {
	amount := int64(-4250)
	chunk := []Row{
		{ID: uuid.New(), Description: "STARBUCKS 003", AmountMinor: &amount},
		{ID: uuid.New(), Description: "TESCO"},
	}
	vocab := []TagOption{
		{ID: uuid.New(), Name: "Coffee"},
		{ID: uuid.New(), Name: "Groceries"},
	}

	prompt := buildPrompt(chunk, vocab)

	assert.Contains(t, prompt, "- Coffee\n")
	assert.Contains(t, prompt, "- Groceries\n")
	assert.Contains(t, prompt, "0. STARBUCKS 003 (-42.50)")
	assert.Contains(t, prompt, "1. TESCO")
	assert.True(t, strings.Contains(prompt, "JSON"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "-42.50", formatAmount(-4250))
	assert.Equal(t, "17.00", formatAmount(1700))
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "-0.99", formatAmount(-99))
}
