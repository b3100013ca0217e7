package suggest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// KeywordSuggester matches tag names directly against row descriptions. It
// is the fallback backend when no Gemini API key is configured, and it also
// runs fully offline in tests.
//
// Matching is two-tier: an Aho-Corasick pass finds tag names contained in
// the description in a single scan, then a fuzzy pass catches close
// misspellings of individual words.
type KeywordSuggester struct {
	logger *slog.Logger
}

// NewKeywordSuggester creates a vocabulary keyword suggester
func NewKeywordSuggester(logger *slog.Logger) *KeywordSuggester {
	return &KeywordSuggester{logger: logger}
}

// SuggestTags matches each row's description against the vocabulary
func (s *KeywordSuggester) SuggestTags(_ context.Context, rows []Row, vocabulary []TagOption) []Suggestion {
	if len(rows) == 0 || len(vocabulary) == 0 {
		return nil
	}

	patterns := make([][]byte, len(vocabulary))
	upperNames := make([]string, len(vocabulary))
	for i, t := range vocabulary {
		upper := strings.ToUpper(strings.TrimSpace(t.Name))
		upperNames[i] = upper
		patterns[i] = []byte(upper)
	}
	matcher := ahocorasick.NewMatcher(patterns)

	var suggestions []Suggestion
	for _, row := range rows {
		normalized := strings.ToUpper(row.Description)

		seen := make(map[uuid.UUID]struct{})
		var tagIDs []uuid.UUID
		add := func(id uuid.UUID) {
			if len(tagIDs) >= maxTagsPerRow {
				return
			}
			if _, dup := seen[id]; dup {
				return
			}
			seen[id] = struct{}{}
			tagIDs = append(tagIDs, id)
		}

		for _, idx := range matcher.Match([]byte(normalized)) {
			if idx >= 0 && idx < len(vocabulary) {
				add(vocabulary[idx].ID)
			}
		}

		for _, token := range strings.Fields(normalized) {
			for i, name := range upperNames {
				if _, dup := seen[vocabulary[i].ID]; dup {
					continue
				}
				if fuzzyTokenMatch(token, name) {
					add(vocabulary[i].ID)
				}
			}
		}

		if len(tagIDs) > 0 {
			suggestions = append(suggestions, Suggestion{RowID: row.ID, TagIDs: tagIDs})
		}
	}

	return suggestions
}

// fuzzyTokenMatch reports whether a description word is a near-miss of a tag
// name. Tolerance scales with length so short tags stay exact-only.
func fuzzyTokenMatch(token, tagName string) bool {
	if len(tagName) < 5 || len(token) < 3 {
		return false
	}

	maxDistance := 1
	if len(tagName) >= 8 {
		maxDistance = 2
	}

	return fuzzy.LevenshteinDistance(token, tagName) <= maxDistance
}
