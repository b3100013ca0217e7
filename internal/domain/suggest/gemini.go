package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-2.5-flash"

// chunkSize is how many rows go into a single model call. Large statements
// are split so one bad response only loses one chunk of suggestions.
const chunkSize = 20

type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiSuggester asks a Gemini model to assign vocabulary tags to rows
type GeminiSuggester struct {
	generate generateFunc
	logger   *slog.Logger
}

// NewGeminiSuggester creates a suggester backed by the Gemini API
func NewGeminiSuggester(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiSuggester, error) {
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	generate := func(ctx context.Context, prompt string) (string, error) {
		contents := []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: prompt}},
			},
		}

		resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}

		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("empty response from model")
		}
		return text, nil
	}

	return &GeminiSuggester{generate: generate, logger: logger}, nil
}

// newGeminiSuggesterWithGenerate is used by tests to stub the model call
func newGeminiSuggesterWithGenerate(generate generateFunc, logger *slog.Logger) *GeminiSuggester {
	return &GeminiSuggester{generate: generate, logger: logger}
}

// SuggestTags sends the rows to the model in chunks. A chunk whose call or
// parse fails is logged and dropped; the remaining chunks still contribute.
func (s *GeminiSuggester) SuggestTags(ctx context.Context, rows []Row, vocabulary []TagOption) []Suggestion {
	if len(rows) == 0 || len(vocabulary) == 0 {
		return nil
	}

	vocab := indexVocabulary(vocabulary)

	var suggestions []Suggestion
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		raw, err := s.generate(ctx, buildPrompt(chunk, vocabulary))
		if err != nil {
			s.logger.WarnContext(ctx, "tag suggestion chunk failed, skipping", "offset", start, "error", err)
			continue
		}

		parsed, err := parseSuggestions(raw, chunk, vocab)
		if err != nil {
			s.logger.WarnContext(ctx, "tag suggestion response unusable, skipping chunk", "offset", start, "error", err)
			continue
		}
		suggestions = append(suggestions, parsed...)
	}

	return suggestions
}

func buildPrompt(chunk []Row, vocabulary []TagOption) string {
	var b strings.Builder

	b.WriteString("You are a bookkeeping assistant tagging bank statement lines.\n\n")
	b.WriteString("Allowed tags (use these names EXACTLY, suggest nothing else):\n")
	for _, t := range vocabulary {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString("\n")
	}

	b.WriteString("\nTransactions:\n")
	for i, r := range chunk {
		b.WriteString(fmt.Sprintf("%d. %s", i, r.Description))
		if r.AmountMinor != nil {
			b.WriteString(fmt.Sprintf(" (%s)", formatAmount(*r.AmountMinor)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nFor each transaction pick zero or more fitting tags from the allowed list.\n")
	b.WriteString("Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("Output a JSON array of objects with fields:\n")
	b.WriteString("- \"row\": number (the transaction index above)\n")
	b.WriteString("- \"tags\": array of tag name strings\n")
	b.WriteString("Omit transactions that fit no tag.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}

// extractArray pulls the first [...] span out of the raw model text. Models
// sometimes surround the JSON with commentary or code fences despite the
// prompt saying not to.
func extractArray(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(raw, "]")
	if end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

type modelSuggestion struct {
	Row  int      `json:"row"`
	Tags []string `json:"tags"`
}

// parseSuggestions decodes one chunk response. Row indexes outside the chunk
// and tag names outside the vocabulary are discarded rather than failing the
// chunk, and at most maxTagsPerRow tags are kept per row.
func parseSuggestions(raw string, chunk []Row, vocab map[string]uuid.UUID) ([]Suggestion, error) {
	span, ok := extractArray(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var entries []modelSuggestion
	if err := json.Unmarshal([]byte(span), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var suggestions []Suggestion
	for _, entry := range entries {
		if entry.Row < 0 || entry.Row >= len(chunk) {
			continue
		}

		seen := make(map[uuid.UUID]struct{})
		var tagIDs []uuid.UUID
		for _, name := range entry.Tags {
			id, ok := vocab[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			tagIDs = append(tagIDs, id)
			if len(tagIDs) == maxTagsPerRow {
				break
			}
		}

		if len(tagIDs) == 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{RowID: chunk[entry.Row].ID, TagIDs: tagIDs})
	}

	return suggestions, nil
}

func indexVocabulary(vocabulary []TagOption) map[string]uuid.UUID {
	vocab := make(map[string]uuid.UUID, len(vocabulary))
	for _, t := range vocabulary {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if _, exists := vocab[key]; !exists {
			vocab[key] = t.ID
		}
	}
	return vocab
}

func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
