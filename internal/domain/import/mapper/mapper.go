// Package mapper guesses which statement columns hold the date, amount, and
// description. The guess only seeds UI defaults; the user-confirmed mapping
// is what gets persisted.
package mapper

import "strings"

// Candidate substrings per semantic field, scanned in order. Earlier headers
// win ties: the scan walks headers first, candidates second.
var (
	dateCandidates        = []string{"date", "posted", "transaction date", "trans date"}
	amountCandidates      = []string{"amount", "debit", "credit", "sum", "total"}
	descriptionCandidates = []string{"description", "memo", "payee", "merchant", "name"}
)

// Suggestion maps semantic fields to header strings. An empty string means
// no heuristic matched that field.
type Suggestion struct {
	DateHeader        string `json:"dateHeader"`
	AmountHeader      string `json:"amountHeader"`
	DescriptionHeader string `json:"descriptionHeader"`
}

// Suggest scans headers for the three semantic fields. Matching is a
// case-insensitive substring test; the first header in header order that
// contains any candidate wins the field.
func Suggest(headers []string) Suggestion {
	return Suggestion{
		DateHeader:        firstMatch(headers, dateCandidates),
		AmountHeader:      firstMatch(headers, amountCandidates),
		DescriptionHeader: firstMatch(headers, descriptionCandidates),
	}
}

func firstMatch(headers, candidates []string) string {
	for _, header := range headers {
		lower := strings.ToLower(header)
		for _, candidate := range candidates {
			if strings.Contains(lower, candidate) {
				return header
			}
		}
	}
	return ""
}
