// Package suggest proposes tags for staged import rows. Suggestion is a
// best-effort enhancement: backends absorb their own failures and return
// whatever subset of suggestions they could produce, never an error.
package suggest

import (
	"context"

	"github.com/google/uuid"
)

// Row is the slice of a staging row a suggester needs
type Row struct {
	ID          uuid.UUID
	Description string
	AmountMinor *int64
}

// TagOption is one entry of the project's tag vocabulary
type TagOption struct {
	ID   uuid.UUID
	Name string
}

// maxTagsPerRow caps how many tags a backend may propose for a single row.
// Anything past the cap is discarded in the order the backend ranked them.
const maxTagsPerRow = 3

// Suggestion assigns tag IDs to one staged row
type Suggestion struct {
	RowID  uuid.UUID
	TagIDs []uuid.UUID
}

// Suggester proposes tags for the given rows, constrained to the given
// vocabulary. Implementations must not fail the request: rows they cannot
// handle are simply missing from the result.
type Suggester interface {
	SuggestTags(ctx context.Context, rows []Row, vocabulary []TagOption) []Suggestion
}
