package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
)

// indexTTL bounds how stale the per-project search index may get before a
// query triggers a rebuild. Transactions created outside this service (the
// import commit path) become searchable at the next rebuild.
const indexTTL = 30 * time.Second

// searchDocument is what gets indexed per transaction
type searchDocument struct {
	ProjectID   string `json:"project_id"`
	Description string `json:"description"`
}

// SearchIndex provides full-text description search over an in-memory bleve
// index, rebuilt per project on demand.
type SearchIndex struct {
	index     bleve.Index
	mu        sync.Mutex
	refreshed map[uuid.UUID]time.Time
}

// NewSearchIndex creates an empty in-memory search index.
func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &SearchIndex{
		index:     index,
		refreshed: make(map[uuid.UUID]time.Time),
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("project_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Refresh replaces a project's entries with the given set.
func (si *SearchIndex) Refresh(projectID uuid.UUID, entries []repository.IndexEntry) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	batch := si.index.NewBatch()
	for _, e := range entries {
		doc := searchDocument{
			ProjectID:   e.ProjectID.String(),
			Description: e.Description,
		}
		if err := batch.Index(e.ID.String(), doc); err != nil {
			return fmt.Errorf("failed to index transaction %s: %w", e.ID, err)
		}
	}
	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply index batch: %w", err)
	}

	si.refreshed[projectID] = time.Now()
	return nil
}

// Stale reports whether the project's entries are due for a rebuild.
func (si *SearchIndex) Stale(projectID uuid.UUID) bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	last, ok := si.refreshed[projectID]
	return !ok || time.Since(last) > indexTTL
}

// Add indexes a single transaction immediately.
func (si *SearchIndex) Add(txn *repository.Transaction) error {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.index.Index(txn.ID.String(), searchDocument{
		ProjectID:   txn.ProjectID.String(),
		Description: txn.Description,
	})
}

// Remove drops a transaction from the index.
func (si *SearchIndex) Remove(txnID uuid.UUID) error {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.index.Delete(txnID.String())
}

// Search returns the IDs of transactions in the project whose description
// matches the query, best first. Fuzziness of one edit tolerates typos.
func (si *SearchIndex) Search(projectID uuid.UUID, query string, limit int) ([]uuid.UUID, error) {
	si.mu.Lock()
	defer si.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("description")
	matchQuery.SetFuzziness(1)

	projectQuery := bleve.NewTermQuery(projectID.String())
	projectQuery.SetField("project_id")

	searchRequest := bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, projectQuery))
	searchRequest.Size = limit

	result, err := si.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
