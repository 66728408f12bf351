// Package knowledge stores artifacts collected during a run (scraped pages,
// scan output, analysis notes) in a searchable full-text index so later
// iterations and sibling agents can recall them.
package knowledge

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
)

// Artifact is a single piece of collected knowledge.
type Artifact struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Source    string    `json:"source"` // e.g. "web_search", "terminal", "notes"
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	ID      string
	Score   float64
	AgentID string
	Source  string
	Title   string
	URL     string
	Content string
}

// Index is a BM25 full-text index over run artifacts.
type Index struct {
	index bleve.Index
	path  string
}

// Open creates or opens the artifact index at the given path.
func Open(path string) (*Index, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index: %w", err)
	}
	return &Index{index: index, path: path}, nil
}

func buildMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	// Exact-match fields.
	for _, name := range []string{"agent_id", "source", "url"} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		field.Index = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Add indexes an artifact. A missing ID or timestamp is filled in, and the
// final artifact is returned.
func (ix *Index) Add(a Artifact) (Artifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	doc := map[string]interface{}{
		"agent_id": a.AgentID,
		"source":   a.Source,
		"title":    a.Title,
		"url":      a.URL,
		"content":  a.Content,
	}
	if err := ix.index.Index(a.ID, doc); err != nil {
		return Artifact{}, fmt.Errorf("failed to index artifact: %w", err)
	}
	return a, nil
}

// Search runs a full-text query over titles and content. An empty agentID
// searches across all agents.
func (ix *Index) Search(query, agentID string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 10
	}

	matchQuery := bleve.NewMatchQuery(query)

	var searchRequest *bleve.SearchRequest
	if agentID != "" {
		agentQuery := bleve.NewTermQuery(agentID)
		agentQuery.SetField("agent_id")
		searchRequest = bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, agentQuery))
	} else {
		searchRequest = bleve.NewSearchRequest(matchQuery)
	}
	searchRequest.Size = k
	searchRequest.Fields = []string{"agent_id", "source", "title", "url", "content"}

	return ix.runSearch(searchRequest)
}

// List returns artifacts filtered by agent and source without a text query.
// Either filter may be empty to match everything.
func (ix *Index) List(agentID, source string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 50
	}

	conjuncts := make([]query.Query, 0, 2)
	if agentID != "" {
		q := bleve.NewTermQuery(agentID)
		q.SetField("agent_id")
		conjuncts = append(conjuncts, q)
	}
	if source != "" {
		q := bleve.NewTermQuery(source)
		q.SetField("source")
		conjuncts = append(conjuncts, q)
	}

	var searchRequest *bleve.SearchRequest
	if len(conjuncts) == 0 {
		searchRequest = bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	} else {
		searchRequest = bleve.NewSearchRequest(bleve.NewConjunctionQuery(conjuncts...))
	}
	searchRequest.Size = k
	searchRequest.Fields = []string{"agent_id", "source", "title", "url", "content"}

	return ix.runSearch(searchRequest)
}

func (ix *Index) runSearch(searchRequest *bleve.SearchRequest) ([]SearchHit, error) {
	searchResult, err := ix.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["agent_id"].(string); ok {
			h.AgentID = v
		}
		if v, ok := hit.Fields["source"].(string); ok {
			h.Source = v
		}
		if v, ok := hit.Fields["title"].(string); ok {
			h.Title = v
		}
		if v, ok := hit.Fields["url"].(string); ok {
			h.URL = v
		}
		if v, ok := hit.Fields["content"].(string); ok {
			h.Content = v
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// DocCount reports the number of stored artifacts.
func (ix *Index) DocCount() (uint64, error) {
	return ix.index.DocCount()
}

// Close closes the underlying index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
