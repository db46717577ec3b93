package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/devops-rag/internal/domain"
)

// DefaultMaxResults is used when a Query does not set Size.
const DefaultMaxResults = 20

// symbolsBoost weights symbol matches above plain content matches.
const symbolsBoost = 5.0

// Query describes a full-text search with optional exact filters.
type Query struct {
	Text       string
	Repository string
	Extension  string
	Size       int
}

// Hit is a single search match.
type Hit struct {
	ID         string
	Repository string
	Path       string
	Extension  string
	Summary    string
	Score      float64
	Fragments  []string
}

// Results holds the hits of a search and the total number of matches.
type Results struct {
	Total uint64
	Hits  []Hit
}

// Searcher searches a set of repository indexes.
type Searcher struct {
	alias   bleve.IndexAlias
	indexes []bleve.Index
	repos   []string
}

// Repositories returns the repositories covered by the searcher.
func (s *Searcher) Repositories() []string {
	return s.repos
}

// Search runs q against every open index.
func (s *Searcher) Search(ctx context.Context, q Query) (*Results, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("query cannot be empty")
	}

	size := q.Size
	if size <= 0 {
		size = DefaultMaxResults
	}

	req := bleve.NewSearchRequest(buildQuery(q))
	req.Size = size
	req.Fields = []string{domain.FieldRepository, domain.FieldPath, domain.FieldExtension, domain.FieldSummary}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(domain.FieldContent)

	res, err := s.alias.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := &Results{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		hit.Repository, _ = h.Fields[domain.FieldRepository].(string)
		hit.Path, _ = h.Fields[domain.FieldPath].(string)
		hit.Extension, _ = h.Fields[domain.FieldExtension].(string)
		hit.Summary, _ = h.Fields[domain.FieldSummary].(string)
		if fragments, ok := h.Fragments[domain.FieldContent]; ok {
			hit.Fragments = fragments
		}
		results.Hits = append(results.Hits, hit)
	}
	return results, nil
}

// Close releases every open index.
func (s *Searcher) Close() error {
	var errs []error
	for _, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildQuery matches the text against content, summary and boosted symbols,
// narrowed by exact repository and extension filters.
func buildQuery(q Query) query.Query {
	contentQuery := bleve.NewMatchQuery(q.Text)
	contentQuery.SetField(domain.FieldContent)

	summaryQuery := bleve.NewMatchQuery(q.Text)
	summaryQuery.SetField(domain.FieldSummary)

	symbolsQuery := bleve.NewMatchQuery(q.Text)
	symbolsQuery.SetField(domain.FieldSymbols)
	symbolsQuery.SetBoost(symbolsBoost)

	text := bleve.NewDisjunctionQuery(contentQuery, summaryQuery, symbolsQuery)

	if q.Repository == "" && q.Extension == "" {
		return text
	}

	must := []query.Query{text}
	if q.Repository != "" {
		repoQuery := bleve.NewTermQuery(q.Repository)
		repoQuery.SetField(domain.FieldRepository)
		must = append(must, repoQuery)
	}
	if q.Extension != "" {
		extQuery := bleve.NewTermQuery(strings.TrimPrefix(q.Extension, "."))
		extQuery.SetField(domain.FieldExtension)
		must = append(must, extQuery)
	}
	return bleve.NewConjunctionQuery(must...)
}
