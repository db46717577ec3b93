package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/sha1n/devops-rag/internal/crawler"
	"github.com/sha1n/devops-rag/internal/domain"
)

const (
	// IndexSuffix is the suffix for index directories
	IndexSuffix = ".bleve"

	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 100

	// MaxBatchBytes is the maximum bytes per batch (10MB)
	MaxBatchBytes = 10 * 1024 * 1024
)

// ErrNoIndexes is returned by Open when there is nothing to search.
var ErrNoIndexes = errors.New("no indexes to search")

// Indexer manages one Bleve index per repository under a base directory.
type Indexer struct {
	baseDir string
}

// NewIndexer creates a new indexer.
func NewIndexer(baseDir string) *Indexer {
	return &Indexer{baseDir: baseDir}
}

// BaseDir returns the directory holding the indexes.
func (i *Indexer) BaseDir() string {
	return i.baseDir
}

func (i *Indexer) indexPath(repo string) string {
	return filepath.Join(i.baseDir, repo+IndexSuffix)
}

// CreateIndexMapping creates the Bleve index mapping for record documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldContent, contentField)

	summaryField := bleve.NewTextFieldMapping()
	summaryField.Analyzer = standard.Name
	summaryField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldSummary, summaryField)

	symbolsField := bleve.NewTextFieldMapping()
	symbolsField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(domain.FieldSymbols, symbolsField)

	for _, name := range []string{domain.FieldRepository, domain.FieldPath, domain.FieldExtension} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = keyword.Name
		field.Store = true
		docMapping.AddFieldMappingsAt(name, field)
	}

	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldIngestionDate, dateField)

	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// NewDocument converts a record into its indexed form.
func NewDocument(r domain.Record) domain.Document {
	ext := crawler.Extension(r.Path)
	return domain.Document{
		ID:            r.DocID(),
		Repository:    r.RepositoryName,
		Path:          r.Path,
		Extension:     ext,
		Content:       r.Content,
		Summary:       r.Summary,
		Symbols:       ExtractSymbols(ext, r.Content),
		IngestionDate: r.IngestionDate,
	}
}

// IndexRecords replaces the index of repo with the given records.
// Returns the number of documents indexed.
func (i *Indexer) IndexRecords(repo string, records []domain.Record) (count int, err error) {
	if err := validateRepo(repo); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(i.baseDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := i.Delete(repo); err != nil {
		return 0, fmt.Errorf("failed to remove previous index: %w", err)
	}

	index, err := bleve.New(i.indexPath(repo), CreateIndexMapping())
	if err != nil {
		return 0, fmt.Errorf("failed to create index: %w", err)
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	batch := index.NewBatch()
	batchSize := 0
	batchBytes := 0

	for _, r := range records {
		doc := NewDocument(r)
		if err := batch.Index(doc.ID, doc); err != nil {
			return count, fmt.Errorf("failed to index %s: %w", doc.ID, err)
		}
		batchSize++
		batchBytes += len(doc.Content) + len(doc.Summary)

		if batchSize >= MaxBatchSize || batchBytes >= MaxBatchBytes {
			if err := index.Batch(batch); err != nil {
				return count, fmt.Errorf("batch index failed: %w", err)
			}
			count += batchSize
			batch = index.NewBatch()
			batchSize = 0
			batchBytes = 0
		}
	}

	if batchSize > 0 {
		if err := index.Batch(batch); err != nil {
			return count, fmt.Errorf("final batch index failed: %w", err)
		}
		count += batchSize
	}

	slog.Debug("Indexed repository", "repository", repo, "documents", count)
	return count, nil
}

// Exists checks if an index exists for repo.
func (i *Indexer) Exists(repo string) bool {
	info, err := os.Stat(i.indexPath(repo))
	return err == nil && info.IsDir()
}

// Delete removes the index of repo from disk. A missing index is not an error.
func (i *Indexer) Delete(repo string) error {
	if err := validateRepo(repo); err != nil {
		return err
	}
	return os.RemoveAll(i.indexPath(repo))
}

// Count returns the number of documents in the index of repo.
func (i *Indexer) Count(repo string) (count uint64, err error) {
	index, err := bleve.Open(i.indexPath(repo))
	if err != nil {
		return 0, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() {
		if cerr := index.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return index.DocCount()
}

// Repositories lists the repositories that have an index, sorted by name.
func (i *Indexer) Repositories() ([]string, error) {
	entries, err := os.ReadDir(i.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	repos := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), IndexSuffix) {
			repos = append(repos, strings.TrimSuffix(e.Name(), IndexSuffix))
		}
	}
	sort.Strings(repos)
	return repos, nil
}

// Open opens the indexes of repos for reading behind a single alias.
// An empty repos opens every index under the base directory.
func (i *Indexer) Open(repos []string) (*Searcher, error) {
	if len(repos) == 0 {
		all, err := i.Repositories()
		if err != nil {
			return nil, err
		}
		repos = all
	}

	indexes := make([]bleve.Index, 0, len(repos))
	for _, repo := range repos {
		index, err := bleve.Open(i.indexPath(repo))
		if err != nil {
			for _, idx := range indexes {
				_ = idx.Close()
			}
			return nil, fmt.Errorf("failed to open index for %s: %w", repo, err)
		}
		indexes = append(indexes, index)
	}

	if len(indexes) == 0 {
		return nil, ErrNoIndexes
	}

	return &Searcher{
		alias:   bleve.NewIndexAlias(indexes...),
		indexes: indexes,
		repos:   repos,
	}, nil
}

func validateRepo(repo string) error {
	if strings.TrimSpace(repo) == "" || repo == "." || repo == ".." || strings.ContainsAny(repo, `/\`) {
		return fmt.Errorf("invalid repository name %q", repo)
	}
	return nil
}
