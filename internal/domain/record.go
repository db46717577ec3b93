package domain

import "time"

// Record is the per-file unit handed to downstream text processing.
// All records produced by one crawl share the same IngestionDate.
type Record struct {
	// RepositoryName is the name of the repository the file was read from.
	RepositoryName string `json:"repository_name"`

	// Path is the file path relative to the extracted repository root,
	// always slash separated. Example: "src/app/main.py"
	Path string `json:"path"`

	// Content is the full text of the file.
	Content string `json:"content"`

	// IngestionDate is captured once at the start of the crawl.
	IngestionDate time.Time `json:"ingestion_date"`

	// Summary is filled by an optional summarization stage.
	Summary string `json:"summary,omitempty"`
}

// DocID returns the identifier used for the record in the search index.
func (r Record) DocID() string {
	return r.RepositoryName + "/" + r.Path
}

// Document is the indexed form of a Record.
// It is the structure stored in the Bleve search index.
type Document struct {
	ID            string    `json:"id"`
	Repository    string    `json:"repository"`
	Path          string    `json:"path"`
	Extension     string    `json:"extension"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary,omitempty"`
	Symbols       []string  `json:"symbols,omitempty"`
	IngestionDate time.Time `json:"ingestion_date"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	FieldID            = "id"
	FieldRepository    = "repository"
	FieldPath          = "path"
	FieldExtension     = "extension"
	FieldContent       = "content"
	FieldSummary       = "summary"
	FieldSymbols       = "symbols"
	FieldIngestionDate = "ingestion_date"
)
