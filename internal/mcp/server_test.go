package mcp

import (
	"context"
	"testing"

	"github.com/sha1n/devops-rag/internal/index"
)

type stubSearcher struct {
	results *index.Results
	err     error
	last    index.Query
}

func (s *stubSearcher) Search(_ context.Context, q index.Query) (*index.Results, error) {
	s.last = q
	return s.results, s.err
}

func TestCreateServer(t *testing.T) {
	server := CreateServer(ServerConfig{Name: "devops-rag", Version: "1.0.0"})
	if server == nil {
		t.Fatal("Expected server to be created")
	}
}

func TestCreateServer_EmptyConfig(t *testing.T) {
	if CreateServer(ServerConfig{}) == nil {
		t.Fatal("Expected server to be created even with empty config")
	}
}

func TestCreateServer_WithTools(t *testing.T) {
	server := CreateServer(ServerConfig{
		Name:        "devops-rag",
		Version:     "1.0.0",
		Searcher:    &stubSearcher{results: &index.Results{}},
		DownloadDir: t.TempDir(),
		MaxResults:  5,
		MaxFileSize: 1024,
	})
	if server == nil {
		t.Fatal("Expected server to be created with tools")
	}
}
