package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/devops-rag/internal/index"
)

// RecordSearcher runs full-text queries. *index.Searcher satisfies it.
type RecordSearcher interface {
	Search(ctx context.Context, q index.Query) (*index.Results, error)
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Searcher backs search_records; the tool is not registered without one.
	Searcher RecordSearcher

	// DownloadDir holds the extracted repositories read_record serves from;
	// the tool is not registered when empty.
	DownloadDir string

	MaxResults  int
	MaxFileSize int64
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Searcher != nil {
		RegisterSearchTool(s, NewSearchHandler(cfg.Searcher, cfg.MaxResults))
	}
	if cfg.DownloadDir != "" {
		RegisterReadTool(s, NewReadHandler(cfg.DownloadDir, cfg.MaxFileSize))
	}

	return s
}

// errorResult builds a tool result that reports a failure to the caller.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
