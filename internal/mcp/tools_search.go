package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/devops-rag/internal/index"
)

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string `json:"query" jsonschema:"Full-text query matched against file content, summaries and symbol names"`
	Repository string `json:"repository,omitempty" jsonschema:"Only return records from this repository"`
	Extension  string `json:"extension,omitempty" jsonschema:"Only return records with this file extension (e.g. md, py, cs)"`
}

// SearchHandler handles the search_records tool.
type SearchHandler struct {
	searcher   RecordSearcher
	maxResults int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher RecordSearcher, maxResults int) *SearchHandler {
	if maxResults <= 0 {
		maxResults = index.DefaultMaxResults
	}
	return &SearchHandler{searcher: searcher, maxResults: maxResults}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	results, err := h.searcher.Search(ctx, index.Query{
		Text:       args.Query,
		Repository: args.Repository,
		Extension:  args.Extension,
		Size:       h.maxResults,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return textResult(formatResults(results, args.Query)), nil, nil
}

func formatResults(results *index.Results, query string) string {
	if results.Total == 0 {
		return fmt.Sprintf("No results found for query: %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", results.Total, query)

	for i, hit := range results.Hits {
		fmt.Fprintf(&sb, "### %d. %s:%s\n", i+1, hit.Repository, hit.Path)
		fmt.Fprintf(&sb, "**Score**: %.4f\n", hit.Score)
		if hit.Summary != "" {
			fmt.Fprintf(&sb, "**Summary**: %s\n", hit.Summary)
		}
		sb.WriteString("\n")

		if len(hit.Fragments) > 0 {
			sb.WriteString("```\n")
			for _, fragment := range hit.Fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}

	if results.Total > uint64(len(results.Hits)) {
		fmt.Fprintf(&sb, "... and %d more results\n", results.Total-uint64(len(results.Hits)))
	}
	return sb.String()
}

// RegisterSearchTool registers the search_records tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, handler *SearchHandler) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_records",
		Description: "Search ingested Azure DevOps repository and wiki files using full-text search",
	}, handler.Handle)
}
