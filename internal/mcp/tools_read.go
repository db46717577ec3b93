package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/devops-rag/internal/crawler"
)

// DefaultMaxFileSize is used when no read limit is configured.
const DefaultMaxFileSize = 256 * 1024

// ReadArgument defines read parameters.
type ReadArgument struct {
	Repository string `json:"repository" jsonschema:"Repository name as shown in search results"`
	Path       string `json:"path" jsonschema:"File path relative to the repository root"`
}

// ReadHandler handles the read_record tool.
type ReadHandler struct {
	downloadDir string
	maxFileSize int64
}

// NewReadHandler creates a handler serving files extracted under downloadDir.
func NewReadHandler(downloadDir string, maxFileSize int64) *ReadHandler {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &ReadHandler{downloadDir: downloadDir, maxFileSize: maxFileSize}
}

// Handle reads a file and returns formatted content.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Repository) == "" {
		return errorResult("Repository cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if err := validateRepository(args.Repository); err != nil {
		return errorResult(fmt.Sprintf("Invalid repository: %s", err)), nil, nil
	}
	if err := validatePath(args.Path); err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %s", err)), nil, nil
	}

	repoDir := filepath.Join(h.downloadDir, args.Repository)
	if info, err := os.Stat(repoDir); err != nil || !info.IsDir() {
		return errorResult(fmt.Sprintf("Repository not found: %s", args.Repository)), nil, nil
	}

	fullPath := filepath.Join(repoDir, filepath.FromSlash(args.Path))
	if !strings.HasPrefix(fullPath, repoDir+string(filepath.Separator)) {
		return errorResult("Path traversal detected"), nil, nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(fmt.Sprintf("File not found: %s", args.Path)), nil, nil
		}
		return errorResult(fmt.Sprintf("Error accessing file: %s", err)), nil, nil
	}
	if info.IsDir() {
		return errorResult("Cannot read directory, please specify a file path"), nil, nil
	}
	if info.Size() > h.maxFileSize {
		return errorResult(fmt.Sprintf("File too large (%s). Maximum allowed size is %s",
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(h.maxFileSize)))), nil, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return errorResult(fmt.Sprintf("Error reading file: %s", err)), nil, nil
	}
	if isBinary(content) {
		return errorResult("Cannot display binary file content"), nil, nil
	}

	lang := extensionToLanguage(crawler.Extension(args.Path))
	var sb strings.Builder
	fmt.Fprintf(&sb, "**File**: `%s`\n", args.Path)
	fmt.Fprintf(&sb, "**Repository**: %s\n", args.Repository)
	fmt.Fprintf(&sb, "**Size**: %s\n\n", humanize.IBytes(uint64(len(content))))
	fmt.Fprintf(&sb, "```%s\n%s\n```", lang, string(content))

	return textResult(sb.String()), nil, nil
}

func validateRepository(repo string) error {
	if repo == "." || repo == ".." || strings.ContainsAny(repo, `/\`) {
		return fmt.Errorf("%q is not a repository name", repo)
	}
	return nil
}

// validatePath rejects absolute paths and paths that climb out of the repository.
func validatePath(path string) error {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths are not allowed")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal is not allowed")
	}
	return nil
}

// isBinary reports a NUL byte within the first 512 bytes.
func isBinary(content []byte) bool {
	for _, b := range content[:min(len(content), 512)] {
		if b == 0 {
			return true
		}
	}
	return false
}

// extensionToLanguage maps file extension to language hint for code blocks.
func extensionToLanguage(ext string) string {
	langMap := map[string]string{
		"go":    "go",
		"py":    "python",
		"js":    "javascript",
		"ts":    "typescript",
		"java":  "java",
		"cs":    "csharp",
		"ps1":   "powershell",
		"psm1":  "powershell",
		"sh":    "bash",
		"sql":   "sql",
		"json":  "json",
		"yaml":  "yaml",
		"yml":   "yaml",
		"xml":   "xml",
		"md":    "markdown",
		"txt":   "text",
		"tf":    "terraform",
		"bicep": "bicep",
	}

	if lang, ok := langMap[strings.ToLower(ext)]; ok {
		return lang
	}
	return ext
}

// RegisterReadTool registers the read_record tool with an MCP server.
func RegisterReadTool(server *mcp.Server, handler *ReadHandler) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_record",
		Description: "Read a file from a downloaded Azure DevOps repository or wiki",
	}, handler.Handle)
}
