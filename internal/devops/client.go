package devops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/devops-rag/internal/archive"
	"github.com/sha1n/devops-rag/internal/domain"
	"github.com/sha1n/devops-rag/internal/transport"
	"github.com/spf13/afero"
)

// WikiBranch is the version label under which a project wiki is published.
const WikiBranch = "wikiMaster"

// maxLoggedBody limits how much of a failed response body is logged.
const maxLoggedBody = 512

var (
	// ErrInvalidArgument indicates a missing or malformed repository or branch name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDestinationNotDirectory indicates the download destination does not exist or is not a directory.
	ErrDestinationNotDirectory = errors.New("destination is not an existing directory")
)

// Executor performs HTTP requests. *transport.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, method, url string, headers map[string]string) (*transport.Response, error)
}

// DownloadResult reports the outcome of a download that reached the server.
// A non-200 answer is reported here rather than returned as an error.
type DownloadResult struct {
	Repository   string
	Branch       string
	Destination  string
	StatusCode   int
	Message      string
	Files        int
	ArchiveBytes int64
}

// OK returns true if the archive was downloaded and extracted.
func (r *DownloadResult) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client downloads and lists repositories of one project.
type Client struct {
	conn         Connection
	exec         Executor
	fs           afero.Fs
	materializer *archive.Materializer
}

// NewClient creates a client for conn. A nil fs means the OS filesystem.
func NewClient(conn Connection, exec Executor, fs afero.Fs) (*Client, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Client{
		conn:         conn,
		exec:         exec,
		fs:           fs,
		materializer: archive.NewMaterializer(fs),
	}, nil
}

// Connection returns the connection context the client was built with.
func (c *Client) Connection() Connection {
	return c.conn
}

// Download fetches repo at branch as a zip and extracts it into <dest>/<repo>/.
// Preconditions are checked before any network call. Transport failures propagate
// unchanged; a non-200 answer leaves the filesystem untouched and is reported in the result.
func (c *Client) Download(ctx context.Context, repo, branch, dest string) (*DownloadResult, error) {
	if err := validateName("repository", repo); err != nil {
		return nil, err
	}
	if strings.TrimSpace(branch) == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrInvalidArgument)
	}
	isDir, err := afero.DirExists(c.fs, dest)
	if err != nil || !isDir {
		return nil, fmt.Errorf("%w: %q", ErrDestinationNotDirectory, dest)
	}

	result := &DownloadResult{
		Repository:  repo,
		Branch:      branch,
		Destination: filepath.Join(dest, repo),
	}

	resp, err := c.exec.Execute(ctx, http.MethodGet, c.conn.ArchiveURL(repo, branch), nil)
	if err != nil {
		return nil, err
	}

	result.StatusCode = resp.StatusCode
	if !resp.OK() {
		result.Message = string(resp.Body)
		slog.Warn("Failed to download repository",
			"repository", repo, "branch", branch,
			"status", resp.StatusCode, "body", truncate(result.Message))
		return result, nil
	}

	archivePath := filepath.Join(dest, repo+".zip")
	extracted, err := c.materializer.Materialize(resp.Body, archivePath, result.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize %s: %w", repo, err)
	}

	result.Files = extracted.Files
	result.ArchiveBytes = extracted.ArchiveBytes
	slog.Info("Repository downloaded",
		"repository", repo, "branch", branch,
		"files", extracted.Files, "size", humanize.Bytes(uint64(extracted.ArchiveBytes)),
		"path", result.Destination)
	return result, nil
}

// DownloadWiki downloads a project wiki, which is published as a repository at WikiBranch.
func (c *Client) DownloadWiki(ctx context.Context, wiki, dest string) (*DownloadResult, error) {
	return c.Download(ctx, wiki, WikiBranch, dest)
}

type repositoryList struct {
	Count int              `json:"count"`
	Value []repositoryJSON `json:"value"`
}

type repositoryJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	WebURL        string `json:"webUrl"`
}

// Repositories lists the repositories of the project in server order.
// A non-200 answer is logged and yields an empty list.
func (c *Client) Repositories(ctx context.Context) ([]domain.Repository, error) {
	resp, err := c.exec.Execute(ctx, http.MethodGet, c.conn.RepositoriesURL(), nil)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		slog.Warn("Failed to list repositories", "status", resp.StatusCode, "body", truncate(string(resp.Body)))
		return []domain.Repository{}, nil
	}

	var list repositoryList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse repository list: %w", err)
	}

	repos := make([]domain.Repository, 0, len(list.Value))
	for _, r := range list.Value {
		repos = append(repos, domain.Repository{
			ID:            r.ID,
			Name:          r.Name,
			DefaultBranch: domain.BranchName(r.DefaultBranch),
			WebURL:        r.WebURL,
		})
	}
	slog.Debug("Retrieved repositories", "count", len(repos))
	return repos, nil
}

// ListRepositories returns the repository names of the project in server order.
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	repos, err := c.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.Name)
	}
	return names, nil
}

// validateName rejects empty names and names that would escape the destination directory.
func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s name is required", ErrInvalidArgument, kind)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %s name %q is not a plain name", ErrInvalidArgument, kind, name)
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "..."
}
