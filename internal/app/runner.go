package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/devops-rag/internal/config"
	"github.com/sha1n/devops-rag/internal/crawler"
	"github.com/sha1n/devops-rag/internal/devops"
	"github.com/sha1n/devops-rag/internal/domain"
	"github.com/sha1n/devops-rag/internal/index"
	"github.com/sha1n/devops-rag/internal/ingest"
	mcputil "github.com/sha1n/devops-rag/internal/mcp"
	"github.com/sha1n/devops-rag/internal/transport"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

// ServerName is the implementation name the MCP server announces.
const ServerName = "devops-rag"

// Client is the remote API surface the commands use. *devops.Client satisfies it.
type Client interface {
	ingest.RepositoryClient
	ListRepositories(ctx context.Context) ([]string, error)
	DownloadWiki(ctx context.Context, wiki, dest string) (*devops.DownloadResult, error)
}

// RunParams contains dependencies for the command runners
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	NewClient         func(*config.Settings) (Client, error)
	Out               io.Writer     // Optional: defaults to stdout
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		NewClient:     NewDevOpsClient,
		Out:           os.Stdout,
	}
}

// NewDevOpsClient builds a remote client whose transport follows the HTTP and retry settings
func NewDevOpsClient(settings *config.Settings) (Client, error) {
	if err := config.ValidateConnection(settings); err != nil {
		return nil, err
	}

	conn := devops.Connection{
		Organization: settings.Organization,
		Project:      settings.Project,
		Token:        settings.Token,
		BaseURL:      settings.BaseURL,
	}
	httpClient := transport.NewClient(conn.TransportConfig(transport.Config{
		Policy: transport.RetryPolicy{
			MaxRetries:    settings.Retry.MaxRetries,
			BackoffFactor: settings.Retry.BackoffFactor,
			MaxBackoff:    settings.Retry.MaxBackoff,
			RetryStatuses: settings.Retry.Statuses,
		},
		Timeout:   settings.HTTP.Timeout,
		RateLimit: settings.HTTP.RateLimit,
		RateBurst: settings.HTTP.RateBurst,
	}))

	return devops.NewClient(conn, httpClient, nil)
}

// setup loads and validates settings and configures logging
func setup(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr, stdout carries command output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(settings.LogLevel)})
	slog.SetDefault(slog.New(handler))

	config.Log(settings)
	return settings, nil
}

func connect(params RunParams, flags *pflag.FlagSet) (*config.Settings, Client, error) {
	settings, err := setup(params, flags)
	if err != nil {
		return nil, nil, err
	}
	client, err := params.NewClient(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	return settings, client, nil
}

func output(params RunParams) io.Writer {
	if params.Out == nil {
		return os.Stdout
	}
	return params.Out
}

// RunList prints the names of the project's repositories, one per line
func RunList(ctx context.Context, params RunParams, flags *pflag.FlagSet) error {
	_, client, err := connect(params, flags)
	if err != nil {
		return err
	}

	names, err := client.ListRepositories(ctx)
	if err != nil {
		return err
	}

	out := output(params)
	for _, name := range names {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

// RunDownload downloads and extracts one repository into the download directory.
// Without a branch setting the repository's default branch is used.
func RunDownload(ctx context.Context, params RunParams, flags *pflag.FlagSet, repo string) error {
	settings, client, err := connect(params, flags)
	if err != nil {
		return err
	}

	branch := settings.Branch
	if branch == "" {
		if branch, err = defaultBranch(ctx, client, repo); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(settings.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	result, err := client.Download(ctx, repo, branch, settings.DownloadDir)
	if err != nil {
		return err
	}
	return printDownload(output(params), result)
}

// RunWiki downloads a project wiki into the download directory
func RunWiki(ctx context.Context, params RunParams, flags *pflag.FlagSet, wiki string) error {
	settings, client, err := connect(params, flags)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(settings.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	result, err := client.DownloadWiki(ctx, wiki, settings.DownloadDir)
	if err != nil {
		return err
	}
	return printDownload(output(params), result)
}

func defaultBranch(ctx context.Context, client Client, repo string) (string, error) {
	repos, err := client.Repositories(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range repos {
		if r.Name != repo {
			continue
		}
		if r.DefaultBranch == "" {
			return "", fmt.Errorf("repository %q has no default branch, set one with --branch", repo)
		}
		return r.DefaultBranch, nil
	}
	return "", fmt.Errorf("repository %q not found", repo)
}

func printDownload(out io.Writer, result *devops.DownloadResult) error {
	if !result.OK() {
		return fmt.Errorf("download of %s@%s failed with status %d", result.Repository, result.Branch, result.StatusCode)
	}
	_, err := fmt.Fprintf(out, "%s@%s: %d files (%s) -> %s\n",
		result.Repository, result.Branch, result.Files,
		humanize.IBytes(uint64(result.ArchiveBytes)), result.Destination)
	return err
}

// RunCrawl writes the records of an extracted repository to stdout as JSON lines
func RunCrawl(_ context.Context, params RunParams, flags *pflag.FlagSet, repo string) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(output(params))
	c := crawler.NewCrawler(afero.NewOsFs())
	count := 0
	err = c.Walk(settings.DownloadDir, repo, settings.Extensions, func(r domain.Record) error {
		count++
		return enc.Encode(r)
	})
	if err != nil {
		return err
	}

	slog.Info("Crawl complete", "repository", repo, "records", count)
	return nil
}

// RunIngest downloads, crawls and indexes the given repositories, or all of them when
// none are named. Arguments are "name" or "name@branch".
func RunIngest(ctx context.Context, params RunParams, flags *pflag.FlagSet, args []string) error {
	settings, client, err := connect(params, flags)
	if err != nil {
		return err
	}

	opts := []ingest.Option{}
	if flags != nil && flags.Lookup("wait") != nil {
		wait, err := flags.GetDuration("wait")
		if err != nil {
			return err
		}
		opts = append(opts, ingest.WithLockTimeout(wait))
	}
	if settings.Index.Enabled {
		opts = append(opts, ingest.WithIndexer(index.NewIndexer(settings.Index.Dir)))
	}

	svc, err := ingest.NewService(settings, client, opts...)
	if err != nil {
		return err
	}

	refs := make([]domain.RepositoryRef, 0, len(args))
	for _, arg := range args {
		refs = append(refs, domain.ParseRepositoryRef(arg))
	}

	report, runErr := svc.Run(ctx, refs)
	if report != nil {
		if err := printReport(output(params), report); err != nil {
			return err
		}
	}
	return runErr
}

func printReport(out io.Writer, report *ingest.Report) error {
	for _, r := range report.Repositories {
		var err error
		if r.Err != nil {
			_, err = fmt.Fprintf(out, "%s@%s: failed: %v\n", r.Name, r.Branch, r.Err)
		} else {
			_, err = fmt.Fprintf(out, "%s@%s: %d files, %d records, %d indexed\n",
				r.Name, r.Branch, r.Files, r.Records, r.Indexed)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RunServe serves the indexes and extracted repositories over MCP on stdio
func RunServe(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	settings, err := setup(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting MCP server", "version", version)

	cfg := mcputil.ServerConfig{
		Name:        ServerName,
		Version:     version,
		DownloadDir: settings.DownloadDir,
		MaxResults:  settings.Index.MaxResults,
		MaxFileSize: settings.Index.MaxFileSize,
	}

	if settings.Index.Enabled {
		searcher, err := index.NewIndexer(settings.Index.Dir).Open(nil)
		switch {
		case errors.Is(err, index.ErrNoIndexes):
			slog.Warn("No indexes found, search is disabled until ingest runs", "dir", settings.Index.Dir)
		case err != nil:
			return err
		default:
			defer func() {
				if err := searcher.Close(); err != nil {
					slog.Error("Failed to close indexes", "error", err)
				}
			}()
			slog.Info("Serving indexes", "repositories", searcher.Repositories())
			cfg.Searcher = searcher
		}
	}

	server := mcputil.CreateServer(cfg)

	// Use custom transport if provided (for testing), otherwise use stdio
	t := params.CustomIOTransport
	if t == nil {
		t = &mcp.StdioTransport{}
	}
	return server.Run(ctx, t)
}
