package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sha1n/devops-rag/internal/config"
	"github.com/sha1n/devops-rag/internal/crawler"
	"github.com/sha1n/devops-rag/internal/devops"
	"github.com/sha1n/devops-rag/internal/domain"
	"github.com/sha1n/devops-rag/internal/summarize"
	"github.com/spf13/afero"
)

// LockFilename is the name of the ingest lock file inside the download directory.
const LockFilename = "ingest.lock"

// ErrIngestInProgress is returned when another run holds the download directory.
var ErrIngestInProgress = errors.New("another ingest run is in progress")

// RepositoryClient lists and downloads repositories. *devops.Client satisfies it.
type RepositoryClient interface {
	Repositories(ctx context.Context) ([]domain.Repository, error)
	Download(ctx context.Context, repo, branch, dest string) (*devops.DownloadResult, error)
}

// RecordIndexer stores the records of one repository. *index.Indexer satisfies it.
type RecordIndexer interface {
	IndexRecords(repo string, records []domain.Record) (int, error)
}

// RepositoryReport is the outcome of one repository in a run.
type RepositoryReport struct {
	Name       string
	Branch     string
	StatusCode int
	Files      int
	Records    int
	Indexed    int
	Err        error
}

// Report summarizes a run.
type Report struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Repositories []RepositoryReport
}

// Failed returns the number of repositories that did not complete.
func (r *Report) Failed() int {
	n := 0
	for _, repo := range r.Repositories {
		if repo.Err != nil {
			n++
		}
	}
	return n
}

// Service runs the download, crawl, summarize and index pipeline.
type Service struct {
	settings    *config.Settings
	client      RepositoryClient
	fs          afero.Fs
	crawler     *crawler.Crawler
	indexer     RecordIndexer
	summarizer  summarize.Summarizer
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIndexer sets the indexing stage. Without one, records are not indexed.
func WithIndexer(indexer RecordIndexer) Option {
	return func(s *Service) {
		s.indexer = indexer
	}
}

// WithSummarizer sets the summarization stage. Without one, records are not summarized.
func WithSummarizer(summarizer summarize.Summarizer) Option {
	return func(s *Service) {
		s.summarizer = summarizer
	}
}

// WithCrawler overrides the crawler.
func WithCrawler(c *crawler.Crawler) Option {
	return func(s *Service) {
		s.crawler = c
	}
}

// WithFs sets the filesystem used for cleaning and crawling download trees.
func WithFs(fs afero.Fs) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithLockTimeout makes Run wait up to d for a concurrent run to finish instead
// of failing immediately with ErrIngestInProgress.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lockTimeout = d
	}
}

// NewService creates a pipeline service.
func NewService(settings *config.Settings, client RepositoryClient, opts ...Option) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("repository client cannot be nil")
	}
	if settings.DownloadDir == "" {
		return nil, fmt.Errorf("download directory cannot be empty")
	}

	s := &Service{
		settings: settings,
		client:   client,
		fs:       afero.NewOsFs(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.crawler == nil {
		s.crawler = crawler.NewCrawler(s.fs)
	}
	return s, nil
}

// ManifestPath returns the path of the run manifest.
func (s *Service) ManifestPath() string {
	return filepath.Join(s.settings.DownloadDir, ManifestFilename)
}

// Run ingests refs one at a time. An empty refs ingests every repository of the project.
// A failing repository is recorded in the manifest and the run moves on; the
// returned error reports how many failed.
func (s *Service) Run(ctx context.Context, refs []domain.RepositoryRef) (*Report, error) {
	if err := os.MkdirAll(s.settings.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	lock := NewFileLock(filepath.Join(s.settings.DownloadDir, LockFilename))
	if err := s.acquire(ctx, lock); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Error("Failed to unlock", "error", err)
		}
	}()

	manifest, err := LoadManifest(s.ManifestPath())
	if err != nil {
		return nil, err
	}

	targets, err := s.resolve(ctx, refs)
	if err != nil {
		return nil, err
	}

	report := &Report{StartedAt: s.now()}
	slog.Info("Starting ingest", "repositories", len(targets))

	for _, ref := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		repo := s.ingest(ctx, ref)
		report.Repositories = append(report.Repositories, repo)

		state := RepoState{
			Branch:       repo.Branch,
			StatusCode:   repo.StatusCode,
			FileCount:    repo.Files,
			RecordCount:  repo.Records,
			IndexedCount: repo.Indexed,
		}
		if repo.StatusCode != 0 {
			state.DownloadedAt = s.now()
		}
		if repo.Err != nil {
			state.Error = repo.Err.Error()
			slog.Error("Failed to ingest repository", "repository", repo.Name, "branch", repo.Branch, "error", repo.Err)
		} else {
			slog.Info("Ingested repository", "repository", repo.Name, "branch", repo.Branch,
				"files", repo.Files, "records", repo.Records, "indexed", repo.Indexed)
		}
		manifest.SetRepoState(repo.Name, state)
	}

	report.FinishedAt = s.now()
	manifest.MarkRun(report.FinishedAt)
	if err := manifest.Save(s.ManifestPath()); err != nil {
		return report, err
	}

	if failed := report.Failed(); failed > 0 {
		return report, fmt.Errorf("%d of %d repositories failed", failed, len(report.Repositories))
	}
	return report, nil
}

func (s *Service) acquire(ctx context.Context, lock *FileLock) error {
	if s.lockTimeout > 0 {
		if err := lock.Wait(ctx, s.lockTimeout); err != nil {
			if errors.Is(err, ErrLockTimeout) {
				return ErrIngestInProgress
			}
			return err
		}
		return nil
	}

	acquired, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return ErrIngestInProgress
	}
	return nil
}

// resolve fills in branches: the explicit one, then the configured one, then
// the repository's default branch.
func (s *Service) resolve(ctx context.Context, refs []domain.RepositoryRef) ([]domain.RepositoryRef, error) {
	needRemote := len(refs) == 0
	for _, ref := range refs {
		if ref.Branch == "" && s.settings.Branch == "" {
			needRemote = true
		}
	}

	defaults := map[string]string{}
	var remote []domain.Repository
	if needRemote {
		repos, err := s.client.Repositories(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		remote = repos
		for _, r := range repos {
			defaults[r.Name] = r.DefaultBranch
		}
	}

	if len(refs) == 0 {
		for _, r := range remote {
			refs = append(refs, domain.RepositoryRef{Name: r.Name})
		}
	}

	resolved := make([]domain.RepositoryRef, 0, len(refs))
	for _, ref := range refs {
		switch {
		case ref.Branch != "":
		case s.settings.Branch != "":
			ref.Branch = s.settings.Branch
		default:
			ref.Branch = defaults[ref.Name]
		}
		resolved = append(resolved, ref)
	}
	return resolved, nil
}

func (s *Service) ingest(ctx context.Context, ref domain.RepositoryRef) RepositoryReport {
	report := RepositoryReport{Name: ref.Name, Branch: ref.Branch}
	if ref.Branch == "" {
		report.Err = fmt.Errorf("no branch for %s: repository is empty or unknown", ref.Name)
		return report
	}

	dir := s.settings.DownloadDir
	if s.settings.Clean {
		if err := s.fs.RemoveAll(filepath.Join(dir, ref.Name)); err != nil {
			report.Err = fmt.Errorf("failed to clean previous download: %w", err)
			return report
		}
	}

	result, err := s.client.Download(ctx, ref.Name, ref.Branch, dir)
	if err != nil {
		report.Err = fmt.Errorf("download failed: %w", err)
		return report
	}
	report.StatusCode = result.StatusCode
	report.Files = result.Files
	if !result.OK() {
		report.Err = fmt.Errorf("download failed with status %d", result.StatusCode)
		return report
	}

	records, err := s.crawler.Crawl(dir, ref.Name, s.settings.Extensions)
	if err != nil {
		report.Err = fmt.Errorf("crawl failed: %w", err)
		return report
	}
	report.Records = len(records)

	if err := summarize.Records(ctx, records, s.summarizer); err != nil {
		report.Err = err
		return report
	}

	if s.indexer == nil {
		return report
	}
	indexable := s.indexable(records)
	indexed, err := s.indexer.IndexRecords(ref.Name, indexable)
	if err != nil {
		report.Err = fmt.Errorf("index failed: %w", err)
		return report
	}
	report.Indexed = indexed
	return report
}

// indexable drops records over the configured size limit.
func (s *Service) indexable(records []domain.Record) []domain.Record {
	limit := s.settings.Index.MaxFileSize
	if limit <= 0 {
		return records
	}
	kept := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if int64(len(r.Content)) > limit {
			slog.Debug("Skipping large file", "repository", r.RepositoryName, "path", r.Path,
				"size", humanize.Bytes(uint64(len(r.Content))), "limit", humanize.Bytes(uint64(limit)))
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
