package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sha1n/devops-rag/internal/domain"
	"github.com/spf13/afero"
)

var (
	// ErrNotDirectory indicates the repository root does not exist or is not a directory.
	ErrNotDirectory = errors.New("repository root is not a directory")

	// ErrInvalidEncoding indicates a matching file whose content is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file content is not valid UTF-8")
)

// Extension returns the substring after the last "." in name, or the whole name
// when it has no dot. Matching against it is exact and case-sensitive.
func Extension(name string) string {
	base := filepath.Base(name)
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[i+1:]
	}
	return base
}

// Crawler walks downloaded trees and builds ingestion records.
type Crawler struct {
	fs  afero.Fs
	now func() time.Time
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithClock overrides the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// NewCrawler creates a Crawler on fs. A nil fs means the OS filesystem.
func NewCrawler(fs afero.Fs, opts ...Option) *Crawler {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	c := &Crawler{fs: fs, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl returns one record per file under root/repo whose extension is in allowed.
// Records follow traversal order and share a single ingestion timestamp.
func (c *Crawler) Crawl(root, repo string, allowed []string) ([]domain.Record, error) {
	var records []domain.Record
	err := c.Walk(root, repo, allowed, func(r domain.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

// Walk is the streaming form of Crawl: fn is called for each record as it is read.
// An error from fn, an unreadable file or invalid UTF-8 content stops the walk.
func (c *Crawler) Walk(root, repo string, allowed []string, fn func(domain.Record) error) error {
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repository name is required")
	}
	repoRoot := filepath.Join(root, repo)
	isDir, err := afero.DirExists(c.fs, repoRoot)
	if err != nil || !isDir {
		return fmt.Errorf("%w: %s", ErrNotDirectory, repoRoot)
	}

	ingestedAt := c.now().UTC()
	if len(allowed) == 0 {
		return nil
	}

	allow := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		allow[ext] = struct{}{}
	}

	count := 0
	err = afero.Walk(c.fs, repoRoot, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if _, ok := allow[Extension(info.Name())]; !ok {
			return nil
		}

		rel, err := filepath.Rel(repoRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		content, err := afero.ReadFile(c.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if !utf8.Valid(content) {
			return fmt.Errorf("%w: %s", ErrInvalidEncoding, rel)
		}

		count++
		return fn(domain.Record{
			RepositoryName: repo,
			Path:           rel,
			Content:        string(content),
			IngestionDate:  ingestedAt,
		})
	})
	if err != nil {
		return err
	}

	slog.Debug("Crawled repository", "repository", repo, "records", count)
	return nil
}
