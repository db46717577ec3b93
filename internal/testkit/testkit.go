package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sha1n/devops-rag/internal/app"
	"github.com/sha1n/devops-rag/internal/archive"
	"github.com/spf13/pflag"
)

// Service represents a test service that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnvContext provides access to properties collected during environment startup
type TestEnvContext interface {
	GetProperties() map[string]any
	GetProperty(name string) (any, bool)
}

// TestEnv manages the lifecycle of test services
type TestEnv interface {
	Start() (map[string]any, error)
	Stop() error
	GetContext() TestEnvContext
}

type testEnvContextImpl struct {
	properties map[string]any
}

func (c *testEnvContextImpl) GetProperties() map[string]any {
	return c.properties
}

func (c *testEnvContextImpl) GetProperty(name string) (any, bool) {
	val, ok := c.properties[name]
	return val, ok
}

type testEnvImpl struct {
	services []Service
	context  *testEnvContextImpl
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) TestEnv {
	return &testEnvImpl{
		services: services,
		context:  &testEnvContextImpl{properties: make(map[string]any)},
	}
}

func (e *testEnvImpl) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", s.GetName(), err)
		}
		for k, v := range props {
			e.context.properties[k] = v
		}
	}
	return e.context.properties, nil
}

func (e *testEnvImpl) Stop() error {
	var lastErr error
	// Stop in reverse order
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (e *testEnvImpl) GetContext() TestEnvContext {
	return e.context
}

// PropBaseURL is the property DevOpsServer publishes its URL under
const PropBaseURL = "devops.base_url"

// Repo is a repository served by DevOpsServer
type Repo struct {
	DefaultBranch string
	Files         map[string]string
}

// DevOpsServer fakes the Azure DevOps git REST API: the repositories listing and
// zip archives of repository trees. Archives are served for any branch.
type DevOpsServer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	repos    map[string]Repo
	requests []string
}

// NewDevOpsServer creates a fake API serving repos
func NewDevOpsServer(t *testing.T, repos map[string]Repo) *DevOpsServer {
	return &DevOpsServer{t: t, repos: repos}
}

func (s *DevOpsServer) GetName() string {
	return "azure-devops"
}

func (s *DevOpsServer) Start() (map[string]any, error) {
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	return map[string]any{PropBaseURL: s.server.URL}, nil
}

func (s *DevOpsServer) Stop() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

// Requests returns the request paths received so far
func (s *DevOpsServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *DevOpsServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	if _, _, ok := r.BasicAuth(); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	_, rest, ok := strings.Cut(r.URL.Path, "/_apis/git/repositories")
	if !ok {
		http.NotFound(w, r)
		return
	}

	rest = strings.Trim(rest, "/")
	if rest == "" {
		s.serveList(w)
		return
	}

	name, _, _ := strings.Cut(rest, "/")
	repo, ok := s.repos[name]
	if !ok {
		http.Error(w, fmt.Sprintf("repository %s not found", name), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(archive.BuildZip(s.t, repo.Files))
}

func (s *DevOpsServer) serveList(w http.ResponseWriter) {
	names := make([]string, 0, len(s.repos))
	for name := range s.repos {
		names = append(names, name)
	}
	sort.Strings(names)

	type repository struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		DefaultBranch string `json:"defaultBranch"`
	}
	value := make([]repository, 0, len(names))
	for i, name := range names {
		value = append(value, repository{
			ID:            fmt.Sprintf("id-%d", i),
			Name:          name,
			DefaultBranch: "refs/heads/" + s.repos[name].DefaultBranch,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": len(value), "value": value})
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	BaseURL     string // Required
	DownloadDir string // Required
	IndexDir    string // Required
	Extensions  string // Defaults to "go,md"
}

// NewTestFlags creates a pflag.FlagSet carrying every command flag, set up for the fake API
func NewTestFlags(t testing.TB, opts FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)
	app.RegisterIngestFlags(flags)

	extensions := opts.Extensions
	if extensions == "" {
		extensions = "go,md"
	}

	values := map[string]string{
		"organization": "acme",
		"project":      "platform",
		"token":        "test-token",
		"base-url":     opts.BaseURL,
		"download-dir": opts.DownloadDir,
		"index-dir":    opts.IndexDir,
		"extensions":   extensions,
		"log-level":    "error",
		"retry-max":    "0",
	}
	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}

	return flags
}
