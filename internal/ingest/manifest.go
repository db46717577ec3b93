package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the manifest file name inside the download directory
	ManifestFilename = "manifest.json"
)

// Manifest records the outcome of the latest ingestion of each repository.
type Manifest struct {
	Version int                  `json:"version"`
	LastRun time.Time            `json:"last_run"`
	Repos   map[string]RepoState `json:"repos"`
	mu      sync.RWMutex
}

// RepoState is the outcome of ingesting one repository.
type RepoState struct {
	Branch       string    `json:"branch"`
	DownloadedAt time.Time `json:"downloaded_at,omitzero"`
	StatusCode   int       `json:"status_code,omitempty"`
	FileCount    int       `json:"file_count"`
	RecordCount  int       `json:"record_count"`
	IndexedCount int       `json:"indexed_count"`
	Error        string    `json:"error,omitempty"`
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Repos:   make(map[string]RepoState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Repos == nil {
		manifest.Repos = make(map[string]RepoState)
	}
	return &manifest, nil
}

// Save writes the manifest to disk through a temporary file and a rename,
// so readers never see a partial file.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}
	return nil
}

// RepoState returns the recorded state of repo.
func (m *Manifest) RepoState(repo string) (RepoState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Repos[repo]
	return state, ok
}

// SetRepoState replaces the state of repo.
func (m *Manifest) SetRepoState(repo string, state RepoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Repos[repo] = state
}

// RepoNames returns the recorded repository names, sorted.
func (m *Manifest) RepoNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Repos))
	for name := range m.Repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReposWithErrors maps each failed repository to its error.
func (m *Manifest) ReposWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for name, state := range m.Repos {
		if state.Error != "" {
			result[name] = state.Error
		}
	}
	return result
}

// MarkRun records the time of the latest run.
func (m *Manifest) MarkRun(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRun = t
}
