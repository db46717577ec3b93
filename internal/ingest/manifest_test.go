package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNewManifest(t *testing.T) {
	m := NewManifest()

	if m.Version != ManifestVersion {
		t.Errorf("Version = %d, want %d", m.Version, ManifestVersion)
	}
	if m.Repos == nil {
		t.Error("Repos should be initialized")
	}
	if !m.LastRun.IsZero() {
		t.Error("LastRun should be zero")
	}
}

func TestLoadManifest_NewFile(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if len(m.Repos) != 0 {
		t.Errorf("Repos = %v, want empty", m.Repos)
	}
}

func TestLoadManifest_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadManifest_NilRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	if err := os.WriteFile(path, []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Repos == nil {
		t.Error("Repos should be initialized")
	}
}

func TestManifest_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ManifestFilename)
	run := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m := NewManifest()
	m.SetRepoState("svc", RepoState{Branch: "main", DownloadedAt: run, StatusCode: 200, FileCount: 3, RecordCount: 2, IndexedCount: 2})
	m.SetRepoState("broken", RepoState{Branch: "main", StatusCode: 404, Error: "download failed with status 404"})
	m.MarkRun(run)

	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after Save")
	}

	loaded, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if !loaded.LastRun.Equal(run) {
		t.Errorf("LastRun = %v, want %v", loaded.LastRun, run)
	}
	state, ok := loaded.RepoState("svc")
	if !ok {
		t.Fatal("svc should be present")
	}
	if state.Branch != "main" || state.RecordCount != 2 || !state.DownloadedAt.Equal(run) {
		t.Errorf("svc state = %+v", state)
	}
	if !reflect.DeepEqual(loaded.RepoNames(), []string{"broken", "svc"}) {
		t.Errorf("RepoNames = %v", loaded.RepoNames())
	}
	if !reflect.DeepEqual(loaded.ReposWithErrors(), map[string]string{"broken": "download failed with status 404"}) {
		t.Errorf("ReposWithErrors = %v", loaded.ReposWithErrors())
	}
}

func TestManifest_Save_Error(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := NewManifest().Save(filepath.Join(blocker, ManifestFilename)); err == nil {
		t.Error("Expected error when the parent is a file")
	}
}

func TestRepoState_JSON(t *testing.T) {
	data, err := json.Marshal(RepoState{Branch: "main", FileCount: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)

	for _, key := range []string{"error", "downloaded_at", "status_code"} {
		if strings.Contains(s, key) {
			t.Errorf("%s should be omitted when empty: %s", key, s)
		}
	}
	for _, key := range []string{"branch", "file_count", "record_count", "indexed_count"} {
		if !strings.Contains(s, key) {
			t.Errorf("%s should be present: %s", key, s)
		}
	}
}

func TestManifest_RepoState_Missing(t *testing.T) {
	if _, ok := NewManifest().RepoState("nope"); ok {
		t.Error("RepoState should report missing repositories")
	}
}
