package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrEmptyPath indicates a missing archive or destination path.
var ErrEmptyPath = errors.New("archive and destination paths are required")

// Result describes what an extraction wrote.
type Result struct {
	Files        int
	Dirs         int
	ArchiveBytes int64
}

// Materializer turns downloaded zip bytes into a directory tree.
type Materializer struct {
	fs afero.Fs
}

// NewMaterializer creates a Materializer on the given filesystem.
// A nil fs means the OS filesystem.
func NewMaterializer(fs afero.Fs) *Materializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Materializer{fs: fs}
}

// Materialize writes data to archivePath, extracts it under destDir and removes the archive.
// Extraction overlays: files already present under destDir are overwritten when the archive
// carries them and left alone otherwise. If extraction fails the archive is kept at
// archivePath for inspection.
func (m *Materializer) Materialize(data []byte, archivePath, destDir string) (*Result, error) {
	if archivePath == "" || destDir == "" {
		return nil, ErrEmptyPath
	}

	if err := afero.WriteFile(m.fs, archivePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}

	result, err := m.Extract(archivePath, destDir)
	if err != nil {
		return nil, err
	}

	if err := m.fs.Remove(archivePath); err != nil {
		return result, fmt.Errorf("failed to remove archive: %w", err)
	}
	return result, nil
}

// Extract unpacks the zip at archivePath into destDir, preserving entry paths.
func (m *Materializer) Extract(archivePath, destDir string) (result *Result, err error) {
	f, err := m.fs.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	// Insecure names are tolerated here; SanitizeName confines them to destDir.
	zr, err := zip.NewReader(f, info.Size())
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}

	if err := m.fs.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	result = &Result{ArchiveBytes: info.Size()}
	for _, entry := range zr.File {
		name := SanitizeName(entry.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(name))

		if entry.FileInfo().IsDir() || strings.HasSuffix(entry.Name, "/") {
			if err := m.fs.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", name, err)
			}
			result.Dirs++
			continue
		}

		if err := m.extractFile(entry, target); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		result.Files++
	}

	return result, nil
}

func (m *Materializer) extractFile(entry *zip.File, target string) (err error) {
	if err := m.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	out, err := m.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, rc)
	return err
}

// SanitizeName converts a zip entry name into a relative slash path that cannot
// leave the extraction root. Empty, "." and ".." components are dropped, as are
// leading slashes and drive letters.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	parts := strings.Split(name, "/")
	kept := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if i == 0 && len(part) == 2 && part[1] == ':' {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
