package archive

import (
	"archive/zip"
	"bytes"
	"sort"
	"strings"
	"testing"
)

// BuildZip creates an in-memory zip archive from a map of entry name to content.
// Names ending in "/" become directory entries. Entries are written in sorted order.
// This is exported for use by tests in other packages.
func BuildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			if _, err := zw.Create(name); err != nil {
				t.Fatalf("Failed to add directory %q: %v", name, err)
			}
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to add entry %q: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("Failed to write entry %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}
