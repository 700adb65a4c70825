package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildZip assembles an in-memory archive from name -> content pairs.
func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := buildZip(t, map[string]string{
		"01 - First.mp3":       "first",
		"02 - Second.mp3":      "second",
		"covers/cover.jpg":     "jpeg",
		"notes/deep/notes.txt": "text",
	})
	dest := t.TempDir()

	paths, err := Extract(context.Background(), bytes.NewReader(data), int64(len(data)), dest)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 extracted files, got %d: %v", len(paths), paths)
	}

	got, err := os.ReadFile(filepath.Join(dest, "covers", "cover.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "jpeg" {
		t.Errorf("cover.jpg content = %q", got)
	}

	for _, p := range paths {
		if !strings.HasPrefix(p, dest) {
			t.Errorf("extracted path %q outside destination", p)
		}
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	data := buildZip(t, nil)

	paths, err := Extract(context.Background(), bytes.NewReader(data), int64(len(data)), t.TempDir())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no files, got %v", paths)
	}
}

func TestExtractRejectsEscapingEntry(t *testing.T) {
	data := buildZip(t, map[string]string{
		"../evil.mp3": "nope",
	})
	dest := t.TempDir()

	_, err := Extract(context.Background(), bytes.NewReader(data), int64(len(data)), dest)
	if err == nil {
		t.Fatal("expected error for path traversal entry")
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.mp3")); statErr == nil {
		t.Error("escaping entry was written outside the destination")
	}
}

func TestExtractNotAnArchive(t *testing.T) {
	data := []byte("definitely not a zip file")
	_, err := Extract(context.Background(), bytes.NewReader(data), int64(len(data)), t.TempDir())
	if err == nil {
		t.Fatal("expected error for invalid archive")
	}
}
