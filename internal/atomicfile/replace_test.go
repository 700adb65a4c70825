package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestReplaceSwapsContentAndPreservesTimestamps(t *testing.T) {
	dir := t.TempDir()
	backupDir := t.TempDir()

	original := filepath.Join(dir, "track.mp3")
	replacement := filepath.Join(dir, "track.fixed.mp3")
	writeFile(t, original, "old bytes")
	writeFile(t, replacement, "new bytes")

	past := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(original, past, past); err != nil {
		t.Fatal(err)
	}

	if err := Replace(original, replacement, backupDir, nil); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if got := readFile(t, original); got != "new bytes" {
		t.Errorf("original path content = %q, want %q", got, "new bytes")
	}
	if _, err := os.Stat(replacement); !os.IsNotExist(err) {
		t.Errorf("replacement should have been moved away, stat err=%v", err)
	}

	info, err := os.Stat(original)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(past) {
		t.Errorf("modification time = %v, want %v", info.ModTime(), past)
	}

	// Backup copy is deleted after a successful swap.
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("backup directory should be empty, found %d entries", len(entries))
	}
}

func TestReplacePreservesDistinctAccessTime(t *testing.T) {
	dir := t.TempDir()

	original := filepath.Join(dir, "track.mp3")
	replacement := filepath.Join(dir, "track.fixed.mp3")
	writeFile(t, original, "old bytes")
	writeFile(t, replacement, "new bytes")

	atime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(original, atime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := Replace(original, replacement, dir, nil); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	info, err := os.Stat(original)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("modification time = %v, want %v", info.ModTime(), mtime)
	}
	if got := accessTime(info); !got.Equal(atime) && !got.Equal(mtime) {
		t.Errorf("access time = %v, want %v", got, atime)
	}
}

func TestReplaceRollsBackWhenSecondMoveFails(t *testing.T) {
	dir := t.TempDir()
	backupDir := t.TempDir()

	original := filepath.Join(dir, "track.mp3")
	writeFile(t, original, "precious bytes")

	// The replacement file does not exist, so the second rename fails
	// after the original has already been moved aside.
	missing := filepath.Join(dir, "does-not-exist.mp3")

	err := Replace(original, missing, backupDir, nil)
	if err == nil {
		t.Fatal("expected Replace to fail")
	}

	// Rollback must have restored the original untouched.
	if got := readFile(t, original); got != "precious bytes" {
		t.Errorf("original content after rollback = %q, want %q", got, "precious bytes")
	}
	entries, readErr := os.ReadDir(backupDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("backup directory should be empty after rollback, found %d entries", len(entries))
	}
}

func TestReplaceMissingOriginal(t *testing.T) {
	dir := t.TempDir()
	replacement := filepath.Join(dir, "new.mp3")
	writeFile(t, replacement, "new")

	err := Replace(filepath.Join(dir, "gone.mp3"), replacement, dir, nil)
	if err == nil {
		t.Fatal("expected error for missing original")
	}
	// The replacement must be left alone on failure.
	if got := readFile(t, replacement); got != "new" {
		t.Errorf("replacement was modified: %q", got)
	}
}
