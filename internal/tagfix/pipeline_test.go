package tagfix

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/henricj/fixvox/internal/batch"
	"github.com/henricj/fixvox/internal/workdir"
)

// Runs a directory of archives through the full pipeline: discovery,
// working directory lifecycle, extraction, tag fixes and library layout.
func TestPipelineProcessesArchiveDirectory(t *testing.T) {
	inputDir := t.TempDir()
	for _, album := range []struct {
		archive string
		artist  string
	}{
		{"first.zip", "First Artist"},
		{"second.zip", "Second Artist"},
	} {
		entries := make(map[string][]byte)
		for i, title := range []string{"One", "Two", "Three"} {
			track := append(buildID3v23(map[string]string{
				"TIT2": title,
				"TPE1": album.artist,
				"TALB": "Album",
			}), makeFrames(2)...)
			entries[fmt.Sprintf("%02d - %s.mp3", i+1, title)] = track
		}
		data := buildZip(t, entries)
		if err := os.WriteFile(filepath.Join(inputDir, album.archive), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cache, err := workdir.New("fixvox-pipeline-test", 0, log)
	if err != nil {
		t.Fatal(err)
	}
	fixer, library := newTestFixer(t)

	processor := batch.New(cache, log, batch.Options{Parallelism: 2})
	done, err := processor.Process(context.Background(), []string{inputDir}, fixer.Transform)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("expected both archives in the result, got %v", done)
	}

	var tracks []string
	err = filepath.WalkDir(library, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".mp3") {
			tracks = append(tracks, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 6 {
		t.Errorf("expected 6 emitted tracks, found %d: %v", len(tracks), tracks)
	}
	for _, artist := range []string{"First Artist", "Second Artist"} {
		if _, err := os.Stat(filepath.Join(library, artist, "Album")); err != nil {
			t.Errorf("missing album directory for %s: %v", artist, err)
		}
	}

	// Every per-archive working directory was cleaned up after its job.
	leftovers, err := os.ReadDir(cache.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("working directories left behind: %v", leftovers)
	}

	cache.Close(context.Background())
	if _, err := os.Stat(cache.Root()); !os.IsNotExist(err) {
		t.Errorf("cache root should be removed after Close: %v", err)
	}
}
