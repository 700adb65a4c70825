// Package archive extracts zip archives of audio tracks into a job's
// working directory.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// entryError pairs an archive entry name with its extraction failure.
type entryError struct {
	name string
	err  error
}

// Extract unpacks the archive read from src into dest and returns the
// extracted file paths, sorted. Entry payload writes are blocking I/O, so
// they run on a worker pool sized to half the available parallelism
// rather than on the caller's fan-out.
func Extract(ctx context.Context, src io.ReaderAt, size int64, dest string) ([]string, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// Validate every entry name before any disk write happens.
	files := make([]*zip.File, 0, len(zr.File))
	paths := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		path, err := securePath(dest, f.Name)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		paths = append(paths, path)
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))

	var wg sync.WaitGroup
	errorChan := make(chan entryError, len(files))

	var mu sync.Mutex
	var extracted []string

	for i, f := range files {
		path := paths[i]

		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Done()
			errorChan <- entryError{f.Name, err}
			break
		}

		go func(f *zip.File, path string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := writeEntry(f, path); err != nil {
				errorChan <- entryError{f.Name, err}
				return
			}
			mu.Lock()
			extracted = append(extracted, path)
			mu.Unlock()
		}(f, path)
	}

	wg.Wait()
	close(errorChan)
	if e, ok := <-errorChan; ok {
		return nil, fmt.Errorf("extract %s: %w", e.name, e.err)
	}

	sort.Strings(extracted)
	return extracted, nil
}

// writeEntry copies one archive entry to disk, creating parent
// directories as needed.
func writeEntry(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// securePath joins an archive entry name onto dest, rejecting names that
// would escape it.
func securePath(dest, name string) (string, error) {
	name = filepath.FromSlash(name)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("archive entry escapes destination: %q", name)
	}
	return filepath.Join(dest, name), nil
}
