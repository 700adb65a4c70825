// Package batch discovers archive inputs and drives each one through a
// transform inside its own working directory, in parallel. One input's
// failure never stops its siblings, and every acquired working directory
// is cleaned up no matter how the transform ends.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"

	"github.com/henricj/fixvox/internal/workdir"
)

// Inputs at or under this size are fully buffered so transforms that
// seek and re-read stay off the disk.
const bufferThreshold = 512 * 1024

// Transform processes one input file given read access to its bytes and
// a private scratch directory. Returning false means the file was
// handled but should not be counted as processed.
type Transform func(ctx context.Context, src io.ReaderAt, size int64, workDir string) (bool, error)

// Options configures a Processor.
type Options struct {
	// Parallelism bounds concurrent per-file work; defaults to the
	// available hardware parallelism.
	Parallelism int

	// Pattern is the archive filename pattern used when expanding
	// directory inputs. Defaults to "*.zip".
	Pattern string

	// Progress enables a progress bar over the file count.
	Progress bool
}

// Processor runs a batch of inputs through a transform.
type Processor struct {
	cache       *workdir.Cache
	log         *slog.Logger
	parallelism int
	pattern     string
	progress    bool
}

// New creates a Processor that acquires working directories from cache.
func New(cache *workdir.Cache, log *slog.Logger, opts Options) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.zip"
	}
	// Discovery matches against lowercased names, so the pattern must be
	// lowercase as well.
	opts.Pattern = strings.ToLower(opts.Pattern)
	return &Processor{
		cache:       cache,
		log:         log,
		parallelism: opts.Parallelism,
		pattern:     opts.Pattern,
		progress:    opts.Progress,
	}
}

// Process expands inputs into unique candidate files, runs transform over
// each in parallel, and returns the absolute paths of the files that were
// fully handled. Result order is unspecified. If any file's transform
// failed, the first such failure is returned alongside the partial result
// list; the remaining files are unaffected.
func (p *Processor) Process(ctx context.Context, inputs []string, transform Transform) ([]string, error) {
	files := p.discover(inputs)

	var bar *pb.ProgressBar
	if p.progress && len(files) > 0 {
		bar = pb.StartNew(len(files))
	}

	var g errgroup.Group
	g.SetLimit(p.parallelism)

	var mu sync.Mutex
	var done []string

	for _, path := range files {
		path := path
		g.Go(func() error {
			included, err := p.processOne(ctx, path, transform)
			if bar != nil {
				bar.Increment()
			}
			if err != nil {
				p.log.Error("processing failed", "file", path, "error", err)
				return fmt.Errorf("%s: %w", path, err)
			}
			if included {
				mu.Lock()
				done = append(done, path)
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	if bar != nil {
		bar.Finish()
	}
	return done, err
}

// discover expands the input list into deduplicated absolute file paths.
// Directories are walked recursively for files matching the archive
// pattern; explicit files are taken as-is when their attributes allow it.
// Inspection problems drop the affected input only.
func (p *Processor) discover(inputs []string) []string {
	seen := make(map[string]struct{})
	var files []string

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			p.log.Warn("skipping input, cannot resolve path", "path", path, "error", err)
			return
		}
		key := strings.ToLower(abs)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		files = append(files, abs)
	}

	for _, input := range inputs {
		info, err := os.Lstat(input)
		if err != nil {
			p.log.Warn("skipping unreadable input", "path", input, "error", err)
			continue
		}
		if !info.IsDir() {
			if supportedInput(info) {
				add(input)
			} else {
				p.log.Debug("skipping unsupported input", "path", input, "mode", info.Mode().String())
			}
			continue
		}

		walkErr := filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				p.log.Warn("skipping unreadable entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(p.pattern, strings.ToLower(d.Name())); ok {
				add(path)
			}
			return nil
		})
		if walkErr != nil {
			p.log.Warn("directory walk aborted", "path", input, "error", walkErr)
		}
	}
	return files
}

// supportedInput reports whether an explicitly listed file can be
// processed: symlinks, irregular files and files without owner write
// permission are unsupported and silently dropped.
func supportedInput(info fs.FileInfo) bool {
	mode := info.Mode()
	if mode&fs.ModeSymlink != 0 {
		return false
	}
	if !mode.IsRegular() {
		return false
	}
	if mode.Perm()&0o200 == 0 {
		return false
	}
	return true
}

type dirResult struct {
	path string
	err  error
}

// processOne runs the per-file pipeline: working directory acquisition
// (concurrent with opening the input), transform, then unconditional
// cleanup. A transform error is returned only after cleanup has been
// attempted.
func (p *Processor) processOne(ctx context.Context, path string, transform Transform) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat input: %w", err)
	}
	if info.Size() == 0 {
		// Nothing to convert; counts as handled.
		return true, nil
	}

	key := filepath.Base(path)
	dirCh := make(chan dirResult, 1)
	go func() {
		dir, err := p.cache.Get(ctx, key)
		dirCh <- dirResult{dir, err}
	}()
	defer p.cache.Cleanup(context.WithoutCancel(ctx), key)

	src, size, closeInput, openErr := openInput(path, info.Size())
	dir := <-dirCh
	if openErr == nil {
		defer closeInput()
	}
	if dir.err != nil {
		return false, fmt.Errorf("acquire working directory: %w", dir.err)
	}
	if openErr != nil {
		return false, fmt.Errorf("open input: %w", openErr)
	}

	included, err := transform(ctx, src, size, dir.path)
	if err != nil {
		return false, fmt.Errorf("transform: %w", err)
	}
	return included, nil
}

// openInput returns an io.ReaderAt over the file's bytes. Small files are
// buffered in memory; larger ones are served straight from the open file.
func openInput(path string, size int64) (io.ReaderAt, int64, func(), error) {
	if size <= bufferThreshold {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, nil, err
		}
		return bytes.NewReader(data), int64(len(data)), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}
	return f, size, func() { f.Close() }, nil
}
