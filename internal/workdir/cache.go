// Package workdir manages the per-run tree of scratch directories that
// archive jobs extract into. Directories are keyed by job name, created
// lazily exactly once per key even under concurrent requests, and removed
// best-effort once the job is done.
package workdir

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/henricj/fixvox/internal/retry"
)

// ErrCreateExhausted is returned by Get when a working directory could not
// be created within the bounded number of attempts.
var ErrCreateExhausted = errors.New("working directory creation attempts exhausted")

const (
	createAttempts = 5
	deleteAttempts = 10
	rootAttempts   = 3

	backoffMin = 10 * time.Millisecond
	backoffMax = 150 * time.Millisecond
)

// entry memoizes one directory creation. The winner of the map insert
// performs the creation and closes done; everyone else waits on done and
// reads the same path/err.
type entry struct {
	done chan struct{}
	path string
	err  error
}

// Cache maps case-insensitive job keys to scratch directories under a
// single per-process root in the system temp directory.
type Cache struct {
	root     string
	log      *slog.Logger
	attempts int

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates the per-process root scope under the system temp directory,
// named "<prefix>-<randomSuffix>". attempts bounds directory creation
// retries; values below one fall back to the default.
func New(prefix string, attempts int, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	if attempts < 1 {
		attempts = createAttempts
	}
	root, err := os.MkdirTemp("", prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &Cache{
		root:     root,
		log:      log,
		attempts: attempts,
		entries:  make(map[string]*entry),
	}, nil
}

// Root returns the path of the per-process scope directory.
func (c *Cache) Root() string {
	return c.root
}

// Get returns the working directory for key, creating it on first request.
// Concurrent calls with the same key share a single creation attempt and
// observe the same result. Keys are case-insensitive.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	k := strings.ToLower(key)

	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[k] = e
		c.mu.Unlock()

		e.path, e.err = c.create(ctx, k)
		close(e.done)
		return e.path, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.done:
		return e.path, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// create makes a uniquely named directory for the key under the root
// scope, retrying transient failures with a jittered delay.
func (c *Cache) create(ctx context.Context, key string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, backoffMin, backoffMax); err != nil {
				return "", err
			}
		}
		path := filepath.Join(c.root, key+"-"+randomSuffix())
		if err := os.Mkdir(path, 0o700); err != nil {
			lastErr = err
			c.log.Debug("working directory creation failed", "key", key, "attempt", attempt+1, "error", err)
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w for key %q: %v", ErrCreateExhausted, key, lastErr)
}

// Cleanup removes the cache entry for key and deletes its directory.
// It is idempotent: unknown keys and already-deleted directories are fine.
// Deletion problems are logged, never returned.
func (c *Cache) Cleanup(ctx context.Context, key string) {
	k := strings.ToLower(key)

	c.mu.Lock()
	e, ok := c.entries[k]
	delete(c.entries, k)
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		c.log.Warn("abandoning cleanup wait", "key", k, "error", ctx.Err())
		return
	}
	if e.err != nil {
		return
	}
	c.removeDir(ctx, e.path)
}

// removeDir deletes a directory tree, re-checking existence after each
// attempt. Stale directories are an acceptable failure mode, a hung
// deletion loop is not, so the loop is bounded and then abandoned.
func (c *Cache) removeDir(ctx context.Context, path string) {
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		if err := os.RemoveAll(path); err != nil {
			c.log.Debug("directory removal failed", "path", path, "attempt", attempt+1, "error", err)
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return
		}
		if err := retry.Sleep(ctx, backoffMin, backoffMax); err != nil {
			break
		}
	}
	c.log.Warn("abandoning directory removal, leaving stale directory", "path", path)
}

// Close drains all outstanding creations, clearing the key map, then
// deletes the root scope directory. Individual entry errors are swallowed
// and logged; root deletion failure is tolerated silently.
func (c *Cache) Close(ctx context.Context) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	for key, e := range entries {
		select {
		case <-e.done:
			if e.err != nil {
				c.log.Debug("pending creation finished with error during shutdown", "key", key, "error", e.err)
			}
		case <-ctx.Done():
			c.log.Warn("shutdown drain interrupted", "error", ctx.Err())
			return
		}
	}

	err := retry.Do(ctx, rootAttempts, backoffMin, backoffMax, func() error {
		return os.RemoveAll(c.root)
	})
	if err != nil {
		c.log.Debug("could not remove temp root", "path", c.root, "error", err)
	}
}

// randomSuffix returns a short hex string unique enough to keep sibling
// jobs with colliding names apart.
func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(b[:])
}
