// Package atomicfile swaps a freshly produced file into an existing
// file's place without ever leaving the destination path empty.
package atomicfile

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
)

// ErrNameExhausted is returned when no free backup name could be found in
// the backup directory within the bounded number of attempts.
var ErrNameExhausted = errors.New("backup name generation attempts exhausted")

const nameAttempts = 10

// RollbackError reports the dangerous case where moving the replacement
// into place failed and moving the original back failed too. The original
// file still exists in the backup directory, but its path is empty.
type RollbackError struct {
	ReplaceErr error
	RestoreErr error
	BackupPath string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("replace failed (%v) and rollback failed (%v); original preserved at %s",
		e.ReplaceErr, e.RestoreErr, e.BackupPath)
}

func (e *RollbackError) Unwrap() error { return e.ReplaceErr }

// Replace swaps replacement into original's path. The original's access
// and modification times are captured before the swap and stamped onto
// the swapped-in file; on platforms that expose no access time, the
// modification time stands in for it. The original is parked in backupDir
// during the swap and restored if the final move fails; on success the
// parked copy is deleted best-effort. Both paths and backupDir must live
// on the same volume.
func Replace(original, replacement, backupDir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	info, err := os.Stat(original)
	if err != nil {
		return fmt.Errorf("stat original: %w", err)
	}
	atime := accessTime(info)

	backupPath, err := freeBackupName(backupDir, filepath.Base(original))
	if err != nil {
		return err
	}

	if err := os.Rename(original, backupPath); err != nil {
		return fmt.Errorf("move original aside: %w", err)
	}

	if err := os.Rename(replacement, original); err != nil {
		if restoreErr := os.Rename(backupPath, original); restoreErr != nil {
			return &RollbackError{ReplaceErr: err, RestoreErr: restoreErr, BackupPath: backupPath}
		}
		return fmt.Errorf("move replacement into place: %w", err)
	}

	if err := os.Chtimes(original, atime, info.ModTime()); err != nil {
		log.Warn("could not restore timestamps", "path", original, "error", err)
	}
	if err := os.Remove(backupPath); err != nil {
		log.Warn("could not remove backup copy", "path", backupPath, "error", err)
	}
	return nil
}

// freeBackupName picks a collision-checked temporary name in dir.
func freeBackupName(dir, base string) (string, error) {
	for attempt := 0; attempt < nameAttempts; attempt++ {
		path := filepath.Join(dir, fmt.Sprintf("%s.%08x.bak", base, rand.Uint32()))
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", ErrNameExhausted
}
