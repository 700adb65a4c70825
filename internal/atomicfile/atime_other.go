//go:build !linux

package atomicfile

import (
	"io/fs"
	"time"
)

// accessTime falls back to the modification time on platforms where the
// stat result does not expose a portable access time.
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
