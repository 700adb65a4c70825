//go:build linux

package atomicfile

import (
	"io/fs"
	"syscall"
	"time"
)

// accessTime extracts the access time from a stat result.
func accessTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Unix())
	}
	return info.ModTime()
}
