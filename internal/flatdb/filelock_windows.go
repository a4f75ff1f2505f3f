//go:build windows

package flatdb

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows refuses to rename over a file that is still open.
const renameWhileLocked = false

// lockFile locks the maximal byte range of f, which covers bytes appended
// later, and waits until it is granted.
func lockFile(f *os.File, exclusive bool) error {
	var flags uint32
	if exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, ^uint32(0), ^uint32(0), ol)
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, ^uint32(0), ^uint32(0), ol)
}
