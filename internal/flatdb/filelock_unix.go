//go:build unix

package flatdb

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// renameWhileLocked reports whether a locked table file can be replaced by
// rename before its lock is released.
const renameWhileLocked = true

// lockFile places a record lock over the whole file, including bytes appended
// later, and waits until it is granted.
func lockFile(f *os.File, exclusive bool) error {
	var typ int16 = unix.F_RDLCK
	if exclusive {
		typ = unix.F_WRLCK
	}
	return fcntlLock(f, typ)
}

func unlockFile(f *os.File) error {
	return fcntlLock(f, unix.F_UNLCK)
}

func fcntlLock(f *os.File, typ int16) error {
	lk := unix.Flock_t{Type: typ, Whence: io.SeekStart, Start: 0, Len: 0}
	for {
		if err := unix.FcntlFlock(f.Fd(), setLockWait, &lk); err != unix.EINTR {
			return err
		}
	}
}
