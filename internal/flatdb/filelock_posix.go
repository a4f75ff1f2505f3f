//go:build unix && !linux

package flatdb

import "golang.org/x/sys/unix"

// Classic POSIX locks are per process: closing any handle on a file drops
// them all. The in-process table lock still serializes this process.
const setLockWait = unix.F_SETLKW
