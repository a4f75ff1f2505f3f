//go:build linux

package flatdb

import "golang.org/x/sys/unix"

// Open file description locks belong to the open file rather than to the
// process, so closing one handle keeps the locks of other handles on the same
// file in this process.
const setLockWait = unix.F_OFD_SETLKW
