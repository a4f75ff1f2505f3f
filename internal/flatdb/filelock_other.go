//go:build !unix && !windows

package flatdb

import "os"

const renameWhileLocked = true

// No advisory locking on this platform; only the in-process lock applies.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
