//go:build !unix

package persistence

import "os"

// Advisory locking is only implemented where flock(2) exists.
func lock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
