//go:build linux

package rio

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync commits file data without forcing a metadata update.
func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
