//go:build !linux

package rio

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
