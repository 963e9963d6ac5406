//go:build !linux

package bio

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
