package rio

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

const fileBufferSize = 64 << 10

// File is a buffered file Backend. Reads and writes must not be mixed on
// the same File.
type File struct {
	f   *os.File
	r   *bufio.Reader
	w   *bufio.Writer
	pos int64

	autosync int64
	unsynced int64
}

// NewFile wraps f starting at its current offset.
func NewFile(f *os.File) (*File, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("rio: tell: %w", err)
	}
	return &File{f: f, pos: pos}, nil
}

// SetAutoSync makes the file fsync every n written bytes. Zero disables it.
// Spreading syncs over the write avoids a single long flush at the end.
func (f *File) SetAutoSync(n int64) { f.autosync = n }

func (f *File) Read(p []byte) error {
	if f.r == nil {
		f.r = bufio.NewReaderSize(f.f, fileBufferSize)
	}
	n, err := io.ReadFull(f.r, p)
	f.pos += int64(n)
	return err
}

func (f *File) Write(p []byte) error {
	if f.w == nil {
		f.w = bufio.NewWriterSize(f.f, fileBufferSize)
	}
	n, err := f.w.Write(p)
	f.pos += int64(n)
	if err != nil {
		return err
	}

	if f.autosync > 0 {
		f.unsynced += int64(n)
		if f.unsynced >= f.autosync {
			if err := f.w.Flush(); err != nil {
				return err
			}
			if err := datasync(f.f); err != nil {
				return fmt.Errorf("rio: sync: %w", err)
			}
			f.unsynced = 0
		}
	}
	return nil
}

func (f *File) Tell() int64 { return f.pos }

func (f *File) Flush() error {
	if f.w == nil {
		return nil
	}
	return f.w.Flush()
}

// Sync flushes buffered data and commits the file to stable storage.
func (f *File) Sync() error {
	if err := f.Flush(); err != nil {
		return err
	}
	return f.f.Sync()
}

// File returns the underlying file.
func (f *File) File() *os.File { return f.f }
