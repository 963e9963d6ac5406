package rio

import "io"

// Buffer is an in-memory Backend. Writes append; reads consume from the
// current position.
type Buffer struct {
	buf []byte
	pos int
}

// NewBuffer returns a Buffer reading from (or appending to) b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{buf: b}
}

func (b *Buffer) Read(p []byte) error {
	if len(b.buf)-b.pos < len(p) {
		return io.ErrUnexpectedEOF
	}
	copy(p, b.buf[b.pos:])
	b.pos += len(p)
	return nil
}

func (b *Buffer) Write(p []byte) error {
	b.buf = append(b.buf, p...)
	b.pos += len(p)
	return nil
}

func (b *Buffer) Tell() int64 { return int64(b.pos) }

func (b *Buffer) Flush() error { return nil }

// Bytes returns the full buffer contents.
func (b *Buffer) Bytes() []byte { return b.buf }
