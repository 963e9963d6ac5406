package rio

import (
	"errors"
	"io"

	"github.com/yndnr/memkv/pkg/crc64"
)

var (
	ErrReadOnly    = errors.New("rio: backend is read-only")
	ErrWriteOnly   = errors.New("rio: backend is write-only")
	ErrAllFailed   = errors.New("rio: all destinations failed")
	ErrShortBuffer = errors.New("rio: short read")
)

// Backend is a sequential byte store. Read fills p completely or fails.
type Backend interface {
	Read(p []byte) error
	Write(p []byte) error
	Tell() int64
	Flush() error
}

// ChecksumFunc is invoked with every chunk successfully read or written
// through a Stream.
type ChecksumFunc func(s *Stream, p []byte)

// GenericChecksum folds p into the stream's running CRC-64.
func GenericChecksum(s *Stream, p []byte) {
	s.cksum = crc64.Update(s.cksum, p)
}

// Stream adds chunking, checksumming and byte accounting to a Backend.
type Stream struct {
	backend   Backend
	update    ChecksumFunc
	cksum     uint64
	processed int64
	maxChunk  int
	err       error
}

// Option configures a Stream.
type Option func(*Stream)

// WithMaxChunk bounds the size of a single backend call. Zero means no limit.
func WithMaxChunk(n int) Option {
	return func(s *Stream) { s.maxChunk = n }
}

// WithChecksum installs fn as the checksum hook.
func WithChecksum(fn ChecksumFunc) Option {
	return func(s *Stream) { s.update = fn }
}

// New wraps b.
func New(b Backend, opts ...Option) *Stream {
	s := &Stream{backend: b}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Backend() Backend { return s.backend }

// SetChecksumHook replaces the checksum hook; nil disables it.
func (s *Stream) SetChecksumHook(fn ChecksumFunc) { s.update = fn }

func (s *Stream) SetMaxChunk(n int) { s.maxChunk = n }

// Checksum returns the running checksum maintained by GenericChecksum.
func (s *Stream) Checksum() uint64 { return s.cksum }

// ResetChecksum sets the running checksum back to zero.
func (s *Stream) ResetChecksum() { s.cksum = 0 }

// Processed returns the number of bytes read or written so far.
func (s *Stream) Processed() int64 { return s.processed }

// Err returns the first error the stream hit.
func (s *Stream) Err() error { return s.err }

func (s *Stream) chunk(n int) int {
	if s.maxChunk > 0 && n > s.maxChunk {
		return s.maxChunk
	}
	return n
}

// Write writes all of p, splitting it into chunks. It implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	written := 0
	for written < len(p) {
		n := s.chunk(len(p) - written)
		part := p[written : written+n]
		if s.update != nil {
			s.update(s, part)
		}
		if err := s.backend.Write(part); err != nil {
			s.err = err
			return written, err
		}
		written += n
		s.processed += int64(n)
	}
	return written, nil
}

// Read fills p completely or returns an error. It implements io.Reader;
// a short source yields io.ErrUnexpectedEOF.
func (s *Stream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	read := 0
	for read < len(p) {
		n := s.chunk(len(p) - read)
		part := p[read : read+n]
		if err := s.backend.Read(part); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.err = err
			return read, err
		}
		if s.update != nil {
			s.update(s, part)
		}
		read += n
		s.processed += int64(n)
	}
	return read, nil
}

// Tell returns the backend's current offset.
func (s *Stream) Tell() int64 { return s.backend.Tell() }

// Flush flushes buffered backend data.
func (s *Stream) Flush() error {
	if err := s.backend.Flush(); err != nil {
		if s.err == nil {
			s.err = err
		}
		return err
	}
	return nil
}
