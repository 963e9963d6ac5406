package rdb

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	ErrNoEOFMark       = errors.New("rdb: stream does not start with an EOF mark")
	ErrEOFMarkMismatch = errors.New("rdb: stream does not end with its EOF mark")
)

// EOFMarkReader strips the delimiter written by SaveWithEOFMark. Reads
// yield the snapshot bytes only and return io.EOF once a read ends with
// the closing mark. A source that ends without it yields
// ErrEOFMarkMismatch.
type EOFMarkReader struct {
	src  *bufio.Reader
	mark []byte
	tail []byte // last len(mark) bytes read, not yet released
	err  error
}

// NewEOFMarkReader reads the opening "$EOF:<mark>\r\n" line from r.
func NewEOFMarkReader(r io.Reader) (*EOFMarkReader, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, ErrNoEOFMark
	}
	line = bytes.TrimSuffix(line, []byte("\r\n"))
	if !bytes.HasPrefix(line, []byte("$EOF:")) || len(line) != 5+eofMarkSize {
		return nil, ErrNoEOFMark
	}
	return &EOFMarkReader{src: br, mark: line[5:]}, nil
}

// Mark returns the delimiter.
func (r *EOFMarkReader) Mark() string { return string(r.mark) }

func (r *EOFMarkReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	buf := make([]byte, len(p)+len(r.mark))
	copy(buf, r.tail)
	n, err := r.src.Read(buf[len(r.tail):])
	have := len(r.tail) + n

	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
		return 0, err
	}
	// The sender may keep the connection open, so the mark ends the
	// payload as soon as it is the last thing read.
	if have >= len(r.mark) && bytes.Equal(buf[have-len(r.mark):have], r.mark) {
		out := copy(p, buf[:have-len(r.mark)])
		r.err = io.EOF
		if out == 0 {
			return 0, io.EOF
		}
		return out, nil
	}
	if errors.Is(err, io.EOF) {
		r.err = ErrEOFMarkMismatch
		return 0, r.err
	}

	// Hold back enough bytes to recognise the mark when the source ends.
	release := have - len(r.mark)
	if release <= 0 {
		r.tail = append(r.tail[:0], buf[:have]...)
		return 0, nil
	}
	out := copy(p, buf[:release])
	r.tail = append(r.tail[:0], buf[out:have]...)
	return out, nil
}
