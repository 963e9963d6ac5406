package rio

import (
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// FanOutBufferSize is the amount of data buffered before it is pushed to
// every destination.
const FanOutBufferSize = 16 << 10

// FanOut is a write-only Backend that copies every byte to several
// destinations. A destination that fails is dropped from later writes and
// its error is kept; the stream as a whole fails only when every
// destination has failed.
type FanOut struct {
	dsts []io.Writer
	errs []error
	buf  []byte
	pos  int64
}

// NewFanOut returns a FanOut over dsts.
func NewFanOut(dsts ...io.Writer) *FanOut {
	return &FanOut{
		dsts: dsts,
		errs: make([]error, len(dsts)),
		buf:  make([]byte, 0, FanOutBufferSize),
	}
}

func (f *FanOut) Read(p []byte) error { return ErrWriteOnly }

// Write buffers p and pushes the buffer out once it exceeds
// FanOutBufferSize.
func (f *FanOut) Write(p []byte) error {
	f.buf = append(f.buf, p...)
	f.pos += int64(len(p))
	if len(f.buf) > FanOutBufferSize {
		return f.push()
	}
	return nil
}

func (f *FanOut) Tell() int64 { return f.pos }

// Flush pushes any buffered data to every live destination.
func (f *FanOut) Flush() error {
	return f.push()
}

func (f *FanOut) push() error {
	if len(f.buf) == 0 {
		return f.status()
	}

	var g errgroup.Group
	for i, w := range f.dsts {
		if f.errs[i] != nil {
			continue
		}
		g.Go(func() error {
			if _, err := w.Write(f.buf); err != nil {
				f.errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	f.buf = f.buf[:0]
	return f.status()
}

func (f *FanOut) status() error {
	for _, err := range f.errs {
		if err == nil {
			return nil
		}
	}
	if len(f.errs) == 0 {
		return ErrAllFailed
	}
	return errors.Join(ErrAllFailed, errors.Join(f.errs...))
}

// Errors returns the error recorded for each destination, nil for those
// still healthy. The slice is indexed like the destinations.
func (f *FanOut) Errors() []error {
	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}

// Fail marks destination i as failed with err. Callers use it when a
// destination is known to be broken by other means.
func (f *FanOut) Fail(i int, err error) {
	if f.errs[i] == nil {
		f.errs[i] = err
	}
}
