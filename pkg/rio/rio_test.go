package rio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/memkv/pkg/crc64"
)

func TestStream_ChunkingAndChecksum(t *testing.T) {
	payload := []byte(strings.Repeat("0123456789", 100))

	var calls int
	hook := func(s *Stream, p []byte) {
		calls++
		if len(p) > 64 {
			t.Errorf("hook saw chunk of %d bytes", len(p))
		}
		GenericChecksum(s, p)
	}

	buf := NewBuffer(nil)
	w := New(buf, WithMaxChunk(64), WithChecksum(hook))
	n, err := w.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if calls != (len(payload)+63)/64 {
		t.Errorf("hook calls = %d", calls)
	}
	if w.Processed() != int64(len(payload)) {
		t.Errorf("Processed() = %d", w.Processed())
	}
	if w.Checksum() != crc64.Checksum(payload) {
		t.Errorf("Checksum() = %#x, want %#x", w.Checksum(), crc64.Checksum(payload))
	}
	if w.Tell() != int64(len(payload)) {
		t.Errorf("Tell() = %d", w.Tell())
	}

	r := New(NewBuffer(buf.Bytes()), WithMaxChunk(100), WithChecksum(GenericChecksum))
	got := make([]byte, len(payload))
	if _, err := r.Read(got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("read back mismatch")
	}
	if r.Checksum() != w.Checksum() {
		t.Error("read and write checksums differ")
	}

	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Read past end error = %v", err)
	}
	if r.Err() == nil {
		t.Error("Err() not sticky after failure")
	}
}

func TestFile_WriteReadAutoSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	fb, err := NewFile(f)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	fb.SetAutoSync(1024)

	s := New(fb, WithChecksum(GenericChecksum))
	payload := bytes.Repeat([]byte{0xAB}, 10_000)
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if fb.unsynced >= 1024 {
		t.Errorf("unsynced = %d, autosync not applied", fb.unsynced)
	}
	if err := fb.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	rf, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	rb, err := NewFile(rf)
	if err != nil {
		t.Fatal(err)
	}
	r := New(rb)
	got := make([]byte, len(payload))
	if _, err := r.Read(got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("file round trip mismatch")
	}
	if rb.Tell() != int64(len(payload)) {
		t.Errorf("Tell() = %d", rb.Tell())
	}
}

type failingWriter struct {
	after int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.after {
		return 0, errors.New("connection reset")
	}
	w.n += len(p)
	return len(p), nil
}

func TestFanOut_PartialFailure(t *testing.T) {
	var a, b bytes.Buffer
	bad := &failingWriter{after: 100}
	fo := NewFanOut(&a, bad, &b)
	s := New(fo)

	payload := bytes.Repeat([]byte("x"), FanOutBufferSize*3)
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if !bytes.Equal(a.Bytes(), payload) || !bytes.Equal(b.Bytes(), payload) {
		t.Error("healthy destinations did not receive the full payload")
	}
	errs := fo.Errors()
	if errs[0] != nil || errs[2] != nil {
		t.Errorf("healthy destinations reported errors: %v", errs)
	}
	if errs[1] == nil {
		t.Error("failing destination has no error")
	}

	if err := fo.Read(make([]byte, 1)); err != ErrWriteOnly {
		t.Errorf("Read() error = %v", err)
	}
}

func TestFanOut_AllFailed(t *testing.T) {
	fo := NewFanOut(&failingWriter{}, &failingWriter{})
	if err := fo.Write([]byte("abc")); err != nil {
		t.Fatalf("buffered Write() error = %v", err)
	}
	if err := fo.Flush(); !errors.Is(err, ErrAllFailed) {
		t.Errorf("Flush() error = %v, want ErrAllFailed", err)
	}

	var ok bytes.Buffer
	fo = NewFanOut(&ok)
	fo.Fail(0, errors.New("closed"))
	if err := fo.Flush(); !errors.Is(err, ErrAllFailed) {
		t.Errorf("Flush() after Fail error = %v", err)
	}
}

func TestBulkHelpers(t *testing.T) {
	buf := NewBuffer(nil)
	s := New(buf)

	WriteBulkCount(s, '*', 3)
	WriteBulkString(s, []byte("SET"))
	WriteBulkInt64(s, -12)
	WriteBulkFloat64(s, 1.5)

	want := "*3\r\n$3\r\nSET\r\n$3\r\n-12\r\n$3\r\n1.5\r\n"
	if got := string(buf.Bytes()); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
