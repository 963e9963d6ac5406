package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/yndnr/memkv/internal/core/domain"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    int
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (s *memStore) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	s.mu.Lock()
	s.puts++
	putErr := s.putErr
	s.mu.Unlock()
	if putErr != nil {
		return minio.UploadInfo{}, putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, fmt.Errorf("read %d bytes, announced %d", len(data), size)
	}
	s.mu.Lock()
	s.objects[bucket+"/"+object] = data
	s.mu.Unlock()
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (s *memStore) FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error {
	s.mu.Lock()
	data, ok := s.objects[bucket+"/"+object]
	s.mu.Unlock()
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(filePath, data, 0600)
}

func (s *memStore) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	s.mu.Lock()
	var keys []string
	for k := range s.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if strings.HasPrefix(k, bucket+"/") && strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func (s *memStore) RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+object)
	return nil
}

func (s *memStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}

func newTestUploader(t *testing.T, store ObjectStore, mutate func(*Config)) *Uploader {
	t.Helper()
	cfg := Config{
		Bucket: "snapshots",
		Prefix: "node-1",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	u, err := NewWithStore(store, cfg)
	if err != nil {
		t.Fatalf("NewWithStore: %v", err)
	}
	t.Cleanup(func() { _ = u.Close(context.Background()) })
	return u
}

func writeSnapshot(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUploader_UploadAndDownload(t *testing.T) {
	store := newMemStore()
	u := newTestUploader(t, store, nil)
	dir := t.TempDir()
	data := bytes.Repeat([]byte("REDIS0009"), 100)
	file := writeSnapshot(t, dir, "dump-01.rdb", data)

	if err := u.Upload(context.Background(), file); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, ok := store.get("snapshots/node-1/dump-01.rdb")
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("stored object mismatch (present %v)", ok)
	}

	dst := filepath.Join(dir, "restored.rdb")
	if err := u.Download(context.Background(), "dump-01.rdb", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	restored, _ := os.ReadFile(dst)
	if !bytes.Equal(restored, data) {
		t.Error("downloaded snapshot differs")
	}
}

func TestUploader_UploadErrors(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("access denied")
	u := newTestUploader(t, store, nil)

	file := writeSnapshot(t, t.TempDir(), "dump-01.rdb", []byte("x"))
	if err := u.Upload(context.Background(), file); !errors.Is(err, domain.ErrArchive) {
		t.Errorf("Upload error = %v, want ErrArchive", err)
	}
	if err := u.Upload(context.Background(), "/does/not/exist.rdb"); !errors.Is(err, domain.ErrArchive) {
		t.Errorf("Upload of missing file error = %v, want ErrArchive", err)
	}
	if err := u.Download(context.Background(), "missing.rdb", filepath.Join(t.TempDir(), "x")); !errors.Is(err, domain.ErrArchive) {
		t.Errorf("Download error = %v, want ErrArchive", err)
	}
}

func TestUploader_RateLimitedUpload(t *testing.T) {
	store := newMemStore()
	u := newTestUploader(t, store, func(c *Config) { c.RateBytesPerSec = 1 << 20 })
	if u.limiter.Burst() != 1<<20 {
		t.Errorf("burst = %d, want %d", u.limiter.Burst(), 1<<20)
	}
	data := make([]byte, 256<<10)
	for i := range data {
		data[i] = byte(i)
	}
	file := writeSnapshot(t, t.TempDir(), "dump-01.rdb", data)
	if err := u.Upload(context.Background(), file); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got, _ := store.get("snapshots/node-1/dump-01.rdb"); !bytes.Equal(got, data) {
		t.Error("rate limited upload corrupted the data")
	}
}

func TestUploader_RateLimitHonoursContext(t *testing.T) {
	u := newTestUploader(t, newMemStore(), func(c *Config) { c.RateBytesPerSec = 16 })
	file := writeSnapshot(t, t.TempDir(), "dump-01.rdb", make([]byte, 4096))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := u.Upload(ctx, file); err == nil {
		t.Error("Upload finished despite a rate far below the file size")
	}
}

func TestUploader_Prune(t *testing.T) {
	store := newMemStore()
	u := newTestUploader(t, store, func(c *Config) { c.Keep = 2 })
	dir := t.TempDir()
	for i := range 4 {
		file := writeSnapshot(t, dir, fmt.Sprintf("dump-%02d.rdb", i), []byte{byte(i)})
		if err := u.Upload(context.Background(), file); err != nil {
			t.Fatal(err)
		}
	}
	store.objects["snapshots/node-1/readme.txt"] = []byte("not a snapshot")

	if err := u.Prune(context.Background()); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	names, err := u.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"dump-02.rdb", "dump-03.rdb"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", names, want)
	}
	if _, ok := store.get("snapshots/node-1/readme.txt"); !ok {
		t.Error("Prune removed a foreign object")
	}
}

func TestUploader_SubmitUploadsInBackground(t *testing.T) {
	store := newMemStore()
	u := newTestUploader(t, store, nil)
	dir := t.TempDir()

	if err := u.Submit(writeSnapshot(t, dir, "dump-01.rdb", []byte("one"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := u.Submit(writeSnapshot(t, dir, "dump-02.rdb", []byte("two"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := store.get("snapshots/node-1/dump-02.rdb"); !ok {
		t.Error("newest submitted snapshot was not uploaded")
	}
	uploaded, failed := u.Stats()
	if uploaded == 0 || failed != 0 {
		t.Errorf("Stats = %d uploaded, %d failed", uploaded, failed)
	}
	if err := u.Submit("dump-03.rdb"); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
}

func TestNewWithStore_RequiresBucket(t *testing.T) {
	if _, err := NewWithStore(newMemStore(), Config{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
	if _, err := New(Config{Bucket: "b"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("New without endpoint error = %v", err)
	}
}

func TestNew_BadCAFile(t *testing.T) {
	_, err := New(Config{
		Endpoint: "localhost:9000",
		Bucket:   "b",
		Secure:   true,
		CAFile:   filepath.Join(t.TempDir(), "missing.pem"),
	})
	if !errors.Is(err, domain.ErrArchive) {
		t.Errorf("error = %v, want ErrArchive", err)
	}
}
