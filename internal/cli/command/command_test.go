package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage/archive"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"memkv-check"}, args...))
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func writeSnapshot(t *testing.T, dir string) string {
	t.Helper()
	mgr, err := snapshot.NewManager(snapshot.DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	ks := keyspace.New(keyspace.DefaultDatabases)
	ks.DB(0).Set("greeting", object.NewStringAuto([]byte("hello")))
	ks.DB(0).Set("counter", object.NewStringAuto([]byte("42")))
	ks.DB(2).Set("other", object.NewStringAuto([]byte("x")))
	info, err := mgr.Save(ks, rdb.NewSaveInfo())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return info.Path
}

func TestCheck_Valid(t *testing.T) {
	path := writeSnapshot(t, t.TempDir())

	out, _, err := runApp(t, "--output", "json", "check", path)
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	var res CheckResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.OK || res.Keys != 3 || res.Version != rdb.Version {
		t.Errorf("result = %+v", res)
	}
	if res.Types["string"] != 3 {
		t.Errorf("Types = %v", res.Types)
	}
}

func TestCheck_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := writeSnapshot(t, dir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.rdb")
	if err := os.WriteFile(broken, data[:len(data)/2], 0600); err != nil {
		t.Fatal(err)
	}

	out, _, err := runApp(t, "-o", "json", "check", path, broken)
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d (%v), want 1", code, err)
	}
	var results []CheckResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(results) != 2 || !results[0].OK || results[1].OK {
		t.Fatalf("results = %+v", results)
	}
	if len(results[1].Errors) == 0 {
		t.Error("broken snapshot should report errors")
	}
}

func TestCheck_Usage(t *testing.T) {
	if _, _, err := runApp(t, "check"); exitCode(err) != 2 {
		t.Errorf("missing file: err = %v, want exit 2", err)
	}
	if _, _, err := runApp(t, "-o", "xml", "list", t.TempDir()); exitCode(err) != 2 {
		t.Errorf("bad format: err = %v, want exit 2", err)
	}
	if _, _, err := runApp(t, "check", filepath.Join(t.TempDir(), "missing.rdb")); exitCode(err) != 1 {
		t.Errorf("missing file: err = %v, want exit 1", err)
	}
}

func TestDump_Stdout(t *testing.T) {
	path := writeSnapshot(t, t.TempDir())

	out, _, err := runApp(t, "dump", path)
	if err != nil {
		t.Fatalf("dump error = %v", err)
	}
	for _, want := range []string{
		"*2\r\n$6\r\nSELECT\r\n$1\r\n0\r\n",
		"*3\r\n$3\r\nSET\r\n$8\r\ngreeting\r\n$5\r\nhello\r\n",
		"*3\r\n$3\r\nSET\r\n$7\r\ncounter\r\n$2\r\n42\r\n",
		"*2\r\n$6\r\nSELECT\r\n$1\r\n2\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output missing %q", want)
		}
	}
}

func TestDump_OutFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSnapshot(t, dir)
	dest := filepath.Join(dir, "restore.aof")

	out, _, err := runApp(t, "-o", "json", "dump", "--out", dest, path)
	if err != nil {
		t.Fatalf("dump error = %v", err)
	}
	var stats struct {
		Keys  int   `json:"keys"`
		Bytes int64 `json:"bytes"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	st, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Keys != 3 || stats.Bytes != st.Size() {
		t.Errorf("stats = %+v, file size %d", stats, st.Size())
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir)
	writeSnapshot(t, dir)

	out, _, err := runApp(t, "-o", "json", "list", dir)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	var infos []snapshot.Info
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(infos) != 2 || infos[0].ID >= infos[1].ID {
		t.Errorf("infos = %+v", infos)
	}

	out, _, err = runApp(t, "-o", "json", "list", t.TempDir())
	if err != nil || strings.TrimSpace(out) != "[]" {
		t.Errorf("empty dir: out %q err %v", out, err)
	}
}

// memStore is an in-memory archive.ObjectStore.
type memStore struct {
	objects map[string][]byte
}

func (s *memStore) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	s.objects[object] = data
	return minio.UploadInfo{Size: size}, nil
}

func (s *memStore) FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error {
	data, ok := s.objects[object]
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(filePath, data, 0600)
}

func (s *memStore) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func (s *memStore) RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error {
	delete(s.objects, object)
	return nil
}

func TestArchive_ListAndFetch(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"node-1/dump-01A.rdb": []byte("first"),
		"node-1/dump-01B.rdb": []byte("second"),
		"node-1/notes.txt":    []byte("ignored"),
	}}
	orig := openArchive
	openArchive = func(cfg archive.Config) (*archive.Uploader, error) {
		return archive.NewWithStore(store, cfg)
	}
	t.Cleanup(func() { openArchive = orig })

	out, _, err := runApp(t, "-o", "json", "archive", "--bucket", "snapshots", "--prefix", "node-1", "list")
	if err != nil {
		t.Fatalf("archive list error = %v", err)
	}
	var rows []archivedSnapshot
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0].Name != "dump-01A.rdb" || rows[1].Name != "dump-01B.rdb" {
		t.Errorf("rows = %+v", rows)
	}

	dest := filepath.Join(t.TempDir(), "fetched.rdb")
	if _, _, err := runApp(t, "archive", "--bucket", "snapshots", "--prefix", "node-1", "fetch", "dump-01B.rdb", dest); err != nil {
		t.Fatalf("archive fetch error = %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "second" {
		t.Errorf("fetched %q", data)
	}

	_, _, err = runApp(t, "archive", "--bucket", "snapshots", "fetch", "missing.rdb", dest)
	if exitCode(err) != 1 {
		t.Errorf("missing object: err = %v, want exit 1", err)
	}
}
