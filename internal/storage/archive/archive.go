package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/infra/tlsroots"
)

const (
	DefaultTimeout = 10 * time.Minute

	// maxBurst bounds a single limiter reservation so the configured rate
	// is spread over the upload instead of spent up front.
	maxBurst = 1 << 20
)

// Config configures the uploader.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool

	// CAFile adds a PEM bundle to the trusted roots of the client.
	CAFile string

	// RateBytesPerSec limits upload bandwidth. Zero means unlimited.
	RateBytesPerSec int64

	// Keep is the number of remote snapshots retained. Zero keeps all.
	Keep int

	// Timeout bounds a single upload.
	Timeout time.Duration

	Logger *slog.Logger
}

// ObjectStore is the part of the minio client the uploader uses.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// Uploader copies snapshot files to a bucket.
type Uploader struct {
	cfg     Config
	store   ObjectStore
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	pending string
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  bool

	uploaded int64
	failed   int64
}

// New connects to cfg.Endpoint.
func New(cfg Config) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("archive endpoint is required")
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	}
	if cfg.CAFile != "" {
		roots, err := tlsroots.LoadCAFile(cfg.CAFile)
		if err != nil {
			return nil, domain.ErrArchive.Wrap(err)
		}
		opts.Transport = roots.Transport()
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, domain.ErrArchive.Wrap(fmt.Errorf("archive: create client: %w", err))
	}
	return NewWithStore(client, cfg)
}

// NewWithStore returns an uploader over store and starts its background
// goroutine.
func NewWithStore(store ObjectStore, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("archive bucket is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	u := &Uploader{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger.With("component", "archive", "bucket", cfg.Bucket),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.RateBytesPerSec > 0 {
		burst := min(int(cfg.RateBytesPerSec), maxBurst)
		u.limiter = rate.NewLimiter(rate.Limit(cfg.RateBytesPerSec), burst)
	}
	go u.run()
	return u, nil
}

func (u *Uploader) objectName(file string) string {
	return path.Join(u.cfg.Prefix, filepath.Base(file))
}

// Submit queues the snapshot at file for upload, replacing any snapshot
// still waiting.
func (u *Uploader) Submit(file string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return domain.ErrClosed
	}
	if u.pending != "" {
		u.logger.Debug("superseded pending upload", "file", u.pending)
	}
	u.pending = file
	select {
	case u.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns the number of successful and failed uploads.
func (u *Uploader) Stats() (uploaded, failed int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploaded, u.failed
}

func (u *Uploader) run() {
	defer close(u.doneCh)
	for {
		select {
		case <-u.wake:
		case <-u.stopCh:
			// Finish what was submitted before Close.
			u.flushPending()
			return
		}
		u.flushPending()
	}
}

func (u *Uploader) flushPending() {
	u.mu.Lock()
	file := u.pending
	u.pending = ""
	u.mu.Unlock()
	if file == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.Timeout)
	defer cancel()
	err := u.Upload(ctx, file)

	u.mu.Lock()
	if err != nil {
		u.failed++
	} else {
		u.uploaded++
	}
	u.mu.Unlock()

	if err != nil {
		u.logger.Error("snapshot upload failed", "file", file, "error", err)
		return
	}
	if err := u.Prune(ctx); err != nil {
		u.logger.Warn("remote snapshot cleanup failed", "error", err)
	}
}

// Upload copies the snapshot at file to the bucket.
func (u *Uploader) Upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return domain.ErrArchive.Wrap(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return domain.ErrArchive.Wrap(err)
	}

	start := time.Now()
	var r io.Reader = f
	if u.limiter != nil {
		r = &limitedReader{ctx: ctx, r: f, limiter: u.limiter}
	}
	name := u.objectName(file)
	info, err := u.store.PutObject(ctx, u.cfg.Bucket, name, r, fi.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return domain.ErrArchive.Wrap(fmt.Errorf("archive: put %s: %w", name, err))
	}
	u.logger.Info("snapshot uploaded",
		"object", name,
		"size_bytes", info.Size,
		"elapsed", time.Since(start))
	return nil
}

// List returns the archived snapshot names, oldest first.
func (u *Uploader) List(ctx context.Context) ([]string, error) {
	prefix := u.cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	for obj := range u.store.ListObjects(ctx, u.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, domain.ErrArchive.Wrap(obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".rdb") {
			continue
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// Prune removes the oldest remote snapshots beyond Keep.
func (u *Uploader) Prune(ctx context.Context) error {
	if u.cfg.Keep <= 0 {
		return nil
	}
	names, err := u.List(ctx)
	if err != nil {
		return err
	}
	if len(names) <= u.cfg.Keep {
		return nil
	}
	var errs []error
	for _, name := range names[:len(names)-u.cfg.Keep] {
		if err := u.store.RemoveObject(ctx, u.cfg.Bucket, u.objectName(name), minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Download fetches the archived snapshot name into dst.
func (u *Uploader) Download(ctx context.Context, name, dst string) error {
	if err := u.store.FGetObject(ctx, u.cfg.Bucket, u.objectName(name), dst, minio.GetObjectOptions{}); err != nil {
		return domain.ErrArchive.Wrap(fmt.Errorf("archive: get %s: %w", name, err))
	}
	return nil
}

// Close uploads whatever is still pending and stops the background
// goroutine, or gives up when ctx ends first.
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	close(u.stopCh)
	select {
	case <-u.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// limitedReader paces reads through a token bucket.
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if burst := l.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
