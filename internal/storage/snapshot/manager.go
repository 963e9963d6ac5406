package snapshot

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/memkv/internal/bio"
	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/pkg/rio"
)

const (
	DefaultPrefix         = "dump"
	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7

	fileExtension = ".rdb"
	tempPrefix    = "temp-"
)

var (
	ErrNoSnapshots = domain.ErrNoSnapshot
	ErrAllCorrupt  = errors.New("snapshot: no valid snapshot")
)

// Config configures the snapshot manager.
type Config struct {
	Dir    string
	Prefix string

	// RetentionCount keeps the newest n snapshots. RetentionDays keeps
	// every snapshot younger than n days. A snapshot survives when either
	// rule keeps it, and the newest one is always kept. Zero switches a
	// rule off; with both at zero nothing is pruned.
	RetentionCount int
	RetentionDays  int

	// FallbackOnCorrupt lets Load move on to older snapshots when the
	// newest one is corrupt. Off, a corrupt newest snapshot fails Load.
	FallbackOnCorrupt bool

	// AutoSync commits the file every AutoSync bytes while saving. Zero
	// syncs only once the snapshot is complete.
	AutoSync int64

	// RDB configures the encoder and decoder.
	RDB rdb.Config

	// Bio, when set, closes finished files in the background.
	Bio *bio.Queue

	Logger *slog.Logger
}

// DefaultConfig returns the stock configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		Prefix:         DefaultPrefix,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
		RDB:            rdb.DefaultConfig(),
	}
}

// Info describes a snapshot file.
type Info struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	CreatedAt time.Time     `json:"created_at"`
	Keys      int           `json:"keys,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Manager creates, lists, loads and prunes snapshot files.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewManager creates the snapshot directory if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RDB.Now == nil {
		cfg.RDB.Now = time.Now
	}
	if cfg.RDB.Logger == nil {
		cfg.RDB.Logger = cfg.Logger
	}
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "snapshot"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

func (m *Manager) newID(now time.Time) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ulid.New(ulid.Timestamp(now), m.entropy)
}

func (m *Manager) finalPath(id ulid.ULID) string {
	return filepath.Join(m.cfg.Dir, m.cfg.Prefix+"-"+id.String()+fileExtension)
}

func (m *Manager) tempPath(id ulid.ULID) string {
	return filepath.Join(m.cfg.Dir, tempPrefix+id.String()+fileExtension)
}

// Save writes a snapshot of ks and prunes old ones. info may be nil.
func (m *Manager) Save(ks *keyspace.Keyspace, info *rdb.SaveInfo) (*Info, error) {
	start := time.Now()
	now := m.cfg.RDB.Now()
	id, err := m.newID(now)
	if err != nil {
		return nil, domain.ErrInternal.Wrap(err)
	}

	size, err := m.writeFile(id, func(w *rio.File) error {
		w.SetAutoSync(m.cfg.AutoSync)
		return rdb.Save(rio.New(w), ks, info, m.cfg.RDB)
	})
	if err != nil {
		return nil, err
	}

	si := &Info{
		ID:        id.String(),
		Path:      m.finalPath(id),
		Size:      size,
		CreatedAt: ulid.Time(id.Time()),
		Keys:      ks.Keys(),
		Duration:  time.Since(start),
	}
	m.logger.Info("snapshot saved",
		"id", si.ID,
		"keys", si.Keys,
		"size_bytes", si.Size,
		"elapsed", si.Duration)

	if err := m.Prune(); err != nil {
		m.logger.Warn("snapshot cleanup failed", "error", err)
	}
	return si, nil
}

// writeFile runs fill against a temp file, commits it and renames it into
// place. It returns the size of the file.
func (m *Manager) writeFile(id ulid.ULID, fill func(w *rio.File) error) (int64, error) {
	tempPath := m.tempPath(id)
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, domain.ErrIO.Wrap(fmt.Errorf("snapshot: create temp file: %w", err))
	}
	fail := func(err error) (int64, error) {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}

	w, err := rio.NewFile(f)
	if err != nil {
		return fail(domain.ErrIO.Wrap(err))
	}
	if err := fill(w); err != nil {
		m.logger.Error("snapshot write failed", "path", tempPath, "error", err)
		return fail(err)
	}
	if err := w.Sync(); err != nil {
		return fail(domain.ErrIO.Wrap(fmt.Errorf("snapshot: sync: %w", err)))
	}
	size := w.Tell()

	if err := os.Rename(tempPath, m.finalPath(id)); err != nil {
		return fail(domain.ErrIO.Wrap(fmt.Errorf("snapshot: rename: %w", err)))
	}
	if err := syncDir(m.cfg.Dir); err != nil {
		m.logger.Warn("snapshot directory sync failed", "error", err)
	}
	m.closeFile(f)
	return size, nil
}

func (m *Manager) closeFile(f *os.File) {
	if m.cfg.Bio != nil {
		if err := m.cfg.Bio.CloseFile(f); err == nil {
			return
		}
	}
	if err := f.Close(); err != nil {
		m.logger.Warn("close snapshot file failed", "error", err)
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Load reads the newest snapshot into ks. A corrupt snapshot fails the
// load unless FallbackOnCorrupt is set, in which case ks is flushed and
// the next older snapshot is tried. info may be nil.
func (m *Manager) Load(ks *keyspace.Keyspace, info *rdb.SaveInfo) (*Info, *rdb.Report, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil, ErrNoSnapshots
	}

	var lastErr error
	for i := len(snapshots) - 1; i >= 0; i-- {
		si, report, err := m.LoadFile(snapshots[i].Path, ks, info)
		if err == nil {
			return si, report, nil
		}
		if !recoverable(err) {
			return nil, report, err
		}
		ks.Flush(nil)
		if !m.cfg.FallbackOnCorrupt {
			return nil, report, fmt.Errorf("snapshot %s: %w", filepath.Base(snapshots[i].Path), err)
		}
		m.logger.Warn("skipping corrupt snapshot", "path", snapshots[i].Path, "error", err)
		lastErr = err
	}
	return nil, nil, errors.Join(ErrAllCorrupt, lastErr)
}

// recoverable reports whether an older snapshot may succeed where this
// one failed.
func recoverable(err error) bool {
	return rdb.IsCorruption(err) ||
		errors.Is(err, domain.ErrChecksumMismatch) ||
		errors.Is(err, domain.ErrUnsupportedVersion)
}

// LoadFile reads the snapshot at path into ks.
func (m *Manager) LoadFile(path string, ks *keyspace.Keyspace, info *rdb.SaveInfo) (*Info, *rdb.Report, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, domain.ErrIO.Wrap(fmt.Errorf("snapshot: open: %w", err))
	}
	defer f.Close()

	r, err := rio.NewFile(f)
	if err != nil {
		return nil, nil, domain.ErrIO.Wrap(err)
	}
	dec := rdb.NewDecoder(rio.New(r), m.cfg.RDB)
	if err := dec.Load(ks, info); err != nil {
		return nil, dec.Report(), err
	}

	si := m.infoFromPath(path)
	si.Size = r.Tell()
	si.Keys = dec.Report().Loaded
	si.Duration = time.Since(start)
	m.logger.Info("snapshot loaded",
		"path", path,
		"keys", si.Keys,
		"expired_skipped", dec.Report().ExpiredSkipped,
		"elapsed", si.Duration)
	return si, dec.Report(), nil
}

// CheckFile verifies the snapshot at path, loading what it can into ks.
func (m *Manager) CheckFile(path string, ks *keyspace.Keyspace) (*rdb.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.ErrIO.Wrap(fmt.Errorf("snapshot: open: %w", err))
	}
	defer f.Close()
	r, err := rio.NewFile(f)
	if err != nil {
		return nil, domain.ErrIO.Wrap(err)
	}
	return rdb.NewDecoder(rio.New(r), m.cfg.RDB).Check(ks), nil
}

func (m *Manager) infoFromPath(path string) *Info {
	si := &Info{Path: path}
	name := strings.TrimSuffix(filepath.Base(path), fileExtension)
	if id, err := ulid.ParseStrict(strings.TrimPrefix(name, m.cfg.Prefix+"-")); err == nil {
		si.ID = id.String()
		si.CreatedAt = ulid.Time(id.Time())
	}
	return si
}

// List returns the snapshots in the directory, oldest first.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.ErrIO.Wrap(err)
	}

	prefix := m.cfg.Prefix + "-"
	var infos []*Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		si := m.infoFromPath(filepath.Join(m.cfg.Dir, name))
		if si.ID == "" {
			continue
		}
		if fi, err := e.Info(); err == nil {
			si.Size = fi.Size()
		}
		infos = append(infos, si)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Latest returns the newest snapshot.
func (m *Manager) Latest() (*Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNoSnapshots
	}
	return infos[len(infos)-1], nil
}

// Prune applies the retention policy.
func (m *Manager) Prune() error {
	infos, err := m.List()
	if err != nil {
		return err
	}
	if len(infos) <= 1 || (m.cfg.RetentionCount <= 0 && m.cfg.RetentionDays <= 0) {
		return nil
	}

	keep := make(map[string]struct{}, len(infos))
	if m.cfg.RetentionCount > 0 {
		start := max(len(infos)-m.cfg.RetentionCount, 0)
		for _, si := range infos[start:] {
			keep[si.Path] = struct{}{}
		}
	}
	if m.cfg.RetentionDays > 0 {
		cutoff := m.cfg.RDB.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, si := range infos {
			if si.CreatedAt.After(cutoff) {
				keep[si.Path] = struct{}{}
			}
		}
	}
	keep[infos[len(infos)-1].Path] = struct{}{}

	var errs []error
	for _, si := range infos {
		if _, ok := keep[si.Path]; ok {
			continue
		}
		if err := os.Remove(si.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Debug("snapshot pruned", "id", si.ID)
	}
	return errors.Join(errs...)
}

// RemoveTempFiles deletes temp files left behind by interrupted saves and
// transfers. It returns how many it removed.
func (m *Manager) RemoveTempFiles() (int, error) {
	matches, err := filepath.Glob(filepath.Join(m.cfg.Dir, tempPrefix+"*"+fileExtension))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, p := range matches {
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("removed stale temp files", "count", removed)
	}
	return removed, errors.Join(errs...)
}

// SaveToReplicas streams one snapshot of ks to every destination, framed
// by an EOF mark. A destination that fails is dropped and the rest carry
// on. The returned slice holds the error of each destination, nil for
// those that received the full snapshot; err is set when none did.
func (m *Manager) SaveToReplicas(ks *keyspace.Keyspace, info *rdb.SaveInfo, dsts ...io.Writer) ([]error, error) {
	if len(dsts) == 0 {
		return nil, nil
	}
	fo := rio.NewFanOut(dsts...)
	enc := rdb.NewEncoder(rio.New(fo), m.cfg.RDB)
	err := enc.SaveWithEOFMark(ks, info)
	errs := fo.Errors()

	failed := 0
	for i, e := range errs {
		if e != nil {
			failed++
			m.logger.Warn("replica transfer failed", "replica", i, "error", e)
		}
	}
	m.logger.Info("snapshot streamed to replicas", "replicas", len(dsts), "failed", failed)
	return errs, err
}

// Receive stores a snapshot streamed by SaveToReplicas as the newest local
// snapshot. The caller loads it with LoadFile.
func (m *Manager) Receive(r io.Reader) (*Info, error) {
	emr, err := rdb.NewEOFMarkReader(r)
	if err != nil {
		return nil, err
	}
	id, err := m.newID(m.cfg.RDB.Now())
	if err != nil {
		return nil, domain.ErrInternal.Wrap(err)
	}

	size, err := m.writeFile(id, func(w *rio.File) error {
		w.SetAutoSync(m.cfg.AutoSync)
		if _, err := io.Copy(fileWriter{w}, emr); err != nil {
			if errors.Is(err, rdb.ErrEOFMarkMismatch) {
				return err
			}
			return domain.ErrIO.Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	si := &Info{
		ID:        id.String(),
		Path:      m.finalPath(id),
		Size:      size,
		CreatedAt: ulid.Time(id.Time()),
	}
	m.logger.Info("snapshot received", "id", si.ID, "size_bytes", size)
	return si, nil
}

// fileWriter adapts a rio backend to io.Writer.
type fileWriter struct{ f *rio.File }

func (w fileWriter) Write(p []byte) (int, error) {
	if err := w.f.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
