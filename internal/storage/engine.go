package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/memkv/internal/bio"
	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/metric"
)

// Default configuration values.
const (
	DefaultSnapshotDir    = "snapshots"
	DefaultCronInterval   = 100 * time.Millisecond
	DefaultRehashBudget   = time.Millisecond
	DefaultExpireSamples  = 20
	DefaultSaveRetryDelay = 5 * time.Second
)

// Archiver copies finished snapshots off the host.
type Archiver interface {
	Submit(file string) error
	Close(ctx context.Context) error
}

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// Databases is the number of logical databases.
	Databases int

	Snapshot snapshot.Config

	// SavePoints trigger automatic saves. None disables them.
	SavePoints []SavePoint

	// SaveOnClose writes a final snapshot when the engine closes.
	SaveOnClose bool

	// CronInterval is the period of the maintenance cron.
	CronInterval time.Duration

	// ActiveRehashing spends RehashBudget per cron run on tables that are
	// being rehashed.
	ActiveRehashing bool
	RehashBudget    time.Duration

	// ExpireSamples is the number of expiry entries sampled per database
	// and cron run. Zero disables active expiry.
	ExpireSamples int

	// SaveRetryDelay is the minimum wait after a failed save before a save
	// point triggers again.
	SaveRetryDelay time.Duration

	// Bio closes snapshot files in the background. The engine creates
	// and owns one when nil.
	Bio *bio.Queue

	// Archive, when set, receives every snapshot saved.
	Archive Archiver

	Metrics *metric.Registry

	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		Databases:       keyspace.DefaultDatabases,
		Snapshot:        snapshot.DefaultConfig(filepath.Join(dataDir, DefaultSnapshotDir)),
		SavePoints:      DefaultSavePoints,
		SaveOnClose:     true,
		CronInterval:    DefaultCronInterval,
		ActiveRehashing: true,
		RehashBudget:    DefaultRehashBudget,
		ExpireSamples:   DefaultExpireSamples,
		SaveRetryDelay:  DefaultSaveRetryDelay,
		Logger:          slog.Default(),
	}
}

type command struct {
	fn   func(ks *keyspace.Keyspace) error
	done chan error
}

// Engine owns a keyspace and persists it through the snapshot manager.
type Engine struct {
	cfg Config

	ks       *keyspace.Keyspace
	snapshot *snapshot.Manager
	bio      *bio.Queue
	ownsBio  bool
	metrics  *metric.Registry
	logger   *slog.Logger

	// Touched only on the engine goroutine.
	repl *rdb.SaveInfo

	mu          sync.Mutex
	lastSave    time.Time
	lastAttempt time.Time
	lastSaveErr error

	cmdCh     chan command
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates the engine and starts its goroutine. Call Recover before
// serving to load the latest snapshot.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CronInterval <= 0 {
		cfg.CronInterval = DefaultCronInterval
	}
	if cfg.RehashBudget <= 0 {
		cfg.RehashBudget = DefaultRehashBudget
	}
	if cfg.SaveRetryDelay <= 0 {
		cfg.SaveRetryDelay = DefaultSaveRetryDelay
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.DataDir, DefaultSnapshotDir)
	}
	if cfg.Snapshot.RDB.Now == nil {
		cfg.Snapshot.RDB.Now = time.Now
	}
	if cfg.Snapshot.Logger == nil {
		cfg.Snapshot.Logger = cfg.Logger
	}

	q, ownsBio := cfg.Bio, false
	if q == nil {
		q, ownsBio = bio.New(bio.Config{Logger: cfg.Logger}), true
	}
	cfg.Snapshot.Bio = q

	snapMgr, err := snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		if ownsBio {
			_ = q.Close(context.Background())
		}
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	replID, err := newReplID()
	if err != nil {
		return nil, domain.ErrInternal.Wrap(err)
	}
	repl := rdb.NewSaveInfo()
	repl.ReplID = replID

	if err := cfg.Metrics.Register(metric.NewBioCollector(q)); err != nil {
		cfg.Logger.Warn("register bio metrics failed", "error", err)
	}

	e := &Engine{
		cfg:      cfg,
		ks:       keyspace.New(cfg.Databases),
		snapshot: snapMgr,
		bio:      q,
		ownsBio:  ownsBio,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "storage"),
		repl:     repl,
		lastSave: cfg.Snapshot.RDB.Now(),
		cmdCh:    make(chan command),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go e.backgroundLoop()
	return e, nil
}

// newReplID returns 40 hex characters: a ULID followed by four random
// bytes, so IDs sort by creation time.
func newReplID() (string, error) {
	id := ulid.Make()
	var tail [4]byte
	if _, err := rand.Read(tail[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]) + hex.EncodeToString(tail[:]), nil
}

func (e *Engine) now() time.Time { return e.cfg.Snapshot.RDB.Now() }

// Do runs fn on the engine goroutine with exclusive access to the
// keyspace and returns its error. Once fn has been handed over it runs to
// completion even if ctx ends first.
func (e *Engine) Do(ctx context.Context, fn func(ks *keyspace.Keyspace) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case e.cmdCh <- cmd:
	case <-e.doneCh:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover removes leftovers of interrupted saves and loads the newest
// snapshot. A corrupt snapshot is an error and the keyspace is left empty;
// only Snapshot.FallbackOnCorrupt lets recovery settle for an older file.
func (e *Engine) Recover(ctx context.Context) error {
	return e.Do(ctx, func(ks *keyspace.Keyspace) error {
		startTime := time.Now()
		e.logger.Info("storage recovery started")

		if _, err := e.snapshot.RemoveTempFiles(); err != nil {
			e.logger.Warn("remove temp files failed", "error", err)
		}

		info := rdb.NewSaveInfo()
		si, report, err := e.snapshot.Load(ks, info)
		if err != nil {
			if errors.Is(err, snapshot.ErrNoSnapshots) {
				e.logger.Info("no snapshot found, starting with empty keyspace")
				return nil
			}
			return fmt.Errorf("storage: load snapshot: %w", err)
		}
		ks.ResetDirty(ks.Dirty())

		if info.ReplID != "" {
			e.repl.ReplID = info.ReplID
			e.repl.ReplOffset = info.ReplOffset
		}
		e.metrics.ObserveLoad(report.Loaded, report.ExpiredSkipped)
		e.updateMetrics()
		e.logger.Info("recovery completed",
			"snapshot", si.ID,
			"keys", ks.Keys(),
			"expired_skipped", report.ExpiredSkipped,
			"elapsed", time.Since(startTime))
		return nil
	})
}

// Save writes a snapshot now.
func (e *Engine) Save(ctx context.Context) (*snapshot.Info, error) {
	var info *snapshot.Info
	err := e.Do(ctx, func(*keyspace.Keyspace) error {
		var err error
		info, err = e.save()
		return err
	})
	return info, err
}

func (e *Engine) save() (*snapshot.Info, error) {
	m := e.ks.BeginMaintenance()
	defer m.Release()

	dirty := e.ks.Dirty()
	now := e.now()
	info, err := e.snapshot.Save(e.ks, e.replInfo())

	e.mu.Lock()
	e.lastAttempt = now
	e.lastSaveErr = err
	if err == nil {
		e.lastSave = now
	}
	e.mu.Unlock()

	if err != nil {
		e.metrics.ObserveSaveFailure()
		e.logger.Error("save failed", "error", err)
		return nil, err
	}
	e.ks.ResetDirty(dirty)
	e.metrics.ObserveSave(now, info.Size, info.Duration)

	if e.cfg.Archive != nil {
		if err := e.cfg.Archive.Submit(info.Path); err != nil {
			e.logger.Warn("archive submit failed", "error", err)
		}
	}
	return info, nil
}

func (e *Engine) replInfo() *rdb.SaveInfo {
	info := *e.repl
	return &info
}

// SaveToReplicas streams a snapshot to every destination. See
// snapshot.Manager.SaveToReplicas for the result.
func (e *Engine) SaveToReplicas(ctx context.Context, dsts ...io.Writer) ([]error, error) {
	var errs []error
	err := e.Do(ctx, func(ks *keyspace.Keyspace) error {
		m := ks.BeginMaintenance()
		defer m.Release()

		var err error
		errs, err = e.snapshot.SaveToReplicas(ks, e.replInfo(), dsts...)
		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
			}
		}
		e.metrics.ObserveReplicaFailures(failed)
		if err != nil {
			return domain.ErrReplicaTransfer.Wrap(err)
		}
		return nil
	})
	return errs, err
}

// ReplaceFromReplica stores a snapshot streamed by a primary and replaces
// the keyspace with its contents. The transfer itself runs on the calling
// goroutine.
func (e *Engine) ReplaceFromReplica(ctx context.Context, r io.Reader) error {
	si, err := e.snapshot.Receive(r)
	if err != nil {
		return domain.ErrReplicaTransfer.Wrap(err)
	}
	return e.Do(ctx, func(ks *keyspace.Keyspace) error {
		ks.Flush(nil)
		info := rdb.NewSaveInfo()
		_, report, err := e.snapshot.LoadFile(si.Path, ks, info)
		if err != nil {
			ks.Flush(nil)
			return err
		}
		ks.ResetDirty(ks.Dirty())
		if info.ReplID != "" {
			e.repl.ReplID = info.ReplID
			e.repl.ReplOffset = info.ReplOffset
		}
		e.metrics.ObserveLoad(report.Loaded, report.ExpiredSkipped)
		return nil
	})
}

// LastSave returns the time of the last successful save, or the start
// time when there was none.
func (e *Engine) LastSave() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSave
}

// LastSaveStatus returns the error of the last save attempt.
func (e *Engine) LastSaveStatus() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaveErr
}

// Dirty returns the number of changes since the last successful save.
func (e *Engine) Dirty() int64 { return e.ks.Dirty() }

// ReplID returns the replication ID written with snapshots.
func (e *Engine) ReplID(ctx context.Context) (string, error) {
	var id string
	err := e.Do(ctx, func(*keyspace.Keyspace) error {
		id = e.repl.ReplID
		return nil
	})
	return id, err
}

// Snapshots returns the manager that owns the snapshot files.
func (e *Engine) Snapshots() *snapshot.Manager { return e.snapshot }

// cron runs the periodic maintenance tasks.
func (e *Engine) cron() {
	now := e.now()
	if e.cfg.ActiveRehashing {
		e.ks.RehashFor(e.cfg.RehashBudget)
	}
	if e.cfg.ExpireSamples > 0 {
		for i := 0; i < e.ks.Len(); i++ {
			e.ks.DB(i).ExpireSampled(e.cfg.ExpireSamples, now)
		}
	}
	e.ks.TryShrink()

	if sp, ok := e.savePointDue(now); ok {
		e.logger.Info("save point reached, saving",
			"changes", e.ks.Dirty(),
			"seconds", int64(sp.Interval/time.Second))
		_, _ = e.save()
	}
	e.updateMetrics()
}

func (e *Engine) savePointDue(now time.Time) (SavePoint, bool) {
	e.mu.Lock()
	lastSave, lastAttempt, lastErr := e.lastSave, e.lastAttempt, e.lastSaveErr
	e.mu.Unlock()

	if lastErr != nil && now.Sub(lastAttempt) < e.cfg.SaveRetryDelay {
		return SavePoint{}, false
	}
	dirty := e.ks.Dirty()
	for _, sp := range e.cfg.SavePoints {
		if dirty >= sp.Changes && now.Sub(lastSave) > sp.Interval {
			return sp, true
		}
	}
	return SavePoint{}, false
}

func (e *Engine) updateMetrics() {
	if e.metrics == nil {
		return
	}
	for i := 0; i < e.ks.Len(); i++ {
		db := e.ks.DB(i)
		e.metrics.SetDB(i, db.Len(), db.Expires.Len())
	}
	e.metrics.SetRehashing(e.ks.Rehashing())
	e.metrics.SetDirty(e.ks.Dirty())
}

// backgroundLoop owns the keyspace: it runs submitted commands and the
// cron.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.CronInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-e.cmdCh:
			cmd.done <- cmd.fn(e.ks)

		case <-ticker.C:
			e.cron()

		case <-e.stopCh:
			if e.cfg.SaveOnClose {
				e.logger.Info("saving the final snapshot before exiting")
				if _, err := e.save(); err != nil {
					e.logger.Error("final save failed", "error", err)
				}
			}
			return
		}
	}
}

// Close stops the engine, writing a final snapshot when SaveOnClose is
// set, and waits for pending archive uploads and background jobs.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")
		close(e.stopCh)

		select {
		case <-e.doneCh:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return
		}

		if e.cfg.Archive != nil {
			if err := e.cfg.Archive.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close archive: %w", err))
			}
		}
		if e.ownsBio {
			if err := e.bio.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close bio: %w", err))
			}
		}

		e.mu.Lock()
		if e.lastSaveErr != nil && e.cfg.SaveOnClose {
			errs = append(errs, e.lastSaveErr)
		}
		e.mu.Unlock()
		e.logger.Info("storage engine shutdown complete")
	})
	return errors.Join(errs...)
}
