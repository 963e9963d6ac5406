package bio

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies a job queue.
type Kind int

const (
	KindCloseFile Kind = iota
	KindFsync
	KindLazyFree

	numKinds
)

var kindNames = [numKinds]string{"close_file", "fsync", "lazy_free"}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds lists every job kind.
func Kinds() []Kind {
	return []Kind{KindCloseFile, KindFsync, KindLazyFree}
}

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("bio: queue closed")

type job struct {
	created time.Time
	file    *os.File
	free    func()
}

// worker owns the queue of one kind.
type worker struct {
	kind Kind

	mu      sync.Mutex
	newJob  *sync.Cond
	step    *sync.Cond
	jobs    []job
	pending int
	closed  bool

	done     chan struct{}
	failures atomic.Int64
}

// Config configures a Queue.
type Config struct {
	Logger *slog.Logger

	// SlowJob is the age after which a finished job is logged as slow.
	// Zero disables the warning.
	SlowJob time.Duration
}

// Queue is a set of background workers, one per job kind.
type Queue struct {
	cfg     Config
	logger  *slog.Logger
	workers [numKinds]*worker
}

// New starts one worker per kind.
func New(cfg Config) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	q := &Queue{cfg: cfg, logger: cfg.Logger.With("component", "bio")}
	for k := Kind(0); k < numKinds; k++ {
		w := &worker{kind: k, done: make(chan struct{})}
		w.newJob = sync.NewCond(&w.mu)
		w.step = sync.NewCond(&w.mu)
		q.workers[k] = w
		go q.run(w)
	}
	return q
}

func (q *Queue) submit(k Kind, j job) error {
	w := q.workers[k]
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	j.created = time.Now()
	w.jobs = append(w.jobs, j)
	w.pending++
	w.newJob.Signal()
	return nil
}

// CloseFile closes f in the background. Closing the last reference to an
// unlinked file can block on the filesystem releasing its blocks.
func (q *Queue) CloseFile(f *os.File) error {
	return q.submit(KindCloseFile, job{file: f})
}

// Fsync commits the data of f to stable storage in the background.
func (q *Queue) Fsync(f *os.File) error {
	return q.submit(KindFsync, job{file: f})
}

// LazyFree runs free in the background. It is used to drop references to
// large values so their release does not stall the caller.
func (q *Queue) LazyFree(free func()) error {
	return q.submit(KindLazyFree, job{free: free})
}

// Pending returns the number of jobs of kind k submitted and not yet
// finished.
func (q *Queue) Pending(k Kind) int {
	w := q.workers[k]
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Failures returns how many jobs of kind k failed.
func (q *Queue) Failures(k Kind) int64 {
	return q.workers[k].failures.Load()
}

// WaitStep blocks until a job of kind k finishes, unless none is pending,
// and returns the number still pending.
func (q *Queue) WaitStep(k Kind) int {
	w := q.workers[k]
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != 0 {
		w.step.Wait()
	}
	return w.pending
}

// Drain waits until no job of kind k is pending or ctx is done.
func (q *Queue) Drain(ctx context.Context, k Kind) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.Pending(k) == 0 {
			return nil
		}
		done := make(chan int, 1)
		go func() { done <- q.WaitStep(k) }()
		select {
		case n := <-done:
			if n == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting jobs, lets the workers finish what is queued and
// waits for them or for ctx.
func (q *Queue) Close(ctx context.Context) error {
	for _, w := range q.workers {
		w.mu.Lock()
		w.closed = true
		w.newJob.Broadcast()
		w.mu.Unlock()
	}
	for _, w := range q.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (q *Queue) run(w *worker) {
	defer close(w.done)
	w.mu.Lock()
	for {
		if len(w.jobs) == 0 {
			if w.closed {
				w.mu.Unlock()
				return
			}
			w.newJob.Wait()
			continue
		}
		j := w.jobs[0]
		w.mu.Unlock()

		if err := q.process(w.kind, j); err != nil {
			w.failures.Add(1)
			q.logger.Error("background job failed", "kind", w.kind.String(), "error", err)
		}
		if q.cfg.SlowJob > 0 {
			if age := time.Since(j.created); age > q.cfg.SlowJob {
				q.logger.Warn("slow background job", "kind", w.kind.String(), "age", age)
			}
		}

		w.mu.Lock()
		w.jobs[0] = job{}
		w.jobs = w.jobs[1:]
		w.pending--
		w.step.Broadcast()
	}
}

func (q *Queue) process(k Kind, j job) error {
	switch k {
	case KindCloseFile:
		return j.file.Close()
	case KindFsync:
		return datasync(j.file)
	case KindLazyFree:
		j.free()
		return nil
	}
	return nil
}
