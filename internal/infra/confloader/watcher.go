package confloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor produces for one
// save.
const DefaultDebounce = 250 * time.Millisecond

// FileWatcher reports changes to a single configuration file.
type FileWatcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *FileWatcher) { w.logger = l }
}

// WithWatcherDebounce sets the quiet period before a change is reported.
func WithWatcherDebounce(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounce = d }
}

// NewFileWatcher watches the directory holding path. Watching the
// directory keeps the watch alive when an editor replaces the file by
// renaming a new one over it.
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w := &FileWatcher{path: abs, fsw: fsw, debounce: DefaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run calls onChange once per settled change to the file until ctx is
// done. onChange runs on the Run goroutine. Run closes the watcher before
// returning and yields nil when ctx ends it.
func (w *FileWatcher) Run(ctx context.Context, onChange func()) error {
	defer w.fsw.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("confloader: watcher closed")
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("confloader: watcher closed")
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-timer.C:
			w.logger.Debug("config file changed", "path", w.path)
			onChange()
		}
	}
}
