package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout applies when NewHandler is given no timeout.
const DefaultTimeout = 30 * time.Second

// Hook is run once when the process stops. Hooks share one deadline.
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// Handler waits for a termination signal and runs the registered hooks in
// reverse order of registration. SIGHUP runs the reload callbacks instead.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []Hook
	reloads []func()

	signals chan os.Signal
	done    chan struct{}
	once    sync.Once
}

// NewHandler creates a handler whose hooks get timeout to finish.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named shutdown hook.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, Hook{Name: name, Fn: fn})
}

// OnReload registers a callback for SIGHUP.
func (h *Handler) OnReload(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads = append(h.reloads, fn)
}

// Wait blocks until SIGINT, SIGTERM or ctx cancellation, then runs the
// hooks and returns their joined errors.
func (h *Handler) Wait(ctx context.Context) error {
	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(h.signals)

	for {
		select {
		case sig := <-h.signals:
			if sig == syscall.SIGHUP {
				h.reload()
				continue
			}
			h.logger.Info("shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			h.logger.Info("shutdown requested", "reason", ctx.Err())
		}
		return h.Shutdown()
	}
}

// Shutdown runs the hooks once. Later calls return nil.
func (h *Handler) Shutdown() error {
	var err error
	h.once.Do(func() {
		err = h.run()
		close(h.done)
	})
	return err
}

func (h *Handler) run() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		start := time.Now()
		if err := hooks[i].Fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hooks[i].Name, "error", err)
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hooks[i].Name, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

func (h *Handler) reload() {
	h.mu.Lock()
	reloads := make([]func(), len(h.reloads))
	copy(reloads, h.reloads)
	h.mu.Unlock()

	h.logger.Info("reload signal received")
	for _, fn := range reloads {
		fn()
	}
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
