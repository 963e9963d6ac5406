package tlsroots

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor or cert
// manager produces when replacing a key pair.
const DefaultDebounce = 500 * time.Millisecond

// KeyPair serves a certificate and reloads it when the files change. A
// failed reload keeps the previous certificate.
type KeyPair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate
}

// KeyPairOption configures a KeyPair.
type KeyPairOption func(*KeyPair)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) KeyPairOption {
	return func(k *KeyPair) { k.logger = logger }
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) KeyPairOption {
	return func(k *KeyPair) { k.debounce = d }
}

// LoadKeyPair loads certFile and keyFile.
func LoadKeyPair(certFile, keyFile string, opts ...KeyPairOption) (*KeyPair, error) {
	k := &KeyPair{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(k)
	}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Reload re-reads the key pair from disk.
func (k *KeyPair) Reload() error {
	cert, err := tls.LoadX509KeyPair(k.certFile, k.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	k.mu.Lock()
	k.cert = &cert
	k.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (k *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cert, nil
}

// ServerConfig returns a server TLS config backed by the key pair.
func (k *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: k.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Watch reloads the key pair on changes until ctx is done. The parent
// directories are watched so that atomic renames are seen.
func (k *KeyPair) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer w.Close()

	dirs := map[string]struct{}{
		filepath.Dir(k.certFile): {},
		filepath.Dir(k.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	names := map[string]struct{}{
		filepath.Base(k.certFile): {},
		filepath.Base(k.keyFile):  {},
	}
	timer := time.NewTimer(k.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ours := names[filepath.Base(ev.Name)]; !ours {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(k.debounce)
		case <-timer.C:
			if err := k.Reload(); err != nil {
				k.logger.Error("certificate reload failed", "cert_file", k.certFile, "error", err)
				continue
			}
			k.logger.Info("certificate reloaded", "cert_file", k.certFile)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			k.logger.Warn("certificate watcher error", "error", err)
		}
	}
}
