package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/infra/confloader"
	"github.com/yndnr/memkv/internal/infra/shutdown"
	"github.com/yndnr/memkv/internal/infra/tlsroots"
	"github.com/yndnr/memkv/internal/server/config"
	"github.com/yndnr/memkv/internal/server/httpserver"
	"github.com/yndnr/memkv/internal/storage"
	"github.com/yndnr/memkv/internal/storage/archive"
	"github.com/yndnr/memkv/internal/telemetry/logger"
	"github.com/yndnr/memkv/internal/telemetry/metric"
	"github.com/yndnr/memkv/pkg/dict"
)

func main() {
	app := &cli.App{
		Name:    "memkv-server",
		Usage:   "in-memory key-value engine with snapshot persistence",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to configuration file", EnvVars: []string{"MEMKV_CONFIG"}},
			&cli.StringFlag{Name: "data-dir", Usage: "Override storage.dir"},
			&cli.StringFlag{Name: "log-level", Usage: "Override log.level"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Override metrics.addr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	loader, cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting memkv-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", loader.FilePath(),
		"settings", config.Sanitize(cfg))

	initHashSeed(cfg.Keyspace.HashSeed)

	metrics := metric.NewRegistry()
	engine, err := initStorage(cfg, metrics, logger.Component(log, "storage"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Start the shutdown handler before recovery so a signal during a long
	// load still closes the engine.
	sh := shutdown.NewHandler(cfg.ShutdownTimeout, log)
	sh.OnShutdown("storage", engine.Close)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if err := engine.Recover(ctx); err != nil {
		_ = sh.Shutdown()
		return fmt.Errorf("storage recovery: %w", err)
	}

	if cfg.Metrics.Addr != "" {
		httpLog := logger.Component(log, "http")
		srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Engine:    engine,
			Metrics:   metrics.Handler(),
			Logger:    httpLog,
			RateLimit: cfg.Metrics.RateLimit,
			AccessLog: cfg.Metrics.AccessLog,
		}))
		serve := srv.ListenAndServe
		if cfg.Metrics.TLSCertFile != "" {
			kp, err := tlsroots.LoadKeyPair(cfg.Metrics.TLSCertFile, cfg.Metrics.TLSKeyFile, tlsroots.WithLogger(httpLog))
			if err != nil {
				_ = sh.Shutdown()
				return fmt.Errorf("load admin tls: %w", err)
			}
			go func() {
				if err := kp.Watch(ctx); err != nil {
					log.Warn("certificate watcher stopped", "error", err)
				}
			}()
			serve = func() error { return srv.ListenAndServeTLS(kp.ServerConfig()) }
		}
		go func() {
			log.Info("admin http listening", "addr", cfg.Metrics.Addr, "tls", cfg.Metrics.TLSCertFile != "")
			if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin http server failed", "error", err)
				cancel()
			}
		}()
		sh.OnShutdown("http", srv.Shutdown)
	}

	reload := func() { reloadLogLevel(loader, log) }
	sh.OnReload(reload)
	if path := loader.FilePath(); path != "" {
		w, err := confloader.NewFileWatcher(path, confloader.WithWatcherLogger(log))
		if err != nil {
			log.Warn("config watcher unavailable", "path", path, "error", err)
		} else {
			go func() {
				if err := w.Run(ctx, reload); err != nil {
					log.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	log.Info("server started", "databases", cfg.Keyspace.Databases, "dir", cfg.Storage.Dir)
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads defaults, the config file, MEMKV_ variables and flag
// overrides, then verifies the result.
func loadConfig(c *cli.Context) (*confloader.Loader, *config.ServerConfig, error) {
	loader := confloader.NewLoader(confloader.WithConfigFile(c.String("config")))

	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"data-dir":     "storage.dir",
		"log-level":    "log.level",
		"metrics-addr": "metrics.addr",
	} {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	loader.Override(overrides)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	lc := cfg.LoggerConfig()
	lc.Output = os.Stdout
	l, err := logger.New(lc)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l)
	return l, nil
}

// initHashSeed seeds key hashing. Zero picks a random seed per process.
func initHashSeed(seed uint32) {
	if seed == 0 {
		var b [4]byte
		if _, err := rand.Read(b[:]); err == nil {
			seed = binary.LittleEndian.Uint32(b[:])
		}
	}
	dict.SetHashSeed(seed)
}

func initStorage(cfg *config.ServerConfig, metrics *metric.Registry, log *slog.Logger) (*storage.Engine, error) {
	ec, err := cfg.EngineConfig(log)
	if err != nil {
		return nil, err
	}
	ec.Metrics = metrics

	if cfg.Archive.Enabled {
		u, err := archive.New(cfg.ArchiveConfig(logger.Component(log, "archive")))
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		ec.Archive = u
		log.Info("snapshot archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}
	return storage.New(ec)
}

// reloadLogLevel re-reads the configuration and applies its log level.
// Other settings need a restart.
func reloadLogLevel(loader *confloader.Loader, log *slog.Logger) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		log.Warn("config reload failed", "error", err)
		return
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		log.Warn("log level not changed", "error", err)
		return
	}
	log.Info("log level reloaded", "level", logger.Level())
}
