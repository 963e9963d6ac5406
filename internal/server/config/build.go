package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/yndnr/memkv/internal/infra/buildinfo"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage"
	"github.com/yndnr/memkv/internal/storage/archive"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// RDBConfig returns the codec settings. Call Verify first.
func (c *ServerConfig) RDBConfig(log *slog.Logger) (rdb.Config, error) {
	codec, err := rdb.CodecByName(c.Storage.Codec)
	if err != nil {
		return rdb.Config{}, err
	}
	policy, err := object.ParseEvictionPolicy(c.Eviction.MaxmemoryPolicy)
	if err != nil {
		return rdb.Config{}, err
	}

	cfg := rdb.DefaultConfig()
	cfg.Compression = c.Storage.Compression
	cfg.Codec = codec
	cfg.Checksum = c.Storage.Checksum
	cfg.Thresholds = c.Encoding
	cfg.Policy = policy
	cfg.Replica = c.Replication.Replica
	cfg.ServerVersion = buildinfo.ServerVersion()
	if c.Storage.MaxProcessingChunk > 0 {
		cfg.MaxChunk = c.Storage.MaxProcessingChunk
	}
	cfg.Logger = log
	return cfg, nil
}

// EngineConfig returns the storage engine settings.
func (c *ServerConfig) EngineConfig(log *slog.Logger) (storage.Config, error) {
	rdbCfg, err := c.RDBConfig(log)
	if err != nil {
		return storage.Config{}, err
	}
	points, err := storage.ParseSavePoints(c.Storage.Save)
	if err != nil {
		return storage.Config{}, fmt.Errorf("storage.save: %w", err)
	}

	cfg := storage.DefaultConfig(c.Storage.Dir)
	cfg.Databases = c.Keyspace.Databases
	cfg.Snapshot = snapshot.Config{
		Dir:            filepath.Join(c.Storage.Dir, storage.DefaultSnapshotDir),
		Prefix:         c.Storage.Prefix,
		RetentionCount: c.Storage.RetentionCount,
		RetentionDays:  c.Storage.RetentionDays,
		AutoSync:       c.Storage.AutoSyncBytes,
		RDB:            rdbCfg,
		Logger:         log,

		FallbackOnCorrupt: c.Storage.LoadFallback,
	}
	cfg.SavePoints = points
	cfg.SaveOnClose = c.Storage.SaveOnClose
	cfg.CronInterval = c.Keyspace.CronInterval
	cfg.ActiveRehashing = c.Keyspace.ActiveRehashing
	cfg.ExpireSamples = c.Keyspace.ExpireSamples
	cfg.Logger = log
	return cfg, nil
}

// ArchiveConfig returns the uploader settings.
func (c *ServerConfig) ArchiveConfig(log *slog.Logger) archive.Config {
	a := c.Archive
	return archive.Config{
		Endpoint:        a.Endpoint,
		Bucket:          a.Bucket,
		Prefix:          a.Prefix,
		AccessKey:       a.AccessKey,
		SecretKey:       a.SecretKey,
		Region:          a.Region,
		Secure:          a.Secure,
		CAFile:          a.CAFile,
		RateBytesPerSec: a.RateBytesPerSec,
		Keep:            a.Keep,
		Timeout:         a.Timeout,
		Logger:          log,
	}
}

// LoggerConfig returns the logger settings.
func (c *ServerConfig) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	return cfg
}
