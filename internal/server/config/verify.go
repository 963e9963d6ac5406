package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// Verify validates the configuration and creates the data directory. All
// problems found are returned together.
func Verify(cfg *ServerConfig) error {
	errs := []error{
		verifyStorage(&cfg.Storage),
		verifyKeyspace(&cfg.Keyspace),
		verifyEncoding(&cfg.Encoding),
		verifyArchive(&cfg.Archive),
		verifyLog(&cfg.Log),
	}
	if _, err := object.ParseEvictionPolicy(cfg.Eviction.MaxmemoryPolicy); err != nil {
		errs = append(errs, fmt.Errorf("eviction.maxmemory_policy: %w", err))
	}
	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
		}
	}
	if cfg.Metrics.RateLimit < 0 {
		errs = append(errs, errors.New("metrics.rate_limit must not be negative"))
	}
	if (cfg.Metrics.TLSCertFile == "") != (cfg.Metrics.TLSKeyFile == "") {
		errs = append(errs, errors.New("metrics.tls_cert_file and metrics.tls_key_file must be set together"))
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	var errs []error
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		errs = append(errs, fmt.Errorf("cannot create data directory: %w", err))
	}
	if cfg.RetentionCount < 0 {
		errs = append(errs, errors.New("storage.retention_count must not be negative"))
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retention_days must not be negative"))
	}
	if _, err := storage.ParseSavePoints(cfg.Save); err != nil {
		errs = append(errs, fmt.Errorf("storage.save: %w", err))
	}
	if _, err := rdb.CodecByName(cfg.Codec); err != nil {
		errs = append(errs, fmt.Errorf("storage.codec: %w", err))
	}
	if cfg.AutoSyncBytes < 0 {
		errs = append(errs, errors.New("storage.autosync_bytes must not be negative"))
	}
	if cfg.MaxProcessingChunk < 0 {
		errs = append(errs, errors.New("storage.max_processing_chunk must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyKeyspace(cfg *KeyspaceSection) error {
	var errs []error
	if cfg.Databases < 1 {
		errs = append(errs, errors.New("keyspace.databases must be at least 1"))
	}
	if cfg.ExpireSamples < 0 {
		errs = append(errs, errors.New("keyspace.expire_samples must not be negative"))
	}
	if cfg.CronInterval < 0 {
		errs = append(errs, errors.New("keyspace.cron_interval must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyEncoding(t *object.Thresholds) error {
	var errs []error
	for name, v := range map[string]int{
		"set_max_intset_entries":   t.SetMaxIntsetEntries,
		"zset_max_ziplist_entries": t.ZSetMaxZiplistEntries,
		"zset_max_ziplist_value":   t.ZSetMaxZiplistValue,
		"hash_max_ziplist_entries": t.HashMaxZiplistEntries,
		"hash_max_ziplist_value":   t.HashMaxZiplistValue,
		"list_compress_depth":      t.ListCompressDepth,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("encoding.%s must not be negative", name))
		}
	}
	if t.ListMaxZiplistSize == 0 || t.ListMaxZiplistSize < -5 {
		errs = append(errs, errors.New("encoding.list_max_ziplist_size must be positive or between -5 and -1"))
	}
	return errors.Join(errs...)
}

func verifyArchive(cfg *ArchiveSection) error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("archive.endpoint is required when the archive is enabled"))
	}
	if cfg.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required when the archive is enabled"))
	}
	if cfg.RateBytesPerSec < 0 {
		errs = append(errs, errors.New("archive.rate_bytes_per_sec must not be negative"))
	}
	if cfg.Keep < 0 {
		errs = append(errs, errors.New("archive.keep must not be negative"))
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			errs = append(errs, fmt.Errorf("archive.ca_file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", cfg.Format))
	}
	return errors.Join(errs...)
}
