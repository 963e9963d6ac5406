package config

import (
	"time"

	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
)

// Default configuration values.
const (
	DefaultDataDir = "/var/lib/memkv"

	DefaultCodec              = rdb.CodecLZF
	DefaultMaxProcessingChunk = rdb.DefaultProgressInterval
	DefaultMaxmemoryPolicy    = "noeviction"

	DefaultArchiveTimeout = 5 * time.Minute
	DefaultArchiveKeep    = 10

	DefaultShutdownTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Storage: StorageSection{
			Dir:                DefaultDataDir,
			Prefix:             snapshot.DefaultPrefix,
			RetentionCount:     snapshot.DefaultRetentionCount,
			RetentionDays:      snapshot.DefaultRetentionDays,
			Save:               storage.FormatSavePoints(storage.DefaultSavePoints),
			SaveOnClose:        true,
			Compression:        true,
			Codec:              DefaultCodec,
			Checksum:           true,
			MaxProcessingChunk: DefaultMaxProcessingChunk,
		},
		Keyspace: KeyspaceSection{
			Databases:       keyspace.DefaultDatabases,
			ActiveRehashing: true,
			ExpireSamples:   storage.DefaultExpireSamples,
			CronInterval:    storage.DefaultCronInterval,
		},
		Encoding: object.DefaultThresholds(),
		Eviction: EvictionSection{
			MaxmemoryPolicy: DefaultMaxmemoryPolicy,
		},
		Archive: ArchiveSection{
			Keep:    DefaultArchiveKeep,
			Timeout: DefaultArchiveTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}
