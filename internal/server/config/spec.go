package config

import (
	"time"

	"github.com/yndnr/memkv/internal/object"
)

// ServerConfig is the root configuration for memkv-server.
type ServerConfig struct {
	Storage     StorageSection     `koanf:"storage"`
	Keyspace    KeyspaceSection    `koanf:"keyspace"`
	Encoding    object.Thresholds  `koanf:"encoding"`
	Eviction    EvictionSection    `koanf:"eviction"`
	Replication ReplicationSection `koanf:"replication"`
	Archive     ArchiveSection     `koanf:"archive"`
	Metrics     MetricsSection     `koanf:"metrics"`
	Log         LogSection         `koanf:"log"`

	// ShutdownTimeout bounds the final save and the other shutdown hooks.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection configures snapshot persistence.
type StorageSection struct {
	// Dir is the data directory. Snapshots live in its snapshots/ child.
	Dir    string `koanf:"dir"`
	Prefix string `koanf:"prefix"`

	// RetentionCount keeps the newest n snapshots and RetentionDays those
	// younger than n days; a snapshot kept by either rule survives. Zero
	// switches a rule off, and with both at zero no snapshot is deleted.
	RetentionCount int `koanf:"retention_count"`
	RetentionDays  int `koanf:"retention_days"`

	// LoadFallback starts from an older snapshot when the newest is
	// corrupt. Off by default: a corrupt snapshot stops the server.
	LoadFallback bool `koanf:"load_fallback"`

	// Save lists "<seconds> <changes>" pairs. An empty string disables
	// automatic saves.
	Save        string `koanf:"save"`
	SaveOnClose bool   `koanf:"save_on_close"`

	Compression bool   `koanf:"compression"`
	Codec       string `koanf:"codec"`
	Checksum    bool   `koanf:"checksum"`

	// AutoSyncBytes fsyncs the snapshot file every n bytes while writing.
	AutoSyncBytes      int64 `koanf:"autosync_bytes"`
	MaxProcessingChunk int   `koanf:"max_processing_chunk"`
}

// KeyspaceSection configures the logical databases and their crons.
type KeyspaceSection struct {
	Databases       int           `koanf:"databases"`
	HashSeed        uint32        `koanf:"hash_seed"`
	ActiveRehashing bool          `koanf:"active_rehashing"`
	ExpireSamples   int           `koanf:"expire_samples"`
	CronInterval    time.Duration `koanf:"cron_interval"`
}

// EvictionSection selects the maxmemory policy, which decides the access
// metadata stored in snapshots.
type EvictionSection struct {
	MaxmemoryPolicy string `koanf:"maxmemory_policy"`
}

// ReplicationSection configures replica behaviour.
type ReplicationSection struct {
	// Replica keeps keys whose expiry passed when loading a snapshot.
	Replica bool `koanf:"replica"`
}

// ArchiveSection configures the off-host snapshot copy.
type ArchiveSection struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	Secure    bool   `koanf:"secure"`

	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile string `koanf:"ca_file"`

	RateBytesPerSec int64         `koanf:"rate_bytes_per_sec"`
	Keep            int           `koanf:"keep"`
	Timeout         time.Duration `koanf:"timeout"`
}

// MetricsSection configures the admin HTTP endpoint that serves /metrics,
// /healthz and the /v1 persistence routes.
type MetricsSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`

	// RateLimit is the per-client request rate. Zero disables limiting.
	RateLimit int `koanf:"rate_limit"`

	AccessLog bool `koanf:"access_log"`

	// TLSCertFile and TLSKeyFile switch the endpoint to HTTPS. The pair is
	// reloaded when the files change.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
