// Package config defines the memkv-server configuration.
//
// The structure is loaded by confloader from a YAML file, MEMKV_ prefixed
// environment variables and command line overrides:
//
//	storage:
//	  dir: /var/lib/memkv
//	  save: "3600 1 300 100 60 10000"
//	  codec: lzf
//	keyspace:
//	  databases: 16
//	archive:
//	  enabled: true
//	  endpoint: minio:9000
//	  bucket: snapshots
//	  ca_file: /etc/memkv/ca.pem
//	metrics:
//	  addr: 127.0.0.1:9121
//	  rate_limit: 50
//
// Verify checks a loaded configuration. RDBConfig, EngineConfig and
// ArchiveConfig translate it into component settings, and Sanitize masks
// credentials before the configuration is logged.
package config
