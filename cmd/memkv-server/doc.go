// Command memkv-server runs the memkv storage engine.
//
// On start it loads configuration (YAML file, MEMKV_ environment
// variables, then command line flags), restores the newest valid snapshot
// and runs the maintenance cron: incremental rehashing, active expiry and
// save points. SIGINT and SIGTERM trigger a final save; SIGHUP and edits
// to the configuration file reload the log level.
//
// When metrics.addr is set an admin HTTP endpoint serves /metrics,
// /healthz, GET /v1/info, GET /v1/snapshots and POST /v1/save, over TLS
// when metrics.tls_cert_file and metrics.tls_key_file are set.
//
// Usage:
//
//	memkv-server --config /etc/memkv/memkv.yaml
//	memkv-server --data-dir ./data --log-level debug --metrics-addr :9121
package main
