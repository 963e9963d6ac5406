// Package httpserver serves the memkv admin endpoints over net/http:
//
//   - GET  /healthz        liveness
//   - GET  /metrics        Prometheus exposition
//   - GET  /v1/info        persistence status
//   - GET  /v1/snapshots   snapshot files on disk
//   - POST /v1/save        synchronous save
//
// Every route runs behind Recover, RequestID and an optional per-client
// rate limit. Access logging is opt-in.
package httpserver
