// Package handler implements the admin endpoints of memkv-server.
//
// Responses share one JSON envelope (Response). Domain errors map to HTTP
// statuses by their code suffix.
package handler
