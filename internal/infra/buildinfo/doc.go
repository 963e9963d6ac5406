// Package buildinfo exposes build-time information injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/memkv/internal/infra/buildinfo.Version=v1.2.0 \
//	    -X github.com/yndnr/memkv/internal/infra/buildinfo.Commit=abc123"
//
// ServerVersion derives the version string stored in snapshot headers.
package buildinfo
