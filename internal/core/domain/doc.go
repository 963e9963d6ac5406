// Package domain holds the error taxonomy shared by the storage, snapshot
// and server layers of memkv.
//
// Every failure that crosses a package boundary carries a DomainError with
// a stable code of the form KV-<AREA>-<NNNN>:
//
//   - IO: reading or writing a stream or file failed
//   - RDB: a snapshot is corrupt, truncated or uses an unknown feature
//   - SYS: capacity limits and internal failures
//   - API: an operation was called in a state that forbids it
package domain
