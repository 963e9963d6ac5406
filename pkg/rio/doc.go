// Package rio provides sequential binary I/O for snapshot encoding.
//
// A Stream wraps a Backend (file, in-memory buffer, or fan-out to several
// writers) and adds what every backend shares: requests larger than the
// configured chunk are split, a checksum hook sees every byte read or
// written, and processed bytes are counted.
//
// Backends:
//
//   - File: buffered file with optional fsync every N written bytes
//   - Buffer: growable in-memory buffer
//   - FanOut: write-only multicast with per-destination error tracking
package rio
