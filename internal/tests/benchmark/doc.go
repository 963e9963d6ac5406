// Package benchmark holds end-to-end performance benchmarks for memkv
// persistence.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run one codec only:
//
//	go test -bench='BenchmarkRDBSave/codec_zstd' -benchmem ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
