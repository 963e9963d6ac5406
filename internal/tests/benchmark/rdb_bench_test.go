package benchmark

import (
	"testing"

	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/pkg/rio"
)

var codecs = []struct {
	name  string
	codec rdb.Codec
}{
	{rdb.CodecLZF, rdb.LZF},
	{rdb.CodecLZ4, rdb.LZ4},
	{rdb.CodecZstd, rdb.Zstd},
}

// BenchmarkRDBSave measures encoding with each string codec.
func BenchmarkRDBSave(b *testing.B) {
	ks := prefillKeyspace(SmallKeyCounts[len(SmallKeyCounts)-1])
	for _, c := range codecs {
		b.Run("codec_"+c.name, func(b *testing.B) {
			cfg := rdb.DefaultConfig()
			cfg.Codec = c.codec
			size := len(encode(b, ks, cfg))

			b.ReportAllocs()
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf := rio.NewBuffer(make([]byte, 0, size))
				if err := rdb.Save(rio.New(buf), ks, nil, cfg); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(size), "file_bytes")
		})
	}
}

// BenchmarkRDBLoad measures decoding, including checksum verification.
func BenchmarkRDBLoad(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		cfg := rdb.DefaultConfig()
		data := encode(b, prefillKeyspace(count), cfg)

		b.ReportAllocs()
		b.SetBytes(int64(len(data)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			ks := keyspace.New(keyspace.DefaultDatabases)
			if err := rdb.Load(rio.New(rio.NewBuffer(data)), ks, nil, cfg); err != nil {
				b.Fatal(err)
			}
		}
		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkRDBCheck measures check mode, which decodes without keeping
// values.
func BenchmarkRDBCheck(b *testing.B) {
	cfg := rdb.DefaultConfig()
	data := encode(b, prefillKeyspace(SmallKeyCounts[len(SmallKeyCounts)-1]), cfg)

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		report := rdb.NewDecoder(rio.New(rio.NewBuffer(data)), cfg).Check(keyspace.New(keyspace.DefaultDatabases))
		if len(report.Errors) > 0 {
			b.Fatal(report.Errors)
		}
	}
}
