package benchmark

import (
	"bytes"
	"testing"

	"github.com/yndnr/memkv/internal/storage/aof"
)

// BenchmarkAOFRewrite measures converting a keyspace to a command stream.
func BenchmarkAOFRewrite(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		ks := prefillKeyspace(count)
		var buf bytes.Buffer

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			buf.Reset()
			stats, err := aof.Rewrite(&buf, ks, aof.Options{})
			if err != nil {
				b.Fatal(err)
			}
			if stats.Keys != count {
				b.Fatalf("rewrote %d keys, want %d", stats.Keys, count)
			}
		}
		b.SetBytes(int64(buf.Len()))
	})
}
