package benchmark

import (
	"strconv"
	"testing"

	"github.com/yndnr/memkv/pkg/dict"
)

func benchKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "key:" + strconv.Itoa(i)
	}
	return keys
}

// BenchmarkDictAdd measures inserts including incremental rehashing.
func BenchmarkDictAdd(b *testing.B) {
	runWithKeyCounts(b, KeyCounts, func(b *testing.B, count int) {
		keys := benchKeys(count)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			d := dict.New(dict.StringType[int](), nil)
			for j, k := range keys {
				d.Add(k, j)
			}
		}
	})
}

// BenchmarkDictFind measures lookups on a table that finished rehashing.
func BenchmarkDictFind(b *testing.B) {
	runWithKeyCounts(b, KeyCounts, func(b *testing.B, count int) {
		keys := benchKeys(count)
		d := dict.New(dict.StringType[int](), nil)
		for j, k := range keys {
			d.Add(k, j)
		}
		for d.IsRehashing() {
			d.RehashStep(100)
		}

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if d.Find(keys[i%count]) == nil {
				b.Fatal("missing key")
			}
		}
	})
}
