package benchmark

import (
	"fmt"
	"runtime"
	"strconv"
	"testing"

	"github.com/yndnr/memkv/internal/encoding/ziplist"
	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/object"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/pkg/rio"
)

// KeyCounts defines the keyspace sizes for benchmarking.
var KeyCounts = []int{10000, 50000, 200000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{1000, 10000}

// prefillKeyspace fills db 0 with a mix of strings, integer strings,
// small hashes and intsets.
func prefillKeyspace(count int) *keyspace.Keyspace {
	ks := keyspace.New(keyspace.DefaultDatabases)
	t := object.DefaultThresholds()
	db := ks.DB(0)
	for i := 0; i < count; i++ {
		key := "key:" + strconv.Itoa(i)
		switch i % 4 {
		case 0:
			db.Add(key, object.NewString([]byte(fmt.Sprintf("value-%d-%s", i, "abcdefghijabcdefghijabcdefghij"))))
		case 1:
			db.Add(key, object.NewStringInt(int64(i)))
		case 2:
			h := object.NewHashZiplist(ziplist.New())
			for f := 0; f < 8; f++ {
				_, _ = h.HashSet([]byte("field"+strconv.Itoa(f)), []byte("v"+strconv.Itoa(i)), t)
			}
			db.Add(key, h)
		default:
			s := object.NewSetIntset()
			for m := 0; m < 16; m++ {
				s.SetAdd([]byte(strconv.Itoa(i+m)), t)
			}
			db.Add(key, s)
		}
	}
	return ks
}

func encode(b *testing.B, ks *keyspace.Keyspace, cfg rdb.Config) []byte {
	b.Helper()
	buf := rio.NewBuffer(nil)
	if err := rdb.Save(rio.New(buf), ks, nil, cfg); err != nil {
		b.Fatalf("Save: %v", err)
	}
	return buf.Bytes()
}

// reportMemory reports heap usage after a forced GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs benchFn once per keyspace size.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
