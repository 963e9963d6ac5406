package benchmark

import (
	"io"
	"log/slog"
	"testing"

	"github.com/yndnr/memkv/internal/keyspace"
	"github.com/yndnr/memkv/internal/storage/rdb"
	"github.com/yndnr/memkv/internal/storage/snapshot"
)

func newManager(b *testing.B) *snapshot.Manager {
	b.Helper()
	cfg := snapshot.DefaultConfig(b.TempDir())
	cfg.RetentionCount = 3
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := snapshot.NewManager(cfg)
	if err != nil {
		b.Fatalf("NewManager: %v", err)
	}
	return mgr
}

// BenchmarkSnapshotSave measures a full save: temp file, fsync, rename and
// retention.
func BenchmarkSnapshotSave(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		ks := prefillKeyspace(count)
		mgr := newManager(b)

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := mgr.Save(ks, rdb.NewSaveInfo()); err != nil {
				b.Fatalf("Save: %v", err)
			}
		}
		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkSnapshotLoad measures loading the newest snapshot from disk.
func BenchmarkSnapshotLoad(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		mgr := newManager(b)
		si, err := mgr.Save(prefillKeyspace(count), rdb.NewSaveInfo())
		if err != nil {
			b.Fatalf("Save: %v", err)
		}

		b.ReportAllocs()
		b.SetBytes(si.Size)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			ks := keyspace.New(keyspace.DefaultDatabases)
			if _, _, err := mgr.Load(ks, rdb.NewSaveInfo()); err != nil {
				b.Fatalf("Load: %v", err)
			}
			if ks.Keys() != count {
				b.Fatalf("loaded %d keys, want %d", ks.Keys(), count)
			}
		}
	})
}
