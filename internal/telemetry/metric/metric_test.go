package metric

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/memkv/internal/bio"
)

func TestRegistry_Observe(t *testing.T) {
	r := NewRegistry()

	r.SetDB(0, 10, 3)
	r.SetDB(2, 1, 0)
	r.SetRehashing(2)
	r.SetDirty(42)
	r.ObserveSave(time.Unix(1_700_000_000, 0), 4096, 250*time.Millisecond)
	r.ObserveSaveFailure()
	r.ObserveLoad(100, 7)
	r.ObserveReplicaFailures(2)
	r.ObserveReplicaFailures(0)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"keys db0", testutil.ToFloat64(r.Keys.WithLabelValues("0")), 10},
		{"expires db0", testutil.ToFloat64(r.Expires.WithLabelValues("0")), 3},
		{"keys db2", testutil.ToFloat64(r.Keys.WithLabelValues("2")), 1},
		{"rehashing", testutil.ToFloat64(r.RehashingTables), 2},
		{"dirty", testutil.ToFloat64(r.Dirty), 42},
		{"saves", testutil.ToFloat64(r.Saves), 1},
		{"save failures", testutil.ToFloat64(r.SaveFailures), 1},
		{"last save ok", testutil.ToFloat64(r.LastSaveOK), 0},
		{"last save time", testutil.ToFloat64(r.LastSaveTime), 1_700_000_000},
		{"last save size", testutil.ToFloat64(r.LastSaveSize), 4096},
		{"last save duration", testutil.ToFloat64(r.LastSaveDuration), 0.25},
		{"loads", testutil.ToFloat64(r.Loads), 1},
		{"loaded keys", testutil.ToFloat64(r.LoadedKeys), 100},
		{"expired on load", testutil.ToFloat64(r.ExpiredOnLoad), 7},
		{"replica failures", testutil.ToFloat64(r.ReplicaFailures), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	r.SetDB(0, 1, 1)
	r.SetRehashing(1)
	r.SetDirty(1)
	r.ObserveSave(time.Now(), 1, time.Second)
	r.ObserveSaveFailure()
	r.ObserveLoad(1, 1)
	r.ObserveReplicaFailures(1)
	if err := r.Register(); err != nil {
		t.Errorf("Register on nil registry: %v", err)
	}
}

type fakeBio map[bio.Kind]int

func (f fakeBio) Pending(k bio.Kind) int    { return f[k] }
func (f fakeBio) Failures(k bio.Kind) int64 { return int64(f[k] * 10) }

func TestBioCollector(t *testing.T) {
	c := NewBioCollector(fakeBio{bio.KindFsync: 3})
	if n := testutil.CollectAndCount(c); n != 2*len(bio.Kinds()) {
		t.Errorf("collected %d metrics, want %d", n, 2*len(bio.Kinds()))
	}

	want := `
# HELP memkv_bio_pending_jobs Background jobs waiting or running, per kind
# TYPE memkv_bio_pending_jobs gauge
memkv_bio_pending_jobs{kind="close_file"} 0
memkv_bio_pending_jobs{kind="fsync"} 3
memkv_bio_pending_jobs{kind="lazy_free"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "memkv_bio_pending_jobs"); err != nil {
		t.Error(err)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewBioCollector(fakeBio{})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.ObserveLoad(5, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"memkv_snapshot_loaded_keys_total 5",
		"memkv_bio_pending_jobs",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("scrape output lacks %q", name)
		}
	}
}
