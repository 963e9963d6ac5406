package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memkv"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Keyspace
	Keys            *prometheus.GaugeVec
	Expires         *prometheus.GaugeVec
	RehashingTables prometheus.Gauge
	Dirty           prometheus.Gauge

	// Snapshots
	LastSaveTime     prometheus.Gauge
	LastSaveSize     prometheus.Gauge
	LastSaveDuration prometheus.Gauge
	LastSaveOK       prometheus.Gauge
	Saves            prometheus.Counter
	SaveFailures     prometheus.Counter
	Loads            prometheus.Counter
	LoadedKeys       prometheus.Counter
	ExpiredOnLoad    prometheus.Counter
	ReplicaFailures  prometheus.Counter
}

// NewRegistry creates the metrics and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "keys",
			Help:      "Number of keys per database",
		}, []string{"db"}),
		Expires: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "expires",
			Help:      "Number of keys with an expiry per database",
		}, []string{"db"}),
		RehashingTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "rehashing_tables",
			Help:      "Number of hash tables with an incremental rehash in progress",
		}),
		Dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "changes_since_last_save",
			Help:      "Changes applied since the last successful save",
		}),
		LastSaveTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_save_timestamp_seconds",
			Help:      "Unix timestamp of the last successful save",
		}),
		LastSaveSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_save_size_bytes",
			Help:      "Size of the last snapshot written",
		}),
		LastSaveDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_save_duration_seconds",
			Help:      "Time taken by the last successful save",
		}),
		LastSaveOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_save_ok",
			Help:      "1 when the last save attempt succeeded",
		}),
		Saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "saves_total",
			Help:      "Successful saves",
		}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "save_failures_total",
			Help:      "Failed save attempts",
		}),
		Loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "loads_total",
			Help:      "Snapshots loaded",
		}),
		LoadedKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "loaded_keys_total",
			Help:      "Keys inserted by snapshot loads",
		}),
		ExpiredOnLoad: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "expired_on_load_total",
			Help:      "Keys skipped while loading because they had already expired",
		}),
		ReplicaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "transfer_failures_total",
			Help:      "Replica destinations dropped during a snapshot transfer",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Keys,
		r.Expires,
		r.RehashingTables,
		r.Dirty,
		r.LastSaveTime,
		r.LastSaveSize,
		r.LastSaveDuration,
		r.LastSaveOK,
		r.Saves,
		r.SaveFailures,
		r.Loads,
		r.LoadedKeys,
		r.ExpiredOnLoad,
		r.ReplicaFailures,
	)
	return r
}

// Register adds extra collectors.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	if r == nil {
		return nil
	}
	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Gatherer returns the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// SetDB records the table sizes of database db.
func (r *Registry) SetDB(db, keys, expires int) {
	if r == nil {
		return
	}
	label := strconv.Itoa(db)
	r.Keys.WithLabelValues(label).Set(float64(keys))
	r.Expires.WithLabelValues(label).Set(float64(expires))
}

// SetRehashing records the number of tables being rehashed.
func (r *Registry) SetRehashing(n int) {
	if r == nil {
		return
	}
	r.RehashingTables.Set(float64(n))
}

// SetDirty records the changes since the last save.
func (r *Registry) SetDirty(n int64) {
	if r == nil {
		return
	}
	r.Dirty.Set(float64(n))
}

// ObserveSave records a successful save.
func (r *Registry) ObserveSave(at time.Time, size int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Saves.Inc()
	r.LastSaveOK.Set(1)
	r.LastSaveTime.Set(float64(at.Unix()))
	r.LastSaveSize.Set(float64(size))
	r.LastSaveDuration.Set(elapsed.Seconds())
}

// ObserveSaveFailure records a failed save.
func (r *Registry) ObserveSaveFailure() {
	if r == nil {
		return
	}
	r.SaveFailures.Inc()
	r.LastSaveOK.Set(0)
}

// ObserveLoad records a completed load.
func (r *Registry) ObserveLoad(loaded, expiredSkipped int) {
	if r == nil {
		return
	}
	r.Loads.Inc()
	r.LoadedKeys.Add(float64(loaded))
	r.ExpiredOnLoad.Add(float64(expiredSkipped))
}

// ObserveReplicaFailures records destinations dropped by a transfer.
func (r *Registry) ObserveReplicaFailures(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.ReplicaFailures.Add(float64(n))
}
