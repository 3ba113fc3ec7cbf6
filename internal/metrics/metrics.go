// Package metrics registers the engine's Prometheus instrumentation,
// mirroring the package-level GaugeVec/CounterVec pattern used by the
// teacher's worker/storage/committee package.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BufferHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mvbt_buffer_hits_total",
		Help: "Number of buffered-container page requests served from the LRU without a container fetch.",
	})
	BufferMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mvbt_buffer_misses_total",
		Help: "Number of buffered-container page requests that required a container fetch.",
	})
	BufferDirtyPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mvbt_buffer_dirty_pages",
		Help: "Current number of dirty (unflushed) pages resident in the LRU buffer.",
	})
	BufferEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mvbt_buffer_evictions_total",
		Help: "Number of pages evicted from the LRU buffer, with or without write-back.",
	})

	VersionSplits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mvbt_version_splits_total",
		Help: "Number of version splits performed, by node level.",
	}, []string{"level"})
	KeySplits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mvbt_key_splits_total",
		Help: "Number of key splits performed, by node level.",
	}, []string{"level"})
	Merges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mvbt_merges_total",
		Help: "Number of sibling merges performed, by node level.",
	}, []string{"level"})
	RootChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mvbt_root_changes_total",
		Help: "Number of times a new root was installed into the Roots Tree.",
	})

	BulkLoadQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mvbt_bulkload_queue_depth",
		Help: "Total pending operations across all buffer-tree input queues.",
	})
	BulkLoadFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mvbt_bulkload_flushes_total",
		Help: "Number of buffer-tree queue flushes performed.",
	})
)

var registerOnce sync.Once

// Register installs all collectors into the default Prometheus
// registry. It is idempotent and safe to call from multiple
// entry points (library callers and cmd/mvbtctl).
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BufferHits, BufferMisses, BufferDirtyPages, BufferEvictions,
			VersionSplits, KeySplits, Merges, RootChanges,
			BulkLoadQueueDepth, BulkLoadFlushes,
		)
	})
}
