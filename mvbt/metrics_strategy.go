package mvbt

import (
	"strconv"

	"github.com/mvbtdb/mvbt/internal/metrics"
)

// MetricsStrategy is the default btree.Strategy: it drives the
// Prometheus counters in internal/metrics instead of altering any
// control flow. Used automatically when New is called with a nil
// Strategy.
type MetricsStrategy struct{}

func (MetricsStrategy) OnInsertLeaf(int) {}

func (MetricsStrategy) OnSplit(level int) {
	metrics.KeySplits.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (MetricsStrategy) OnVersionSplit(level int) {
	metrics.VersionSplits.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (MetricsStrategy) OnMerge(level int) {
	metrics.Merges.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (MetricsStrategy) OnRootChange() {
	metrics.RootChanges.Inc()
}
