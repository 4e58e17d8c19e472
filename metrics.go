package shelf

import (
	"github.com/prometheus/client_golang/prometheus"
)

var ReindexCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelf",
	Subsystem: "store",
	Name:      "reindex",
}, []string{"mode"})

var ReindexResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelf",
	Subsystem: "store",
	Name:      "reindex_results",
}, []string{"mode", "result"})

var ReindexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "shelf",
	Subsystem: "store",
	Name:      "reindex_duration",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
}, []string{"mode"})

var ReindexedDocuments = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelf",
	Subsystem: "store",
	Name:      "reindexed_documents",
}, []string{"collection", "result"})

var BatchFlushCount = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "shelf",
	Subsystem: "store",
	Name:      "batch_flushes",
})

var QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "shelf",
	Subsystem: "query",
	Name:      "duration",
	Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
}, []string{"collection", "sort"})

var QueryScannedKeys = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelf",
	Subsystem: "query",
	Name:      "scanned_keys",
}, []string{"collection", "sort"})

// Collectors lists every metric of the engine for registry wiring.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ReindexCount, ReindexResults, ReindexDuration, ReindexedDocuments,
		BatchFlushCount, QueryDuration, QueryScannedKeys,
	}
}
