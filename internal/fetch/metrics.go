package fetch

import "github.com/prometheus/client_golang/prometheus"

// Metrics for the chunk fetcher and its caches, grounded on the teacher's
// root metrics.go (one file of prometheus.MustRegister calls plus the
// matching Counter/Gauge/Histogram vars).

func init() {
	prometheus.MustRegister(metricFetchAttemptsTotal)
	prometheus.MustRegister(metricFetchFailuresTotal)
	prometheus.MustRegister(metricDiskCacheHitsTotal)
	prometheus.MustRegister(metricDiskCacheMissesTotal)
	prometheus.MustRegister(metricMemoryCacheHitsTotal)
	prometheus.MustRegister(metricFetchDurationSeconds)
}

var metricFetchAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lindi_fetch_attempts_total",
		Help: "Number of range-fetch attempts by source scheme (http, file).",
	},
	[]string{"scheme"},
)

var metricFetchFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lindi_fetch_failures_total",
		Help: "Number of range-fetch attempts that returned an error.",
	},
	[]string{"scheme"},
)

var metricDiskCacheHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lindi_disk_cache_hits_total",
		Help: "Number of chunk fetches served from the on-disk cache.",
	},
)

var metricDiskCacheMissesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lindi_disk_cache_misses_total",
		Help: "Number of chunk fetches that missed the on-disk cache.",
	},
)

var metricMemoryCacheHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lindi_memory_cache_hits_total",
		Help: "Number of chunk fetches served from the in-memory range cache.",
	},
)

var metricFetchDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "lindi_fetch_duration_seconds",
		Help:    "Wall-clock time spent in Fetcher.Fetch, including retries.",
		Buckets: prometheus.DefBuckets,
	},
)
