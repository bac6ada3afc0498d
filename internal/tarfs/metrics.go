package tarfs

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(metricGrowsTotal)
	prometheus.MustRegister(metricOverflowsTotal)
}

var metricGrowsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lindi_tarfs_member_grows_total",
		Help: "Number of in-place member grow operations.",
	},
)

var metricOverflowsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "lindi_tarfs_member_overflows_total",
		Help: "Number of member grows that overflowed their padded capacity and were tombstoned+reappended.",
	},
)
