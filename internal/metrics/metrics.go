package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var OrphansFound = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orphanscan_orphans_found_total",
		Help: "Orphaned rows newly recorded by scans.",
	},
	[]string{"table", "reason"},
)

var ScanFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orphanscan_scan_failures_total",
		Help: "Tables whose scan stopped on an error.",
	},
	[]string{"table"},
)

var ScanDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "orphanscan_table_scan_duration_seconds",
		Help: "Time spent scanning one table.",
		Buckets: []float64{
			0.1,
			1,
			10,
			60,
			300,
			1800,
			3600,
		},
	},
	[]string{"table"},
)

var RecordsReconciled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orphanscan_records_reconciled_total",
		Help: "Operator actions applied to tracked records, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

var RecordsSwept = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "orphanscan_records_swept_total",
		Help: "Deleted records purged by the retention sweeper.",
	},
)

var LastSweepEligible = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "orphanscan_last_sweep_eligible",
		Help: "Records eligible for purging counted by the last sweep.",
	},
)
