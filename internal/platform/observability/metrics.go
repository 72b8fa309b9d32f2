package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewbias_records_ingested_total",
		Help: "The total number of raw review records ingested",
	}, []string{"source"})

	MalformedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewbias_malformed_records_total",
		Help: "Total number of raw records rejected during field selection, by offending field",
	}, []string{"field"})

	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbias_duplicates_dropped_total",
		Help: "Total number of raw records dropped as later duplicates of a (member, submission) pair",
	})

	ReviewsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbias_reviews_normalized_total",
		Help: "Total number of canonical reviews produced",
	})

	UndefinedBias = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbias_undefined_bias_total",
		Help: "Total number of reviews whose submission group was too small for a bias value",
	})

	UnmatchedMembers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbias_unmatched_members_total",
		Help: "Total number of reviews whose member name had no directory entry",
	})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewbias_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewbias_run_duration_seconds",
		Help:    "Duration in seconds of a full pipeline run",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	RunRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewbias_run_rows",
		Help:    "Distribution of canonical row counts per run",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
	})

	LastRunUnixtime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewbias_last_run_unixtime",
		Help: "Unix timestamp of the last completed run",
	})

	InboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewbias_inbox_backlog",
		Help: "Number of raw files waiting in the watch-mode inbox",
	})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewbias_exports_total",
		Help: "Total number of enriched-table writes by sink",
	}, []string{"sink"})
)
