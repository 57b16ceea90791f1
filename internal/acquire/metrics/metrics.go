package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostsFetched tracks raw candidates pulled per backend and stream
	PostsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_posts_fetched_total",
			Help: "Total number of raw candidate posts fetched",
		},
		[]string{"backend", "stream"},
	)

	// PostsAdmitted tracks validated, deduplicated posts written to the store
	PostsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_posts_admitted_total",
			Help: "Total number of posts admitted to the store",
		},
		[]string{"stream"},
	)

	// PostsDuplicate tracks candidates dropped as already seen
	PostsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_posts_duplicate_total",
			Help: "Total number of candidates dropped as duplicates",
		},
		[]string{"stream"},
	)

	// PostsRejected tracks candidates dropped by validation, per rule
	PostsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_posts_rejected_total",
			Help: "Total number of candidates rejected by validation",
		},
		[]string{"stream", "reason"},
	)

	// BackendAttempts tracks backend outcomes per run attempt
	BackendAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_backend_attempts_total",
			Help: "Total backend attempts by terminal outcome",
		},
		[]string{"backend", "outcome"},
	)

	// BackendCooling reports whether a backend is in cooldown (1) or not (0)
	BackendCooling = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvester_backend_cooling",
			Help: "Whether a backend is currently cooling down",
		},
		[]string{"backend"},
	)

	// FetchDuration tracks how long one backend fetch takes
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Backend fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// WatermarkTimestamp tracks the persisted watermark position per stream
	WatermarkTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvester_watermark_timestamp",
			Help: "Unix timestamp of the stream watermark",
		},
		[]string{"account", "stream"},
	)

	// RunsTotal tracks completed runs by result
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_runs_total",
			Help: "Total acquisition runs by result",
		},
		[]string{"stream", "result"},
	)

	// DBConnectionPoolUsage tracks database pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
