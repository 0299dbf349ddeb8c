package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"task_type"},
	)

	DealsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_deals_scanned_total",
			Help: "Deals examined by the stale deal scanner, by result",
		},
		[]string{"result"},
	)

	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_source_fetch_total",
			Help: "Evidence fetches per source and terminal status",
		},
		[]string{"source", "status"},
	)

	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "followup_source_fetch_duration_seconds",
			Help:    "Latency of evidence fetches per source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	Drafts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_drafts_total",
			Help: "Drafts produced, by generation status",
		},
		[]string{"status"},
	)

	DealOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_deal_outcomes_total",
			Help: "Terminal outcome of each deal submitted to the pipeline",
		},
		[]string{"outcome"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "followup_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limit token",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"key"},
	)

	RateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_rate_limit_rejected_total",
			Help: "Acquire calls that exhausted their wait budget",
		},
		[]string{"key"},
	)
)
