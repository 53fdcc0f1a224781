package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedBatches counts change batches handed to the live feed per view
	FeedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_feed_batches_total",
			Help: "Total number of change batches produced by the feed",
		},
		[]string{"view"},
	)

	FeedPollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_feed_poll_errors_total",
			Help: "Total number of failed change feed polls",
		},
		[]string{"view"},
	)

	// EmittedEvents counts emit attempts per base topic
	EmittedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_emitted_events_total",
			Help: "Total number of emitted live events",
		},
		[]string{"topic"},
	)

	EmitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_emit_failures_total",
			Help: "Total number of failed live event emits",
		},
		[]string{"topic"},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_task_runs_total",
			Help: "Total number of periodic task invocations",
		},
		[]string{"task"},
	)

	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_task_failures_total",
			Help: "Total number of failed periodic task invocations",
		},
		[]string{"task"},
	)

	// TaskSkips counts cron firings dropped because the task was still running
	TaskSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_task_skips_total",
			Help: "Total number of skipped periodic task firings",
		},
		[]string{"task"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_task_duration_seconds",
			Help:    "Periodic task duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// CacheWriteFailures counts read-through write-backs that did not reach redis
	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_cache_write_failures_total",
			Help: "Total number of failed cache write-backs",
		},
		[]string{"cache"},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_ws_active_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	// BridgeMessages counts envelopes crossing the redis bridge
	BridgeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_bridge_messages_total",
			Help: "Total number of bridge envelopes",
		},
		[]string{"direction"},
	)
)
