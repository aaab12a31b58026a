package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vote Ingestion Metrics
var (
	// VotesTotal tracks votes ingested by result
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Total vote events processed by result (recorded/no_subscription/error)",
		},
		[]string{"result"},
	)

	// VoteIngestDuration tracks vote ingestion latency in seconds
	VoteIngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vote_ingest_duration_seconds",
			Help:    "Latency from vote receipt to persisted record and armed timer",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	// RecordsPrunedTotal tracks expired cooldown records removed by path
	RecordsPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cooldown_records_pruned_total",
			Help: "Expired cooldown records removed by path (vote/reconcile)",
		},
		[]string{"path"},
	)
)

// Notification Delivery Metrics
var (
	// NotificationsTotal tracks expiry notification attempts by outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total expiry notifications by outcome (delivered/invalid_target/throttled/error/no_target)",
		},
		[]string{"outcome"},
	)

	// NotificationSendDuration tracks push transport call latency in seconds
	NotificationSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_send_duration_seconds",
			Help:    "Push transport send duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// NotifyBreakerState tracks the transport circuit breaker state (0=closed, 1=half-open, 2=open)
	NotifyBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_circuit_breaker_state",
			Help: "Push transport circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// Timer Registry Metrics
var (
	// TimersActive tracks currently armed cooldown timers
	TimersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cooldown_timers_active",
			Help: "Currently armed cooldown timers",
		},
	)

	// TimersScheduledTotal tracks timer arms by kind
	TimersScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cooldown_timers_scheduled_total",
			Help: "Timer schedules by kind (deferred/immediate/replaced)",
		},
		[]string{"kind"},
	)

	// TimersFiredTotal tracks timers that reached their deadline and fired
	TimersFiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cooldown_timers_fired_total",
			Help: "Timers that reached their deadline and fired",
		},
	)

	// TimersCanceledTotal tracks timers canceled before firing
	TimersCanceledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cooldown_timers_canceled_total",
			Help: "Timers canceled before firing (replace or unsubscribe)",
		},
	)
)

// Reconciliation Metrics
var (
	// ReconcileRunsTotal tracks reconciliation passes by result
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation passes by result (ok/error)",
		},
		[]string{"result"},
	)

	// ReconcileRestoredTotal tracks timers re-armed from persisted state
	ReconcileRestoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_restored_total",
			Help: "Timers re-armed from persisted state",
		},
	)

	// ReconcileCleanedTotal tracks stale records pruned during reconciliation
	ReconcileCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_cleaned_total",
			Help: "Stale cooldown records pruned during reconciliation",
		},
	)

	// ReconcileDuration tracks full reconciliation pass duration in seconds
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Full reconciliation pass duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// Record Store Metrics
var (
	// StoreOpsTotal tracks record store operations by operation and status
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_store_operations_total",
			Help: "Record store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// StoreOpDuration tracks record store operation latency in seconds
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "record_store_operation_duration_seconds",
			Help:    "Record store operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Build Metadata Metrics
var (
	// BuildInfo carries build metadata as labels; its value is a constant 1.
	// Set once at startup from the version package.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (version, commit, build_time, go_version) with a constant value of 1",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// http_errors_total{type} lives in internal/errors next to the
// middleware that increments it.
