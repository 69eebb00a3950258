package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RankChecksTotal counts rank lookups by mode ("live" / "demo") and
	// status ("ok" / "error").
	RankChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerhub_rank_checks_total",
		Help: "Rank lookups by mode and status.",
	}, []string{"mode", "status"})

	// RankCheckDuration observes end-to-end duration of a single rank lookup.
	RankCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sellerhub_rank_check_duration_seconds",
		Help:    "Duration of a single rank lookup.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// ProviderFallbackTotal counts live calls that degraded to demo data,
	// labeled by the failure reason.
	ProviderFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerhub_provider_fallback_total",
		Help: "Live search calls that degraded to demo observations.",
	}, []string{"reason"})

	// RefreshConflictTotal counts refreshes rejected because the keyword
	// was already in flight.
	RefreshConflictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sellerhub_refresh_conflict_total",
		Help: "Refresh requests rejected because the keyword was already refreshing.",
	})

	// AlertsSentTotal counts rank alerts by direction ("improvement" / "decline").
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerhub_rank_alerts_sent_total",
		Help: "Rank alerts emitted by direction.",
	}, []string{"direction"})

	// AlertsSuppressedTotal counts alerts dropped by the dedup window.
	AlertsSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sellerhub_rank_alerts_suppressed_total",
		Help: "Rank alerts suppressed by the dedup window.",
	})

	// QueueDepth tracks the pending jobs in the refresh worker queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sellerhub_refresh_queue_depth",
		Help: "Pending jobs in the refresh worker queue.",
	})

	// QueueWorkers reports the configured worker pool size.
	QueueWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sellerhub_refresh_queue_workers",
		Help: "Configured refresh worker pool size.",
	})

	// SeoScoresTotal counts scoring requests by subject ("adhoc" / "product").
	SeoScoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerhub_seo_scores_total",
		Help: "SEO scoring requests by subject.",
	}, []string{"subject"})

	// RateLimitWaitDuration observes how long callers waited for a
	// rate-limit token.
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sellerhub_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate-limit token.",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitRejectedTotal counts requests rejected by the API rate limiter.
	RateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sellerhub_ratelimit_rejected_total",
		Help: "API requests rejected by the per-user rate limiter.",
	})

	// ImportRowsTotal counts CSV import rows by outcome ("imported" / "skipped" / "failed").
	ImportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sellerhub_import_rows_total",
		Help: "CSV import rows by outcome.",
	}, []string{"outcome"})
)

// InitMetrics seeds gauges that reflect static configuration.
func InitMetrics(workerPoolSize int) {
	QueueWorkers.Set(float64(workerPoolSize))
}
