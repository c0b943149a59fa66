package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics exposes the engine's Prometheus collectors.
type SyncMetrics struct {
	RecordsFetched  *prometheus.CounterVec
	RecordsUpserted *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	SyncFailures    *prometheus.CounterVec
	TokenRefreshes  prometheus.Counter
	PagesFetched    *prometheus.CounterVec
}

// New registers and returns the engine's metrics on a registerer.
func New(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)

	return &SyncMetrics{
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_mirror_records_fetched_total",
			Help: "Records fetched from the marketplace, by resource.",
		}, []string{"resource"}),
		RecordsUpserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_mirror_records_upserted_total",
			Help: "Records upserted into the mirror, by resource.",
		}, []string{"resource"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shop_mirror_sync_duration_seconds",
			Help:    "Duration of one resource synchronizer run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"resource"}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_mirror_sync_failures_total",
			Help: "Failed synchronizer runs, by resource.",
		}, []string{"resource"}),
		TokenRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "shop_mirror_token_refreshes_total",
			Help: "Upstream token refresh calls.",
		}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_mirror_pages_fetched_total",
			Help: "Upstream pages fetched, by resource.",
		}, []string{"resource"}),
	}
}

// ObserveSync records the outcome of one synchronizer run.
func (m *SyncMetrics) ObserveSync(resource string, started time.Time, fetched, upserted int, err error) {
	m.SyncDuration.WithLabelValues(resource).Observe(time.Since(started).Seconds())
	m.RecordsFetched.WithLabelValues(resource).Add(float64(fetched))
	m.RecordsUpserted.WithLabelValues(resource).Add(float64(upserted))
	if err != nil {
		m.SyncFailures.WithLabelValues(resource).Inc()
	}
}
