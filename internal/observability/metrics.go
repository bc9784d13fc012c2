package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the service exports.
type Metrics struct {
	VersionsCommitted *prometheus.CounterVec
	InvalidVersions   *prometheus.CounterVec
	OrdersSettled     *prometheus.CounterVec
	PendingOrders     *prometheus.GaugeVec
	LatestPrice       *prometheus.GaugeVec
	ExposurePool      *prometheus.GaugeVec

	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	DBBatchSize      prometheus.Histogram
	DBInsertErrors   prometheus.Counter
	FeedRedeliveries prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VersionsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "versions_committed_total",
			Help:      "Committed oracle versions per market.",
		}, []string{"market"}),
		InvalidVersions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "invalid_versions_total",
			Help:      "Invalid oracle versions per market.",
		}, []string{"market"}),
		OrdersSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "orders_settled_total",
			Help:      "Orders settled per market.",
		}, []string{"market"}),
		PendingOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perpsettle",
			Name:      "pending_orders",
			Help:      "Global orders awaiting an oracle version.",
		}, []string{"market"}),
		LatestPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perpsettle",
			Name:      "latest_price",
			Help:      "Latest valid oracle price per market.",
		}, []string{"market"}),
		ExposurePool: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "perpsettle",
			Name:      "exposure_pool",
			Help:      "Net adiabatic exposure pool per market.",
		}, []string{"market"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "perpsettle",
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "http_request_errors_total",
			Help:      "API requests answered with an error status.",
		}, []string{"route", "code"}),

		DBBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "perpsettle",
			Name:      "db_batch_rows",
			Help:      "Rows per persistence batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		DBInsertErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "db_insert_errors_total",
			Help:      "Failed persistence batch inserts.",
		}),
		FeedRedeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "perpsettle",
			Name:      "feed_redeliveries_total",
			Help:      "Oracle feed messages NAKed back for redelivery.",
		}),
	}
}
