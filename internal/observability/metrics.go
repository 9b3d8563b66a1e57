// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	PassesTotal         *prometheus.CounterVec
	PassDuration        prometheus.Histogram
	PositionsEvaluated  prometheus.Counter
	RebalancesTotal     *prometheus.CounterVec
	StopLossesTotal     *prometheus.CounterVec
	FeeCollectionsTotal prometheus.Counter
	PositionsSkipped    *prometheus.CounterVec

	// Feed metrics
	PriceUpdatesTotal  *prometheus.CounterVec
	PriceDecodeErrors  prometheus.Counter
	LastPriceTimestamp *prometheus.GaugeVec

	// Venue metrics
	VenueCallLatency *prometheus.HistogramVec
	VenueCallErrors  *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec
	WSReconnects   prometheus.Counter

	// Fan-out metrics
	SubscribersConnected prometheus.Gauge
	EventsBroadcast      *prometheus.CounterVec
	SubscribersDropped   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPass prometheus.Gauge
	PositionsTracked   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dlmm_rebalancer"
	}

	return &Metrics{
		// Engine metrics
		PassesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "passes_total",
			Help:      "Total number of monitoring passes by status",
		}, []string{"status"}),
		PassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pass_duration_seconds",
			Help:      "Monitoring pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PositionsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "positions_evaluated_total",
			Help:      "Total number of position evaluations",
		}),
		RebalancesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rebalances_total",
			Help:      "Total number of rebalance attempts by status",
		}, []string{"status"}),
		StopLossesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stop_losses_total",
			Help:      "Total number of stop-loss executions by status",
		}, []string{"status"}),
		FeeCollectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fee_collections_total",
			Help:      "Total number of fee collection calls",
		}),
		PositionsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "positions_skipped_total",
			Help:      "Total number of positions skipped during a pass by reason",
		}, []string{"reason"}),

		// Feed metrics
		PriceUpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "price_updates_total",
			Help:      "Total number of price updates processed by pool",
		}, []string{"pool"}),
		PriceDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "price_decode_errors_total",
			Help:      "Total number of pool account updates that failed to decode",
		}),
		LastPriceTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_price_timestamp",
			Help:      "Unix timestamp of the last stored price sample by pool",
		}, []string{"pool"}),

		// Venue metrics
		VenueCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_latency_seconds",
			Help:      "Venue call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		VenueCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "call_errors_total",
			Help:      "Total number of failed venue calls by operation",
		}, []string{"operation"}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),

		// Fan-out metrics
		SubscribersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "subscribers_connected",
			Help:      "Current number of connected event subscribers",
		}),
		EventsBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "events_broadcast_total",
			Help:      "Total number of events broadcast by type",
		}, []string{"type"}),
		SubscribersDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "subscribers_dropped_total",
			Help:      "Total number of subscribers dropped for falling behind",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPass: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pass_timestamp",
			Help:      "Unix timestamp of the last successful monitoring pass",
		}),
		PositionsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "positions_tracked",
			Help:      "Number of positions currently tracked",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPass records a completed monitoring pass.
func RecordPass(status string, durationSeconds float64) {
	DefaultMetrics.PassesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PassDuration.Observe(durationSeconds)
}

// RecordRebalance increments the rebalance counter.
func RecordRebalance(status string) {
	DefaultMetrics.RebalancesTotal.WithLabelValues(status).Inc()
}

// RecordStopLoss increments the stop-loss counter.
func RecordStopLoss(status string) {
	DefaultMetrics.StopLossesTotal.WithLabelValues(status).Inc()
}

// RecordSkip records a skipped position.
func RecordSkip(reason string) {
	DefaultMetrics.PositionsSkipped.WithLabelValues(reason).Inc()
}

// RecordPriceUpdate records a processed price update.
func RecordPriceUpdate(pool string, timestampMs int64) {
	DefaultMetrics.PriceUpdatesTotal.WithLabelValues(pool).Inc()
	DefaultMetrics.LastPriceTimestamp.WithLabelValues(pool).Set(float64(timestampMs) / 1000)
}

// RecordVenueCall records a venue call.
func RecordVenueCall(operation string, seconds float64, err error) {
	DefaultMetrics.VenueCallLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.VenueCallErrors.WithLabelValues(operation).Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateSubscribers updates the connected subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.SubscribersConnected.Set(float64(n))
}

// RecordBroadcast records a broadcast event.
func RecordBroadcast(eventType string) {
	DefaultMetrics.EventsBroadcast.WithLabelValues(eventType).Inc()
}

// UpdatePositionsTracked updates the tracked positions gauge.
func UpdatePositionsTracked(n int) {
	DefaultMetrics.PositionsTracked.Set(float64(n))
}
