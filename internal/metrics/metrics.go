// README: Prometheus collectors for spot allocation, change-feed sync, frames and websocket clients.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpotOperations counts occupy/release calls.
	// Labels:
	//   - op: "occupy", "release"
	//   - result: "ok", "full", "conflict", "noop", "error"
	SpotOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkmark_spot_operations_total",
			Help: "Spot occupy/release operations by outcome",
		},
		[]string{"op", "result"},
	)

	// ChangeEventsApplied counts change-feed events folded into the marker state.
	ChangeEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkmark_change_events_applied_total",
			Help: "Change-feed events applied to the marker state",
		},
		[]string{"type"},
	)

	FramesRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parkmark_frames_rendered_total",
			Help: "Viewport decoration passes",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parkmark_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// StoreQueryDuration measures store round trips by operation name.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parkmark_store_query_duration_seconds",
			Help:    "Duration of store queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)
)

// RecordSpotOperation increments SpotOperations.
func RecordSpotOperation(op, result string) {
	SpotOperations.WithLabelValues(op, result).Inc()
}

// ObserveQuery is meant to be deferred: defer metrics.ObserveQuery("lot_list", time.Now()).
func ObserveQuery(op string, start time.Time) {
	StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
