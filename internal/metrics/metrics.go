// Package metrics provides Prometheus metrics for the refresh loop, the
// trade-log server and the swap watcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjannette/swap-price-monitor/internal/pipeline"
)

const DefaultNamespace = "swap_price_monitor"

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Refresh cycle metrics
	CyclesTotal         *prometheus.CounterVec
	RecordsFetched      prometheus.Counter
	RecordsRejected     prometheus.Counter
	PointsDecoded       prometheus.Counter
	CycleDuration       prometheus.Histogram
	SeriesPoints        prometheus.Gauge
	LastSuccessfulCycle prometheus.Gauge

	// Trade-log server metrics
	LogRecordsStored prometheus.Counter

	// Watcher metrics
	SwapsObserved  *prometheus.CounterVec
	PriceGapAlerts prometheus.Counter

	// Dashboard metrics
	WSClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers every metric on reg. Pass prometheus.NewRegistry() in tests.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Total number of refresh cycles by terminal status",
		}, []string{"status"}),
		RecordsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "records_fetched_total",
			Help:      "Total number of raw swap records fetched from the log source",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "records_rejected_total",
			Help:      "Total number of records dropped by the validator or builder",
		}),
		PointsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "points_decoded_total",
			Help:      "Total number of price points produced",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SeriesPoints: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "series_points",
			Help:      "Number of points in the latest price series",
		}),
		LastSuccessfulCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that reached the log source",
		}),

		LogRecordsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logserver",
			Name:      "records_stored_total",
			Help:      "Total number of trade-log records accepted",
		}),

		SwapsObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "swaps_observed_total",
			Help:      "Total number of pool swap events observed by exchange",
		}, []string{"exchange"}),
		PriceGapAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "price_gap_alerts_total",
			Help:      "Total number of cross-exchange price gaps above threshold",
		}),

		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "websocket_clients",
			Help:      "Number of connected live-series websocket clients",
		}),

		gatherer: reg,
	}
}

// ObserveCycle records the outcome of one refresh cycle.
func (m *Metrics) ObserveCycle(c pipeline.Cycle) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(string(c.Status)).Inc()
	m.CycleDuration.Observe(c.Duration.Seconds())
	if c.Failed() {
		return
	}
	m.RecordsFetched.Add(float64(c.Fetched))
	m.RecordsRejected.Add(float64(c.Rejected()))
	m.PointsDecoded.Add(float64(len(c.Series)))
	m.SeriesPoints.Set(float64(len(c.Series)))
	m.LastSuccessfulCycle.Set(float64(c.StartedAt.Unix()))
}

func (m *Metrics) RecordStored() {
	if m == nil {
		return
	}
	m.LogRecordsStored.Inc()
}

func (m *Metrics) SwapObserved(exchange string) {
	if m == nil {
		return
	}
	m.SwapsObserved.WithLabelValues(exchange).Inc()
}

func (m *Metrics) PriceGap() {
	if m == nil {
		return
	}
	m.PriceGapAlerts.Inc()
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
