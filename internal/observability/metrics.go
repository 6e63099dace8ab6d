package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync layer.
type Metrics struct {
	// Cache slice metrics.
	SliceFetches       *prometheus.CounterVec   // labels: slice, outcome={success,error,discarded}
	SliceFetchDuration *prometheus.HistogramVec // labels: slice
	SliceLookups       *prometheus.CounterVec   // labels: slice, result={hit,miss}
	SliceInFlight      *prometheus.GaugeVec     // labels: slice

	// Static file source metrics.
	SourceRequests *prometheus.CounterVec // labels: dataset, outcome={success,transport,breaker}

	// Selection and pipeline metrics.
	SelectionChanges   *prometheus.CounterVec // labels: kind={city,date}
	SelectorRecomputes *prometheus.CounterVec // labels: stage
	DatasetPoints      prometheus.Gauge
	DatasetsPublished  prometheus.Counter
	LiveRefreshes      *prometheus.CounterVec // labels: outcome={fetched,fresh,caught_up,skipped,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.SliceFetches,
		m.SliceFetchDuration,
		m.SliceLookups,
		m.SliceInFlight,
		m.SourceRequests,
		m.SelectionChanges,
		m.SelectorRecomputes,
		m.DatasetPoints,
		m.DatasetsPublished,
		m.LiveRefreshes,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		SliceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slice_fetches_total",
			Help:      "Settled cache slice fetches by slice and outcome.",
		}, []string{"slice", "outcome"}),
		SliceFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slice_fetch_duration_seconds",
			Help:      "Duration of cache slice fetches.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"slice"}),
		SliceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slice_lookups_total",
			Help:      "Should-fetch decisions by slice and result.",
		}, []string{"slice", "result"}),
		SliceInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slice_in_flight",
			Help:      "Fetches currently loading per slice.",
		}, []string{"slice"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Static file requests by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		SelectionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_changes_total",
			Help:      "Accepted city and date selection changes.",
		}, []string{"kind"}),
		SelectorRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selector_recomputes_total",
			Help:      "Memoized selector stage recomputations by stage.",
		}, []string{"stage"}),
		DatasetPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_points",
			Help:      "Points in the latest render-ready dataset.",
		}),
		DatasetsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_published_total",
			Help:      "Render-ready datasets written to the sink topic.",
		}),
		LiveRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_refreshes_total",
			Help:      "Scheduled live feed refresh runs by outcome.",
		}, []string{"outcome"}),
	}
}
