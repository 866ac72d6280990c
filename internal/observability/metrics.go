package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "delivery_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	// Row accounting per pipeline stage.
	RowsIn      *prometheus.CounterVec // labels: stage
	RowsOut     *prometheus.CounterVec // labels: stage
	RowsDropped *prometheus.CounterVec // labels: table, column
	NullValues  *prometheus.CounterVec // labels: stage, column

	// Run-level metrics.
	CityRuns        *prometheus.CounterVec // labels: city, outcome={success,error}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	// Output metrics.
	CanonicalRows *prometheus.CounterVec // labels: source
	RecordsLoaded *prometheus.CounterVec // labels: sink
	LoadErrors    *prometheus.CounterVec // labels: sink

	// ETA distribution of the latest run, in minutes.
	ETA *prometheus.GaugeVec // labels: stat={mean,stddev,p50,p90,min,max,count,missing}
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_in_total",
			Help:      "Rows entering a pipeline stage.",
		}, []string{"stage"}),
		RowsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_out_total",
			Help:      "Rows leaving a pipeline stage.",
		}, []string{"stage"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped because a required timestamp could not be parsed.",
		}, []string{"table", "column"}),
		NullValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "null_values_total",
			Help:      "Null cells observed in a stage's output column.",
		}, []string{"stage", "column"}),
		CityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_runs_total",
			Help:      "Per-city enrichment runs by outcome.",
		}, []string{"city", "outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that produced a canonical dataset.",
		}),
		CanonicalRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canonical_rows_total",
			Help:      "Canonical rows produced by source.",
		}, []string{"source"}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Canonical records written to a sink.",
		}, []string{"sink"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed sink writes.",
		}, []string{"sink"}),
		ETA: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eta_minutes",
			Help:      "ETA target distribution of the latest canonical dataset.",
		}, []string{"stat"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RowsIn, m.RowsOut, m.RowsDropped, m.NullValues,
		m.CityRuns, m.RunDuration, m.PipelineRunning, m.LastSuccess,
		m.CanonicalRows, m.RecordsLoaded, m.LoadErrors, m.ETA,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
