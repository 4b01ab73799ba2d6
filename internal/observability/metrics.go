package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wildfire_water"

// Metrics holds the Prometheus counters, histograms, and gauges for an extraction run.
type Metrics struct {
	FeaturesProcessed *prometheus.CounterVec // labels: status
	PipelineRunning   prometheus.Gauge

	// Imagery metrics.
	ImagesRetrieved      prometheus.Counter
	ImagesCloudFiltered  prometheus.Counter
	CompositesPerFeature prometheus.Histogram
	RemoteCallDuration   *prometheus.HistogramVec // labels: op={search,reduce}

	// Record metrics.
	DateErrors        prometheus.Counter
	DegenerateRecords prometheus.Counter
	RecordsWritten    prometheus.Counter
	FeatureDuration   prometheus.Histogram
}

// NewMetrics creates and registers all extraction metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeaturesProcessed,
		m.PipelineRunning,
		m.ImagesRetrieved,
		m.ImagesCloudFiltered,
		m.CompositesPerFeature,
		m.RemoteCallDuration,
		m.DateErrors,
		m.DegenerateRecords,
		m.RecordsWritten,
		m.FeatureDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeaturesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_processed_total",
			Help:      "Features processed by outcome status.",
		}, []string{"status"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
		ImagesRetrieved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_retrieved_total",
			Help:      "Scenes returned by imagery searches.",
		}),
		ImagesCloudFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_cloud_filtered_total",
			Help:      "Scenes dropped by the cloud coverage filter.",
		}),
		CompositesPerFeature: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composites_per_feature",
			Help:      "Number of same-day composites per feature.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 80},
		}),
		RemoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Imagery backend call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op"}),
		DateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_errors_total",
			Help:      "Composite dates skipped because their reduction failed.",
		}),
		DegenerateRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_records_total",
			Help:      "All-zero records dropped from output.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Per-date records written to output files.",
		}),
		FeatureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feature_duration_seconds",
			Help:      "Wall time of one feature job.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}
