package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.GaugeVec
	ingested     *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	bucketFlow   *prometheus.GaugeVec
	bucketZ      *prometheus.GaugeVec
	surviving    prometheus.Gauge
	latency      *prometheus.HistogramVec
}

var (
	recorderOnce sync.Once
	recorder     *Recorder
)

// New returns the process-wide Prometheus recorder.
func New() *Recorder {
	recorderOnce.Do(func() {
		recorder = &Recorder{
			observations: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "capflow_observations_loaded",
					Help: "Observations in the currently loaded series",
				},
				[]string{"provider"},
			),
			ingested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capflow_observations_ingested_total",
					Help: "Observations written to the store by ingestion",
				},
				[]string{"topic"},
			),
			errorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capflow_errors_total",
					Help: "Total number of errors encountered",
				},
				[]string{"type"},
			),
			bucketFlow: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "capflow_bucket_flow_5d_usd",
					Help: "Latest 5d net flow per bucket",
				},
				[]string{"bucket"},
			),
			bucketZ: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "capflow_bucket_unusualness_zscore",
					Help: "Latest unusualness z-score per bucket",
				},
				[]string{"bucket"},
			),
			surviving: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "capflow_buckets_surviving",
					Help: "Buckets left after the default noise filter",
				},
			),
			latency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "capflow_operation_duration_seconds",
					Help:    "Duration of operations in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
		}
	})
	return recorder
}

// RecordObservations records the size of the loaded series.
func (r *Recorder) RecordObservations(provider string, n int) {
	r.observations.WithLabelValues(provider).Set(float64(n))
}

// RecordIngested counts rows written by an ingestion topic.
func (r *Recorder) RecordIngested(topic string, n int) {
	r.ingested.WithLabelValues(topic).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBucketFlow records the latest 5d flow and z-score of a bucket.
func (r *Recorder) RecordBucketFlow(bucket string, flow5d, z float64) {
	r.bucketFlow.WithLabelValues(bucket).Set(flow5d)
	r.bucketZ.WithLabelValues(bucket).Set(z)
}

// ResetBucketFlows drops every per-bucket series so buckets that left the
// loaded view stop reporting.
func (r *Recorder) ResetBucketFlows() {
	r.bucketFlow.Reset()
	r.bucketZ.Reset()
}

// RecordSurvivingBuckets records how many buckets passed the noise filter.
func (r *Recorder) RecordSurvivingBuckets(n int) {
	r.surviving.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
