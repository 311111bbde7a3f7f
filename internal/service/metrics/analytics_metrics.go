package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "capflow",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of flow endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capflow",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by flow endpoint",
		},
		[]string{"endpoint"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capflow",
			Subsystem: "dashboard",
			Name:      "refresh_total",
			Help:      "Dashboard refreshes by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	TapeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "capflow",
			Subsystem: "ws",
			Name:      "tape_subscribers",
			Help:      "Connected tape websocket clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, RefreshTotal, TapeSubscribers)
	})
}
