package prometheus

import (
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MakeMetrics returns a call counter and a latency histogram registered with
// the default registry. Both are labelled by method unless labels are given.
func MakeMetrics(namespace, subsystem string, labels ...string) (metrics.Counter, metrics.Histogram) {
	if len(labels) == 0 {
		labels = []string{"method"}
	}

	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, labels)
	latency := kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, labels)

	return counter, latency
}

func NewGauge(namespace, subsystem, name, help string, labels ...string) metrics.Gauge {
	return kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}
