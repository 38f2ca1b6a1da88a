// Package metrics exposes the process's Prometheus collectors. Collectors are
// package-level so the hot paths can increment them without plumbing a
// registry through every constructor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "Frames received from the market data feed",
	})
	FeedParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_parse_failures_total",
		Help: "Frames dropped because they could not be parsed",
	})
	FeedReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_reconnects_total",
		Help: "Reconnection attempts against the feed",
	})
	BookStaleness = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "book_staleness_seconds",
		Help: "Seconds since the last applied book snapshot",
	})
	BookUpdateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "book_update_latency_ms",
		Help:    "Receive-to-applied latency per snapshot in ms",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	EstimateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "estimate_duration_ms",
		Help:    "Wall time of one cost estimate in ms",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	EstimatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "estimates_total",
		Help: "Cost estimates served",
	})
	TrainingSamplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "training_samples_total",
		Help: "Training samples ingested by model",
	}, []string{"model"})
)

// Init builds the process registry with all collectors registered.
func Init() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		FeedMessages, FeedParseFailures, FeedReconnects,
		BookStaleness, BookUpdateLatency,
		EstimateDuration, EstimatesTotal, TrainingSamplesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
