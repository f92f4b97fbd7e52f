package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of outbound document fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "viewer_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_op_total",
			Help: "Session store operations by result.",
		},
		[]string{"op", "result"},
	)

	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Latency of session store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	documentLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_loads_total",
			Help: "Documents applied to sessions by source, mode and outcome.",
		},
		[]string{"source", "mode", "outcome"},
	)

	documentFeatures = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_features",
			Help:    "Number of features in a session after a document change.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Viewing sessions held in memory.",
		},
	)

	seriesCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "series_cache_total",
			Help: "Time-series cache lookups by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ingestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Kafka document messages by outcome.",
		},
		[]string{"outcome"},
	)

	viewEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_events_total",
			Help: "Selection events by publish outcome.",
		},
		[]string{"outcome"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		buildInfo, storeOps, storeOpDuration, documentLoads, documentFeatures,
		sessionsActive, seriesCache, ingestMessages, viewEvents,
	}
}

// Init registers the collectors on reg in addition to the default registry
// and switches recording on or off. A nil reg only toggles recording.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveStoreOp records one store call. Result is "ok", "miss" or "error".
func ObserveStoreOp(op, result string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	storeOps.WithLabelValues(op, result).Inc()
	storeOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveDocument(source, mode, outcome string, features int) {
	if !enabled.Load() {
		return
	}
	documentLoads.WithLabelValues(source, mode, outcome).Inc()
	if outcome == "ok" {
		documentFeatures.Observe(float64(features))
	}
}

func SetSessions(n int) {
	if !enabled.Load() {
		return
	}
	sessionsActive.Set(float64(n))
}

func IncSeriesCache(kind string, hit bool) {
	if !enabled.Load() {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	seriesCache.WithLabelValues(kind, outcome).Inc()
}

func IncIngest(outcome string) {
	if !enabled.Load() {
		return
	}
	ingestMessages.WithLabelValues(outcome).Inc()
}

func IncViewEvent(outcome string) {
	if !enabled.Load() {
		return
	}
	viewEvents.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
