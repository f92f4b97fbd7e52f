package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	proc     *prometheus.HistogramVec
	lagGauge prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_processing_seconds",
				Help:    "Time to apply one document message.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"mode"},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.proc, m.lagGauge)
	}
	return m
}
