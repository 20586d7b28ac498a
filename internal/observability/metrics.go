// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the authd Prometheus metrics.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	HashDuration  *prometheus.HistogramVec

	reg prometheus.Registerer
}

// PoolGauge is the view of a worker pool exported as gauges.
type PoolGauge interface {
	InUse() int64
	Workers() int
}

// NewMetrics creates and registers the authd metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_requests_total",
				Help: "Total number of auth requests by type and HTTP status",
			},
			[]string{"type", "status"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authd_password_hash_duration_seconds",
				Help:    "Wall-clock time of password hash and verify operations",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		reg: reg,
	}
	reg.MustRegister(m.RequestsTotal, m.HashDuration)
	return m
}

// ObserveHash records one hash pool operation. Its signature matches auth.HashObserver.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	m.HashDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordRequest counts one handled request.
func (m *Metrics) RecordRequest(kind string, status int) {
	m.RequestsTotal.WithLabelValues(kind, statusLabel(status)).Inc()
}

// RegisterPool exports the pool occupancy and capacity. Call it once per pool.
func (m *Metrics) RegisterPool(p PoolGauge) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "authd_hash_pool_in_use",
			Help: "Number of hash pool workers currently busy",
		}, func() float64 { return float64(p.InUse()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "authd_hash_pool_workers",
			Help: "Configured hash pool capacity",
		}, func() float64 { return float64(p.Workers()) }),
	)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
