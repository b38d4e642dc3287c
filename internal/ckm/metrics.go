package ckm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for outbound CKM requests.
//
// Metrics:
//   - openehr_ckm_requests_total{method,status} - CKM requests by outcome
//   - openehr_ckm_request_duration_seconds{method} - CKM request latency
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openehr_ckm_requests_total",
				Help: "Total number of CKM API requests",
			},
			[]string{"method", "status"}, // status is the HTTP code or "error"
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openehr_ckm_request_duration_seconds",
				Help:    "Duration of CKM API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
	}
}
