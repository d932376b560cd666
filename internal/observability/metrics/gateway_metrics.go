// Package metrics exposes Prometheus instruments for billing health signals.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	GatewayOutcomeSuccess = "success"
	GatewayOutcomeDecline = "decline"
	GatewayOutcomeError   = "error"
)

// GatewayMetrics tracks payment gateway traffic and latency.
type GatewayMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayMetrics     *GatewayMetrics
)

// Gateway returns the singleton gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayMetrics = newGatewayMetrics(prometheus.DefaultRegisterer)
	})
	return gatewayMetrics
}

// ResetGatewayMetricsForTest resets the gateway metrics singleton for tests.
func ResetGatewayMetricsForTest() {
	gatewayMetricsOnce = sync.Once{}
	gatewayMetrics = nil
}

func newGatewayMetrics(registerer prometheus.Registerer) *GatewayMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_operations_total",
		Help: "Payment gateway operations by action and outcome.",
	}, []string{"action", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_operation_duration_seconds",
		Help:    "Payment gateway call latency by action.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})

	registerer.MustRegister(operations, duration)

	return &GatewayMetrics{
		operations: operations,
		duration:   duration,
	}
}

// IncOperation increments the operation counter for an action and outcome.
func (m *GatewayMetrics) IncOperation(action, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(action, outcome).Inc()
}

// ObserveDuration records gateway call latency for an action.
func (m *GatewayMetrics) ObserveDuration(action string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(action).Observe(duration.Seconds())
}
