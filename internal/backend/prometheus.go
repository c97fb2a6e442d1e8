package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports client metrics through a Prometheus registry.
type PrometheusCollector struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	collapsed    *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
	circuitOpens *prometheus.CounterVec
}

// NewPrometheusCollector builds the collector and registers it with registerer.
func NewPrometheusCollector(namespace string, registerer prometheus.Registerer) (*PrometheusCollector, error) {
	collector := &PrometheusCollector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend request latency",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		),
		collapsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_collapsed_total",
				Help:      "Concurrent identical reads served by an in-flight request",
			},
			[]string{"endpoint"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_circuit_opens_total",
				Help:      "Number of times the circuit breaker opened",
			},
			[]string{"breaker"},
		),
	}
	if registerer != nil {
		for _, metric := range []prometheus.Collector{
			collector.requests,
			collector.latency,
			collector.collapsed,
			collector.circuitState,
			collector.circuitOpens,
		} {
			if err := registerer.Register(metric); err != nil {
				return nil, err
			}
		}
	}
	return collector, nil
}

// RecordRequest counts a request and observes its latency.
func (collector *PrometheusCollector) RecordRequest(endpoint string, outcome string, duration time.Duration) {
	collector.requests.WithLabelValues(endpoint, outcome).Inc()
	collector.latency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCollapsed counts a read that joined an in-flight request.
func (collector *PrometheusCollector) RecordCollapsed(endpoint string) {
	collector.collapsed.WithLabelValues(endpoint).Inc()
}

// RecordCircuitState records the current breaker state.
func (collector *PrometheusCollector) RecordCircuitState(name string, state CircuitState) {
	collector.circuitState.WithLabelValues(name).Set(float64(state))
	if state == CircuitOpen {
		collector.circuitOpens.WithLabelValues(name).Inc()
	}
}
