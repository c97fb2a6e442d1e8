package backend

import "time"

// Collector receives client-side request metrics.
type Collector interface {
	RecordRequest(endpoint string, outcome string, duration time.Duration)
	RecordCollapsed(endpoint string)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState mirrors the breaker state for metrics export.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the lowercase state name.
func (state CircuitState) String() string {
	switch state {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Request outcomes reported to a Collector.
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeServerError = "server_error"
	OutcomeTransport   = "transport_error"
	OutcomeCircuitOpen = "circuit_open"
)

// NoOpCollector discards all metrics.
type NoOpCollector struct{}

// RecordRequest does nothing.
func (NoOpCollector) RecordRequest(endpoint string, outcome string, duration time.Duration) {}

// RecordCollapsed does nothing.
func (NoOpCollector) RecordCollapsed(endpoint string) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
