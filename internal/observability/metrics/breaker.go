package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerStateValues = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// breakerStates exposes provider circuit breakers as
// policy_radar_circuit_breaker_state{operation}: 0 closed, 1 half-open, 2 open.
type breakerStates struct {
	gauge *prometheus.GaugeVec
}

func newBreakerStates(factory promauto.Factory, labels prometheus.Labels) breakerStates {
	return breakerStates{gauge: factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "circuit_breaker_state",
		Help:        "Circuit breaker state per guarded operation (0 closed, 1 half-open, 2 open).",
		ConstLabels: labels,
	}, []string{"operation"})}
}

// ObserveBreakerState matches resilience.Config.OnStateChange.
func (b breakerStates) ObserveBreakerState(operation, state string) {
	value, ok := breakerStateValues[state]
	if !ok {
		return
	}
	b.gauge.WithLabelValues(operation).Set(value)
}
