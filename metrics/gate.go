package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GateCollector counts admission decisions of the RPC gate per method.
type GateCollector struct {
	admitted        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	batchesRejected prometheus.Counter
}

func NewGateCollector(reg prometheus.Registerer) *GateCollector {
	f := promauto.With(reg)
	return &GateCollector{
		admitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemRPC,
			Name:      "gate_admitted_total",
			Help:      "guarded calls admitted",
		}, []string{LabelMethod}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemRPC,
			Name:      "gate_rejected_total",
			Help:      "guarded calls rejected with an overload error",
		}, []string{LabelMethod}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemRPC,
			Name:      "gate_in_flight",
			Help:      "guarded calls currently executing",
		}, []string{LabelMethod}),
		batchesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemRPC,
			Name:      "batch_response_too_large_total",
			Help:      "batches whose joined response exceeded the size ceiling",
		}),
	}
}

func (c *GateCollector) Admitted(method string, inFlight int64) {
	c.admitted.WithLabelValues(method).Inc()
	c.inFlight.WithLabelValues(method).Set(float64(inFlight))
}

func (c *GateCollector) Rejected(method string) {
	c.rejected.WithLabelValues(method).Inc()
}

func (c *GateCollector) Released(method string, inFlight int64) {
	c.inFlight.WithLabelValues(method).Set(float64(inFlight))
}

func (c *GateCollector) BatchTooLarge() { c.batchesRejected.Inc() }
