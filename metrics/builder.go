package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BuilderCollector tracks block assembly runs.
type BuilderCollector struct {
	builds        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	buildDuration prometheus.Histogram
	payloadBlobs  prometheus.Gauge
	payloadGas    prometheus.Gauge
	activeJobs    prometheus.Gauge
}

// NewBuilderCollector registers the builder collectors with reg. A nil reg
// creates unregistered collectors.
func NewBuilderCollector(reg prometheus.Registerer) *BuilderCollector {
	f := promauto.With(reg)
	return &BuilderCollector{
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "builds_total",
			Help:      "number of assembly runs by outcome",
		}, []string{"outcome"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "candidates_skipped_total",
			Help:      "number of candidate transactions left out of a build, by reason",
		}, []string{"reason"}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "build_duration_seconds",
			Help:      "wall time of one assembly run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		payloadBlobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "payload_blobs",
			Help:      "blob count of the last sealed payload",
		}),
		payloadGas: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "payload_gas_used",
			Help:      "gas used by the last sealed payload",
		}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemBuilder,
			Name:      "active_jobs",
			Help:      "payload jobs still improving their payload",
		}),
	}
}

func (c *BuilderCollector) BuildFinished(outcome string, seconds float64) {
	c.builds.WithLabelValues(outcome).Inc()
	c.buildDuration.Observe(seconds)
}

func (c *BuilderCollector) CandidateSkipped(reason string) {
	c.skipped.WithLabelValues(reason).Inc()
}

func (c *BuilderCollector) PayloadSealed(blobs int, gasUsed uint64) {
	c.payloadBlobs.Set(float64(blobs))
	c.payloadGas.Set(float64(gasUsed))
}

func (c *BuilderCollector) JobStarted()  { c.activeJobs.Inc() }
func (c *BuilderCollector) JobFinished() { c.activeJobs.Dec() }
