package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineCollector tracks Engine API latency and blob retrieval.
type EngineCollector struct {
	latency        *prometheus.HistogramVec
	blobsRequested prometheus.Counter
	blobsHit       prometheus.Counter
	blobsMissed    prometheus.Counter
}

func NewEngineCollector(reg prometheus.Registerer) *EngineCollector {
	f := promauto.With(reg)
	return &EngineCollector{
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemEngine,
			Name:      "call_duration_seconds",
			Help:      "latency of forkchoiceUpdated, getPayload and newPayload",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{LabelMethod}),
		blobsRequested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemEngine,
			Name:      "get_blobs_requested_total",
			Help:      "versioned hashes asked for through getBlobs",
		}),
		blobsHit: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemEngine,
			Name:      "get_blobs_hit_total",
			Help:      "versioned hashes served from the blob cache",
		}),
		blobsMissed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemEngine,
			Name:      "get_blobs_missed_total",
			Help:      "versioned hashes not found in the blob cache",
		}),
	}
}

// Observe records the latency of method measured from start.
func (c *EngineCollector) Observe(method string, start time.Time) {
	c.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (c *EngineCollector) BlobsServed(requested, hit int) {
	c.blobsRequested.Add(float64(requested))
	c.blobsHit.Add(float64(hit))
	c.blobsMissed.Add(float64(requested - hit))
}
