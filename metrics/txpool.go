package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TxPoolCollector tracks pool admission and the blob cache.
type TxPoolCollector struct {
	rejected  *prometheus.CounterVec
	pending   prometheus.Gauge
	blobItems prometheus.Gauge
	blobBytes prometheus.Gauge
}

func NewTxPoolCollector(reg prometheus.Registerer) *TxPoolCollector {
	f := promauto.With(reg)
	return &TxPoolCollector{
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemTxPool,
			Name:      "rejected_total",
			Help:      "transactions refused at ingress, by reason",
		}, []string{"reason"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemTxPool,
			Name:      "pending",
			Help:      "transactions waiting for inclusion",
		}),
		blobItems: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemTxPool,
			Name:      "blob_cache_items",
			Help:      "blobs held in the versioned-hash cache",
		}),
		blobBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLoad,
			Subsystem: subsystemTxPool,
			Name:      "blob_cache_bytes",
			Help:      "approximate size of the blob cache in bytes",
		}),
	}
}

func (c *TxPoolCollector) Rejected(reason string) { c.rejected.WithLabelValues(reason).Inc() }
func (c *TxPoolCollector) SetPending(n int)       { c.pending.Set(float64(n)) }

func (c *TxPoolCollector) SetBlobCache(items int, bytes uint64) {
	c.blobItems.Set(float64(items))
	c.blobBytes.Set(float64(bytes))
}
