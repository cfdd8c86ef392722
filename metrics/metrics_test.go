package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewGateCollector(reg)

	c.Admitted("eth_sendRawTransaction", 1)
	c.Admitted("eth_sendRawTransaction", 2)
	c.Rejected("eth_sendRawTransaction")
	c.Released("eth_sendRawTransaction", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.admitted.WithLabelValues("eth_sendRawTransaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected.WithLabelValues("eth_sendRawTransaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight.WithLabelValues("eth_sendRawTransaction")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.admitted.WithLabelValues("eth_getTransactionCount")))
}

func TestEngineCollector_blobs(t *testing.T) {
	c := NewEngineCollector(nil)
	c.BlobsServed(10, 7)
	assert.Equal(t, 10.0, testutil.ToFloat64(c.blobsRequested))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.blobsHit))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.blobsMissed))
}

func TestCollectorsRegisterOnce(t *testing.T) {
	reg := NewRegistry()
	NewBuilderCollector(reg)
	NewTxPoolCollector(reg)
	NewEngineCollector(reg)
	NewGateCollector(reg)
	assert.Panics(t, func() { NewGateCollector(reg) })
}

func TestServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	reg := NewRegistry()
	NewBuilderCollector(reg).JobStarted()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(logrus.New(), addr, reg).Run(ctx) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), "load_builder_active_jobs 1")

	cancel()
	require.NoError(t, <-done)
}
