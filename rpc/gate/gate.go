// Package gate bounds the number of concurrently executing calls of hot
// public RPC methods. A call over the limit is rejected at once with an
// overload error; nothing is queued.
package gate

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/metrics"
)

type methodGate struct {
	limit    uint64
	inFlight atomic.Uint64
}

// Gate is safe for concurrent use.
type Gate struct {
	cfg     Config
	methods map[string]*methodGate
	log     logrus.FieldLogger
	metrics *metrics.GateCollector
}

func New(cfg Config, log logrus.FieldLogger, m *metrics.GateCollector) *Gate {
	if m == nil {
		m = metrics.NewGateCollector(nil)
	}
	g := &Gate{
		cfg:     cfg,
		methods: make(map[string]*methodGate),
		log:     log.WithField("component", "rpc-gate"),
		metrics: m,
	}
	for method, limit := range cfg.Limits() {
		if limit > 0 {
			g.methods[method] = &methodGate{limit: limit}
		}
	}
	return g
}

// Guarded reports whether calls of method pass through the gate.
func (g *Gate) Guarded(method string) bool {
	_, ok := g.methods[method]
	return ok
}

// InFlight returns the number of admitted calls of method not yet released.
func (g *Gate) InFlight(method string) uint64 {
	mg, ok := g.methods[method]
	if !ok {
		return 0
	}
	return mg.inFlight.Load()
}

// TryAcquire admits a call of method if it is under its limit. Unguarded
// methods get a nil permit and no error. The returned permit must be
// released when the call returns, whatever its outcome.
func (g *Gate) TryAcquire(method string) (*Permit, error) {
	mg, ok := g.methods[method]
	if !ok {
		return nil, nil
	}
	for {
		cur := mg.inFlight.Load()
		if cur >= mg.limit {
			g.metrics.Rejected(method)
			g.log.WithFields(logrus.Fields{"method": method, "limit": mg.limit}).Debug("Rejected overloaded call")
			return nil, &OverloadError{Method: method, Limit: mg.limit}
		}
		if mg.inFlight.CompareAndSwap(cur, cur+1) {
			g.metrics.Admitted(method, int64(cur+1))
			return &Permit{gate: g, method: method, mg: mg}, nil
		}
	}
}

func (g *Gate) release(method string, mg *methodGate) {
	for {
		cur := mg.inFlight.Load()
		if cur == 0 {
			g.metrics.Released(method, 0)
			return
		}
		if mg.inFlight.CompareAndSwap(cur, cur-1) {
			g.metrics.Released(method, int64(cur-1))
			return
		}
	}
}

// Permit is one admitted call. Release may be called any number of times
// and on a nil permit; only the first call on a real permit counts.
type Permit struct {
	gate   *Gate
	method string
	mg     *methodGate
	once   sync.Once
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() { p.gate.release(p.method, p.mg) })
}
