package builder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/metrics"
)

// ServiceConfig controls how long and how often payload jobs rebuild.
type ServiceConfig struct {
	// Interval between two build attempts of the same job.
	Interval time.Duration
	// Deadline after which a job stops improving its payload.
	Deadline time.Duration
	// StoreSize is the number of resolved payloads kept.
	StoreSize int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Interval:  time.Second,
		Deadline:  12 * time.Second,
		StoreSize: DefaultStoreSize,
	}
}

// Service runs one payload job per distinct set of build attributes. A job
// seeds an empty payload right away and keeps rebuilding until it is
// resolved or its deadline passes.
type Service struct {
	builder *Builder
	source  SourceFunc
	store   *PayloadStore
	cfg     ServiceConfig
	log     logrus.FieldLogger
	metrics *metrics.BuilderCollector

	mu   sync.Mutex
	jobs map[inter.PayloadID]*job
	wg   sync.WaitGroup
}

func NewService(b *Builder, source SourceFunc, cfg ServiceConfig) (*Service, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultServiceConfig().Interval
	}
	if cfg.StoreSize <= 0 {
		cfg.StoreSize = DefaultStoreSize
	}
	store, err := NewPayloadStore(cfg.StoreSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		builder: b,
		source:  source,
		store:   store,
		cfg:     cfg,
		log:     b.log.WithField("component", "payload-jobs"),
		metrics: b.metrics,
		jobs:    make(map[inter.PayloadID]*job),
	}, nil
}

type job struct {
	attrs  *inter.BuildAttributes
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	best *inter.BuiltPayload
}

func (j *job) payload() *inter.BuiltPayload {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.best
}

// Start validates attrs against their parent and launches a job for them.
// Starting attributes that already have a job, or a resolved payload, is a
// no-op.
func (s *Service) Start(attrs *inter.BuildAttributes) error {
	id := attrs.ID()

	s.mu.Lock()
	_, running := s.jobs[id]
	s.mu.Unlock()
	if running || s.store.Contains(id) {
		return nil
	}

	parent := s.builder.chain.HeaderByHash(attrs.Parent())
	if parent == nil {
		return ErrUnknownParent
	}
	if err := guard.CheckAttributes(s.builder.params, attrs.PrevRandao(), attrs.Timestamp(), parent.Time); err != nil {
		return err
	}
	seed, err := s.builder.Build(context.Background(), parent, attrs, EmptySource(), nil)
	if err != nil {
		return err
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.Deadline > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.Deadline)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	j := &job{attrs: attrs, cancel: cancel, done: make(chan struct{}), best: seed.Payload}

	s.mu.Lock()
	if _, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.jobs[id] = j
	s.mu.Unlock()

	s.metrics.JobStarted()
	s.wg.Add(1)
	go s.run(ctx, j, parent)

	s.log.WithFields(logrus.Fields{
		"id":        id,
		"parent":    attrs.Parent(),
		"timestamp": attrs.Timestamp(),
	}).Info("Started payload job")
	return nil
}

func (s *Service) run(ctx context.Context, j *job, parent *types.Header) {
	defer s.wg.Done()
	defer s.metrics.JobFinished()
	defer close(j.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.retire(j)
			}
			return
		case <-ticker.C:
			s.improve(ctx, j, parent)
		}
	}
}

func (s *Service) improve(ctx context.Context, j *job, parent *types.Header) {
	best := j.payload()
	pending := s.builder.PendingHeader(parent, j.attrs)
	res, err := s.builder.Build(ctx, parent, j.attrs, s.source(pending), best.Fees())
	if err != nil {
		s.log.WithError(err).WithField("id", j.attrs.ID()).Warn("Payload build failed")
		return
	}
	if res.Outcome != Better {
		return
	}
	j.mu.Lock()
	j.best = res.Payload
	j.mu.Unlock()
}

// retire moves the payload of a job past its deadline into the store.
func (s *Service) retire(j *job) {
	id := j.attrs.ID()
	s.mu.Lock()
	if s.jobs[id] == j {
		delete(s.jobs, id)
		s.store.Add(j.payload())
	}
	s.mu.Unlock()
}

// Resolve stops the job for id and returns its best payload. Later calls
// are served from the store.
func (s *Service) Resolve(id inter.PayloadID) (*inter.BuiltPayload, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		if p, ok := s.store.Get(id); ok {
			return p, nil
		}
		return nil, ErrUnknownPayload
	}
	j.cancel()
	<-j.done
	p := j.payload()
	s.store.Add(p)
	return p, nil
}

// Stop cancels every running job and waits for them to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	for _, j := range s.jobs {
		j.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
