package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/catalyst"
	"github.com/rony4d/go-load/ethapi"
	"github.com/rony4d/go-load/evmcore"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/load/genesis"
	"github.com/rony4d/go-load/metrics"
	"github.com/rony4d/go-load/rpc/gate"
	"github.com/rony4d/go-load/txpool"
)

// Node owns every component of a running execution client.
type Node struct {
	cfg    Config
	log    *logrus.Logger
	params *load.Params

	chain   *evmcore.Backend
	pool    *txpool.Pool
	service *builder.Service
	engine  *catalyst.ConsensusAPI
	eth     *ethapi.PublicAPI
	gate    *gate.Gate
	secret  []byte

	registry *prometheus.Registry
}

// NewNode wires the components described by cfg. Nothing listens until Run.
func NewNode(cfg Config, log *logrus.Logger) (*Node, error) {
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return nil, err
	}
	p, err := genesis.Load(cfg.Node.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain %q: %w", cfg.Node.Chain, err)
	}
	log.WithFields(logrus.Fields{"node": cfg.Node.Name, "preset": cfg.Node.Preset}).Info(p.String())

	var (
		reg      prometheus.Registerer
		registry *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
		reg = registry
	}

	chain, err := evmcore.NewBackend(p, log)
	if err != nil {
		return nil, err
	}
	pool, err := txpool.New(txpool.Config{
		PriceLimit:    cfg.TxPool.PriceLimit,
		PriceBump:     cfg.TxPool.PriceBump,
		GlobalSlots:   cfg.TxPool.GlobalSlots,
		AccountSlots:  cfg.TxPool.AccountSlots,
		BlobCacheSize: cfg.TxPool.BlobCacheSize,
		VerifyKZG:     cfg.TxPool.VerifyKZG,
	}, p, chain, log, metrics.NewTxPoolCollector(reg))
	if err != nil {
		chain.Stop()
		return nil, err
	}

	bcfg := builder.Config{GasLimit: cfg.Builder.GasLimit}
	if cfg.Builder.ExtraData != "" {
		bcfg.ExtraData = common.FromHex(cfg.Builder.ExtraData)
	}
	bld := builder.New(p, chain, bcfg, log, metrics.NewBuilderCollector(reg))
	service, err := builder.NewService(bld, func(pending *types.Header) builder.CandidateSource {
		return pool.Best(pending)
	}, builder.ServiceConfig{
		Interval:  cfg.Builder.Interval.Duration,
		Deadline:  cfg.Builder.Deadline.Duration,
		StoreSize: cfg.Builder.PayloadStoreSize,
	})
	if err != nil {
		chain.Stop()
		return nil, err
	}

	secretPath := cfg.Engine.JWTSecret
	if secretPath == "" {
		secretPath = filepath.Join(cfg.Node.DataDir, catalyst.JWTSecretFile)
	}
	secret, err := catalyst.ObtainJWTSecret(secretPath, log)
	if err != nil {
		service.Stop()
		chain.Stop()
		return nil, err
	}

	return &Node{
		cfg:     cfg,
		log:     log,
		params:  p,
		chain:   chain,
		pool:    pool,
		service: service,
		engine:  catalyst.NewConsensusAPI(p, chain, service, pool.Blobs(), log, metrics.NewEngineCollector(reg)),
		eth: ethapi.NewPublicAPI(p.ChainID(), chain, pool, ethapi.Config{
			SyncTimeout:    cfg.HTTP.SyncTimeout.Duration,
			MaxSyncTimeout: cfg.HTTP.MaxSyncTimeout.Duration,
		}, log),
		gate: gate.New(gate.Config{
			SendRawTxLimit:           cfg.Gate.SendRawTxLimit,
			GetTransactionCountLimit: cfg.Gate.GetTransactionCountLimit,
			SendRawTxSyncLimit:       cfg.Gate.SendRawTxSyncLimit,
			BatchResponseLimit:       cfg.Gate.BatchResponseLimit,
		}, log, metrics.NewGateCollector(reg)),
		secret:   secret,
		registry: registry,
	}, nil
}

// Run serves the Engine API, the public RPC and metrics endpoints and keeps
// the pool in step with the chain until ctx is done or one of them fails.
func (n *Node) Run(ctx context.Context) error {
	engineHandler, engineRPC, err := catalyst.NewHandler(n.engine, n.secret)
	if err != nil {
		return err
	}
	defer engineRPC.Stop()

	var public http.Handler
	if n.cfg.HTTP.Enabled {
		handler, publicRPC, err := n.publicHandler()
		if err != nil {
			return err
		}
		defer publicRPC.Stop()
		public = handler
	}

	heads := make(chan *types.Block, 64)
	sub := n.chain.SubscribeHeads(heads)
	defer sub.Unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.pool.Run(ctx, heads) })
	g.Go(func() error {
		return serve(ctx, n.log.WithField("server", "engine"), hostPort(n.cfg.Engine.Addr, n.cfg.Engine.Port), engineHandler)
	})
	if public != nil {
		g.Go(func() error {
			return serve(ctx, n.log.WithField("server", "http"), hostPort(n.cfg.HTTP.Addr, n.cfg.HTTP.Port), public)
		})
	}
	if n.registry != nil {
		g.Go(func() error {
			return metrics.NewServer(n.log, hostPort(n.cfg.Metrics.Addr, n.cfg.Metrics.Port), n.registry).Run(ctx)
		})
	}
	g.Go(func() error {
		select {
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return nil
		}
	})
	return g.Wait()
}

// publicHandler serves the eth namespace behind CORS and the admission gate.
func (n *Node) publicHandler() (http.Handler, *rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ethapi.Namespace, n.eth); err != nil {
		return nil, nil, fmt.Errorf("could not register eth API: %w", err)
	}
	mux := chi.NewRouter()
	if len(n.cfg.HTTP.CORSDomains) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: n.cfg.HTTP.CORSDomains,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			MaxAge:         600,
		}))
	}
	mux.Use(n.gate.Middleware)
	mux.Post("/", srv.ServeHTTP)
	return mux, srv, nil
}

// Close stops the payload jobs and closes the chain.
func (n *Node) Close() {
	n.service.Stop()
	n.chain.Stop()
}

func hostPort(addr string, port int) string {
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// serve runs an HTTP server on addr until ctx is done.
func serve(ctx context.Context, log logrus.FieldLogger, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.WithField("address", addr).Info("HTTP server started")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
