// Package builder assembles Load blocks from pending transactions.
//
// A build runs a small state machine: it validates the attributes against
// the parent, opens a state view, selects candidates under the gas, size
// and blob budgets, then seals the block if it earns more than the best
// payload known so far. Service drives repeated builds per payload job.
package builder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/metrics"
)

// Outcome is the terminal state of one build.
type Outcome uint8

const (
	// Better means the sealed payload earns strictly more than the best known.
	Better Outcome = iota + 1
	// Aborted means nothing improved on the best known payload.
	Aborted
	// Cancelled means the build was interrupted and produced nothing.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Better:
		return "better"
	case Aborted:
		return "aborted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is what a build returns when it does not fail.
type Result struct {
	Outcome Outcome
	// Payload is set only for Better.
	Payload *inter.BuiltPayload
	// Fees accrued by the selected transactions. Set for Better and Aborted.
	Fees *uint256.Int
}

// Config tunes block assembly.
type Config struct {
	// GasLimit is the gas limit the builder steers toward.
	GasLimit uint64
	// ExtraData overrides the genesis extra data when set.
	ExtraData []byte
}

// DefaultConfig returns the builder settings used by the node.
func DefaultConfig() Config {
	return Config{GasLimit: load.ExecutionGasLimit}
}

// Builder runs the assembly state machine. It keeps no per-build state and
// may run any number of builds concurrently.
type Builder struct {
	params  *load.Params
	chain   Chain
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.BuilderCollector
}

func New(p *load.Params, chain Chain, cfg Config, log logrus.FieldLogger, m *metrics.BuilderCollector) *Builder {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = load.ExecutionGasLimit
	}
	if len(cfg.ExtraData) == 0 {
		cfg.ExtraData = p.ExtraData()
	}
	if m == nil {
		m = metrics.NewBuilderCollector(nil)
	}
	return &Builder{
		params:  p,
		chain:   chain,
		cfg:     cfg,
		log:     log.WithField("component", "builder"),
		metrics: m,
	}
}

// PendingHeader derives the header of the block built on parent with attrs,
// before any transaction is applied.
func (b *Builder) PendingHeader(parent *types.Header, attrs *inter.BuildAttributes) *types.Header {
	cfg := b.params.ChainConfig()
	ts := attrs.Timestamp()

	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   core.CalcGasLimit(parent.GasLimit, b.cfg.GasLimit),
		Time:       ts,
		Coinbase:   attrs.FeeRecipient(),
		MixDigest:  attrs.PrevRandao(),
		Extra:      common.CopyBytes(b.cfg.ExtraData),
		Difficulty: new(big.Int),
		BaseFee:    eip1559.CalcBaseFee(cfg, parent),
	}
	if b.params.IsCancun(ts) {
		excess := eip4844.CalcExcessBlobGas(cfg, parent, ts)
		header.ExcessBlobGas = &excess
		header.BlobGasUsed = new(uint64)
		header.ParentBeaconRoot = attrs.BeaconRoot()
		if header.ParentBeaconRoot == nil {
			header.ParentBeaconRoot = new(common.Hash)
		}
	}
	return header
}

// Build runs one assembly attempt on parent. best is the fee total of the
// best payload known for these attributes, nil when there is none yet.
//
// Single-candidate failures never surface: the candidate is skipped and
// selection continues. A returned error means the build is void.
func (b *Builder) Build(ctx context.Context, parent *types.Header, attrs *inter.BuildAttributes, src CandidateSource, best *uint256.Int) (res *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "failed"
		if err == nil {
			outcome = res.Outcome.String()
		}
		b.metrics.BuildFinished(outcome, time.Since(start).Seconds())
	}()

	// Initializing
	if err := guard.CheckAttributes(b.params, attrs.PrevRandao(), attrs.Timestamp(), parent.Time); err != nil {
		return nil, err
	}
	header := b.PendingHeader(parent, attrs)
	env, err := b.chain.OpenEnv(parent, header)
	if err != nil {
		return nil, fmt.Errorf("open state at %s: %w", parent.Hash(), err)
	}

	var withdrawals types.Withdrawals
	if b.params.IsShanghai(header.Time) {
		withdrawals = attrs.Withdrawals()
		if withdrawals == nil {
			withdrawals = types.Withdrawals{}
		}
	}
	wsize, err := rlp.EncodeToBytes(withdrawals)
	if err != nil {
		return nil, fmt.Errorf("encode withdrawals: %w", err)
	}

	sel := &selection{
		b:       b,
		header:  header,
		env:     env,
		src:     src,
		acc:     newAccumulator(uint64(len(wsize))),
		blobCap: b.params.BlobCap(header.Time),
		osaka:   b.params.IsOsaka(header.Time),
	}
	if header.BaseFee != nil {
		sel.baseFee, _ = uint256.FromBig(header.BaseFee)
	}

	// Selecting
	if err := sel.run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &Result{Outcome: Cancelled}, nil
		}
		return nil, err
	}

	// Sealing
	acc := sel.acc
	if best != nil && !acc.fees.Gt(best) {
		return &Result{Outcome: Aborted, Fees: acc.fees}, nil
	}
	payload, err := b.seal(env, header, attrs, acc, withdrawals, sel.blobCap)
	if err != nil {
		return nil, err
	}
	b.metrics.PayloadSealed(payload.Sidecars().BlobCount(), acc.gasUsed)
	b.log.WithFields(logrus.Fields{
		"number": header.Number,
		"hash":   payload.Block().Hash(),
		"txs":    len(acc.txs),
		"blobs":  acc.blobs,
		"gas":    acc.gasUsed,
		"fees":   acc.fees,
	}).Debug("Sealed payload")
	return &Result{Outcome: Better, Payload: payload, Fees: acc.fees}, nil
}

func (b *Builder) seal(env Env, header *types.Header, attrs *inter.BuildAttributes, acc *accumulator, withdrawals types.Withdrawals, blobCap uint64) (*inter.BuiltPayload, error) {
	if acc.blobs > blobCap {
		return nil, fmt.Errorf("accumulated %d blobs over cap %d", acc.blobs, blobCap)
	}
	header.GasUsed = acc.gasUsed
	if header.BlobGasUsed != nil {
		used := acc.blobs * params.BlobTxBlobGasPerBlob
		header.BlobGasUsed = &used
	}
	block, requests, err := env.Finalize(header, acc.txs, acc.receipts, withdrawals)
	if err != nil {
		return nil, fmt.Errorf("finalize block: %w", err)
	}
	if !b.params.IsPrague(header.Time) {
		requests = nil
	}
	if b.params.IsOsaka(header.Time) && block.Size() > load.MaxRLPBlockSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBlockTooLarge, block.Size(), load.MaxRLPBlockSize)
	}
	sidecars, err := inter.NewBlobSidecars(acc.sidecars)
	if err != nil {
		return nil, err
	}
	return inter.NewBuiltPayload(attrs.ID(), block, acc.fees, requests, sidecars), nil
}

// selection is the Selecting state of one build.
type selection struct {
	b       *Builder
	header  *types.Header
	baseFee *uint256.Int
	env     Env
	src     CandidateSource
	acc     *accumulator
	blobCap uint64
	osaka   bool
}

func (s *selection) reject(tx *types.Transaction, reason string, err error) {
	s.b.metrics.CandidateSkipped(reason)
	s.src.MarkInvalid(tx, err)
}

func (s *selection) run(ctx context.Context) error {
	p := s.b.params
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := s.src.Next()
		if tx == nil {
			return nil
		}

		if s.acc.gasUsed+tx.Gas() > s.header.GasLimit {
			s.reject(tx, "gas", ErrGasLimitExceeded)
			continue
		}
		if s.osaka && s.acc.size+tx.Size() > load.MaxRLPBlockSize {
			s.reject(tx, "size", ErrBlockSizeExceeded)
			continue
		}

		var sidecar *types.BlobTxSidecar
		if n := uint64(len(tx.BlobHashes())); n > 0 {
			if max := p.Blobs().MaxPerTx; n > max {
				s.reject(tx, "blobs", &BlobLimitError{Have: n, Permitted: max, PerTx: true})
				continue
			}
			if s.acc.blobs+n > s.blobCap {
				s.reject(tx, "blobs", &BlobLimitError{Have: s.acc.blobs + n, Permitted: s.blobCap})
				continue
			}
			if sidecar = s.src.Sidecar(tx); sidecar == nil {
				s.reject(tx, "sidecar", ErrMissingSidecar)
				continue
			}
			if err := guard.CheckSidecarForFork(p, s.header.Time, inter.SchemeOf(sidecar)); err != nil {
				s.reject(tx, "sidecar", err)
				continue
			}
		}

		receipt, err := s.env.Apply(tx)
		if err != nil {
			var invalid *InvalidTxError
			switch {
			case errors.Is(err, core.ErrNonceTooLow):
				s.b.metrics.CandidateSkipped("nonce")
				continue
			case errors.As(err, &invalid):
				s.reject(tx, "execution", err)
				continue
			default:
				return fmt.Errorf("execute %s: %w", tx.Hash(), err)
			}
		}

		s.acc.add(tx, receipt, sidecar, effectiveTip(tx, s.baseFee))
		if sidecar != nil && s.acc.blobs == s.blobCap {
			s.src.SkipBlobs()
		}
	}
}
