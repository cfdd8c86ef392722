// Package txpool holds pending transactions for block assembly.
//
// The pool validates transactions at ingress against the network blob
// budget and the active side-car scheme, keeps them per sender in nonce
// order, and hands the builder a fee-ordered iterator per build. Blobs are
// additionally cached by versioned hash for the Engine API getBlobs calls.
package txpool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/metrics"
)

// State reads account nonces at the current head.
type State interface {
	Nonce(addr common.Address) (uint64, error)
}

type pooledTx struct {
	tx      *types.Transaction // with side-car
	from    common.Address
	feeCap  *uint256.Int
	tipCap  *uint256.Int
	arrival time.Time
}

// Pool is safe for concurrent use.
type Pool struct {
	cfg     Config
	params  *load.Params
	state   State
	signer  types.Signer
	blobs   *BlobCache
	log     logrus.FieldLogger
	metrics *metrics.TxPoolCollector
	now     func() time.Time

	mu      sync.RWMutex
	all     map[common.Hash]*pooledTx
	senders map[common.Address]map[uint64]*pooledTx
}

func New(cfg Config, p *load.Params, state State, log logrus.FieldLogger, m *metrics.TxPoolCollector) (*Pool, error) {
	if cfg.BlobCacheSize == 0 {
		cfg.BlobCacheSize = BlobCacheSizeFor(p)
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = DefaultConfig().ReportInterval
	}
	blobs, err := NewBlobCache(cfg.BlobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob cache: %w", err)
	}
	if m == nil {
		m = metrics.NewTxPoolCollector(nil)
	}
	log = log.WithField("component", "txpool")
	log.WithFields(logrus.Fields{
		"blob_cache_size": cfg.BlobCacheSize,
		"target_blobs":    p.Blobs().Target,
	}).Info("Transaction pool initialized")
	return &Pool{
		cfg:     cfg,
		params:  p,
		state:   state,
		signer:  types.LatestSignerForChainID(p.ChainID()),
		blobs:   blobs,
		log:     log,
		metrics: m,
		now:     time.Now,
		all:     make(map[common.Hash]*pooledTx),
		senders: make(map[common.Address]map[uint64]*pooledTx),
	}, nil
}

// Add validates tx and inserts it, replacing a pooled transaction of the
// same sender and nonce when tx pays enough more.
func (p *Pool) Add(tx *types.Transaction) error {
	err := p.add(tx)
	if err != nil {
		p.metrics.Rejected(rejectReason(err))
	}
	return err
}

func (p *Pool) add(tx *types.Transaction) error {
	if p.Has(tx.Hash()) {
		return ErrAlreadyKnown
	}
	from, err := types.Sender(p.signer, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	if err := p.validateBlobs(tx); err != nil {
		return err
	}
	if tx.GasFeeCapIntCmp(new(big.Int).SetUint64(p.cfg.PriceLimit)) < 0 {
		return fmt.Errorf("%w: fee cap %v below limit %d", ErrUnderpriced, tx.GasFeeCap(), p.cfg.PriceLimit)
	}
	next, err := p.state.Nonce(from)
	if err != nil {
		return fmt.Errorf("failed to read nonce: %w", err)
	}
	if tx.Nonce() < next {
		return fmt.Errorf("%w: address %v, tx: %d state: %d", ErrNonceTooLow, from, tx.Nonce(), next)
	}

	feeCap, _ := uint256.FromBig(tx.GasFeeCap())
	tipCap, _ := uint256.FromBig(tx.GasTipCap())
	ptx := &pooledTx{tx: tx, from: from, feeCap: feeCap, tipCap: tipCap, arrival: p.now()}

	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.senders[from]
	if prev, ok := list[tx.Nonce()]; ok {
		if err := p.checkReplacement(prev, ptx); err != nil {
			return err
		}
		delete(p.all, prev.tx.Hash())
	} else {
		if len(p.all) >= p.cfg.GlobalSlots {
			return ErrPoolFull
		}
		if len(list) >= p.cfg.AccountSlots {
			return fmt.Errorf("%w: %v has %d pending", ErrAccountFull, from, len(list))
		}
	}
	if list == nil {
		list = make(map[uint64]*pooledTx)
		p.senders[from] = list
	}
	list[tx.Nonce()] = ptx
	p.all[tx.Hash()] = ptx
	if sc := tx.BlobTxSidecar(); sc != nil {
		p.blobs.Add(tx.BlobHashes(), sc)
	}
	p.metrics.SetPending(len(p.all))
	return nil
}

// validateBlobs enforces the per-transaction blob cap and the side-car
// shape required at the current time.
func (p *Pool) validateBlobs(tx *types.Transaction) error {
	if tx.Type() != types.BlobTxType {
		return nil
	}
	hashes := tx.BlobHashes()
	n := uint64(len(hashes))
	if n == 0 {
		return ErrNoBlobs
	}
	if max := p.params.Blobs().MaxPerTx; n > max {
		return tooManyBlobs(n, max)
	}
	sc := tx.BlobTxSidecar()
	if sc == nil {
		return ErrMissingSidecar
	}
	if err := guard.CheckSidecarForFork(p.params, uint64(p.now().Unix()), inter.SchemeOf(sc)); err != nil {
		return err
	}
	proofs := len(hashes)
	if sc.Version == types.BlobSidecarVersion1 {
		proofs *= kzg4844.CellProofsPerBlob
	}
	if len(sc.Blobs) != len(hashes) || len(sc.Commitments) != len(hashes) || len(sc.Proofs) != proofs {
		return fmt.Errorf("%w: %d hashes, %d blobs, %d commitments, %d proofs", ErrSidecarMismatch,
			len(hashes), len(sc.Blobs), len(sc.Commitments), len(sc.Proofs))
	}
	for i, h := range sc.BlobHashes() {
		if h != hashes[i] {
			return fmt.Errorf("%w: blob %d has hash %v, want %v", ErrSidecarMismatch, i, h, hashes[i])
		}
	}
	if !p.cfg.VerifyKZG {
		return nil
	}
	if sc.Version == types.BlobSidecarVersion1 {
		if err := kzg4844.VerifyCellProofs(sc.Blobs, sc.Commitments, sc.Proofs); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		return nil
	}
	for i := range sc.Blobs {
		if err := kzg4844.VerifyBlobProof(&sc.Blobs[i], sc.Commitments[i], sc.Proofs[i]); err != nil {
			return fmt.Errorf("%w: blob %d: %v", ErrInvalidProof, i, err)
		}
	}
	return nil
}

func (p *Pool) checkReplacement(prev, next *pooledTx) error {
	bump := uint256.NewInt(100 + p.cfg.PriceBump)
	hundred := uint256.NewInt(100)
	minFeeCap := new(uint256.Int).Div(new(uint256.Int).Mul(prev.feeCap, bump), hundred)
	minTipCap := new(uint256.Int).Div(new(uint256.Int).Mul(prev.tipCap, bump), hundred)
	if next.feeCap.Lt(minFeeCap) || next.tipCap.Lt(minTipCap) {
		return fmt.Errorf("%w: need fee cap %v and tip cap %v", ErrReplaceUnderpriced, minFeeCap, minTipCap)
	}
	return nil
}

// Has reports whether a transaction with hash is pooled.
func (p *Pool) Has(hash common.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.all[hash]
	return ok
}

// Get returns the pooled transaction with hash, side-car included.
func (p *Pool) Get(hash common.Hash) *types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ptx, ok := p.all[hash]; ok {
		return ptx.tx
	}
	return nil
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.all)
}

// Nonce returns the next nonce of addr counting contiguous pooled
// transactions on top of the state nonce.
func (p *Pool) Nonce(addr common.Address) (uint64, error) {
	next, err := p.state.Nonce(addr)
	if err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	list := p.senders[addr]
	for {
		if _, ok := list[next]; !ok {
			return next, nil
		}
		next++
	}
}

// Blobs returns the blob cache.
func (p *Pool) Blobs() *BlobCache { return p.blobs }

// Reset drops every transaction made stale by the canonical head: those
// the block included and those below the new state nonce of their sender.
func (p *Pool) Reset(head *types.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tx := range head.Transactions() {
		if ptx, ok := p.all[tx.Hash()]; ok {
			p.remove(ptx)
		}
	}
	dropped := 0
	for addr, list := range p.senders {
		next, err := p.state.Nonce(addr)
		if err != nil {
			p.log.WithError(err).WithField("address", addr).Warn("Failed to read nonce")
			continue
		}
		for nonce, ptx := range list {
			if nonce < next {
				p.remove(ptx)
				dropped++
			}
		}
	}
	p.metrics.SetPending(len(p.all))
	p.log.WithFields(logrus.Fields{
		"number":  head.NumberU64(),
		"pending": len(p.all),
		"stale":   dropped,
	}).Debug("Pool reset to new head")
}

func (p *Pool) remove(ptx *pooledTx) {
	delete(p.all, ptx.tx.Hash())
	list := p.senders[ptx.from]
	delete(list, ptx.tx.Nonce())
	if len(list) == 0 {
		delete(p.senders, ptx.from)
	}
}

// Run keeps the pool in step with canonical heads and refreshes the blob
// cache gauges until ctx is done.
func (p *Pool) Run(ctx context.Context, heads <-chan *types.Block) error {
	ticker := time.NewTicker(p.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case head := <-heads:
			p.Reset(head)
		case <-ticker.C:
			p.metrics.SetBlobCache(p.blobs.Len(), p.blobs.Bytes())
		case <-ctx.Done():
			return nil
		}
	}
}

// sorted returns the pending lists of every sender in nonce order.
func (p *Pool) sorted() map[common.Address][]*pooledTx {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[common.Address][]*pooledTx, len(p.senders))
	for addr, list := range p.senders {
		txs := make([]*pooledTx, 0, len(list))
		for _, ptx := range list {
			txs = append(txs, ptx)
		}
		sort.Slice(txs, func(i, j int) bool { return txs[i].tx.Nonce() < txs[j].tx.Nonce() })
		out[addr] = txs
	}
	return out
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyKnown):
		return "known"
	case errors.Is(err, ErrTooManyBlobs), errors.Is(err, ErrNoBlobs):
		return "blobs"
	case errors.Is(err, ErrMissingSidecar), errors.Is(err, ErrSidecarMismatch), errors.Is(err, ErrInvalidProof), errors.Is(err, guard.ErrWrongSidecarScheme):
		return "sidecar"
	case errors.Is(err, ErrUnderpriced), errors.Is(err, ErrReplaceUnderpriced):
		return "underpriced"
	case errors.Is(err, ErrNonceTooLow):
		return "nonce"
	case errors.Is(err, ErrPoolFull), errors.Is(err, ErrAccountFull):
		return "full"
	default:
		return "invalid"
	}
}
