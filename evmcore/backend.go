package evmcore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/beacon"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/load"
)

var ErrUnknownBlock = errors.New("unknown block")

// Backend is the execution chain of the node: a go-ethereum BlockChain
// under beacon consensus, over an in-memory key-value store. Consensus
// itself is driven from outside through the Engine API.
type Backend struct {
	params *load.Params
	config *params.ChainConfig
	db     ethdb.Database
	chain  *core.BlockChain
	log    logrus.FieldLogger

	headFeed event.Feed
	mu       sync.Mutex // serializes imports and head changes
}

// NewBackend initializes the genesis block of p and opens the chain on it.
func NewBackend(p *load.Params, log logrus.FieldLogger) (*Backend, error) {
	db := rawdb.NewMemoryDatabase()
	genesis := p.Genesis()

	cfg := core.DefaultConfig().WithStateScheme(rawdb.HashScheme)
	chain, err := core.NewBlockChain(db, genesis, beacon.New(nil), cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blockchain: %w", err)
	}
	b := &Backend{
		params: p,
		config: chain.Config(),
		db:     db,
		chain:  chain,
		log:    log.WithField("component", "chain"),
	}
	b.log.WithFields(logrus.Fields{
		"genesis":  chain.Genesis().Hash(),
		"chain_id": b.config.ChainID,
	}).Info("Initialized execution chain")
	return b, nil
}

func (b *Backend) Params() *load.Params                   { return b.params }
func (b *Backend) Config() *params.ChainConfig            { return b.config }
func (b *Backend) Genesis() *types.Block                  { return b.chain.Genesis() }
func (b *Backend) CurrentHeader() *types.Header           { return b.chain.CurrentBlock() }
func (b *Backend) FinalizedHeader() *types.Header         { return b.chain.CurrentFinalBlock() }
func (b *Backend) BlockByHash(h common.Hash) *types.Block { return b.chain.GetBlockByHash(h) }

// HeaderByHash returns the header of any known block, canonical or not.
func (b *Backend) HeaderByHash(hash common.Hash) *types.Header {
	return b.chain.GetHeaderByHash(hash)
}

// BlockByNumber returns the canonical block at number.
func (b *Backend) BlockByNumber(number uint64) *types.Block {
	return b.chain.GetBlockByNumber(number)
}

// Receipts returns the receipts of the block with the given hash.
func (b *Backend) Receipts(hash common.Hash) types.Receipts {
	return b.chain.GetReceiptsByHash(hash)
}

// HeadState opens the state of the current head.
func (b *Backend) HeadState() (*state.StateDB, error) {
	return b.chain.State()
}

// Nonce returns the account nonce of addr at the current head.
func (b *Backend) Nonce(addr common.Address) (uint64, error) {
	st, err := b.chain.State()
	if err != nil {
		return 0, err
	}
	return st.GetNonce(addr), nil
}

// OpenEnv opens a build state view on parent. See builder.Chain.
func (b *Backend) OpenEnv(parent *types.Header, pending *types.Header) (builder.Env, error) {
	st, err := b.chain.StateAt(parent.Root)
	if err != nil {
		return nil, err
	}
	return newBuildEnv(b.chain, b.config, st, pending), nil
}

// Insert validates and stores block without making it canonical. Blocks
// already known are accepted as is.
func (b *Backend) Insert(block *types.Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chain.HasBlockAndState(block.Hash(), block.NumberU64()) {
		return nil
	}
	if _, err := b.chain.InsertBlockWithoutSetHead(context.Background(), block, false); err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{
		"number": block.NumberU64(),
		"hash":   block.Hash(),
		"txs":    len(block.Transactions()),
		"gas":    block.GasUsed(),
	}).Debug("Imported block")
	return nil
}

// SetHead makes the block with the given hash canonical and moves the
// safe and finalized markers when their hashes are known.
func (b *Backend) SetHead(head, safe, finalized common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	block := b.chain.GetBlockByHash(head)
	if block == nil {
		return ErrUnknownBlock
	}
	changed := b.chain.CurrentBlock().Hash() != head
	if changed {
		if _, err := b.chain.SetCanonical(block); err != nil {
			return fmt.Errorf("failed to set canonical head: %w", err)
		}
	}
	if h := b.chain.GetHeaderByHash(safe); h != nil {
		b.chain.SetSafe(h)
	}
	if h := b.chain.GetHeaderByHash(finalized); h != nil {
		b.chain.SetFinalized(h)
	}
	if changed {
		b.log.WithFields(logrus.Fields{"number": block.NumberU64(), "hash": head}).Info("Chain head updated")
		b.headFeed.Send(block)
	}
	return nil
}

// SubscribeHeads delivers every new canonical head block.
func (b *Backend) SubscribeHeads(ch chan<- *types.Block) event.Subscription {
	return b.headFeed.Subscribe(ch)
}

// Stop closes the chain and its database.
func (b *Backend) Stop() {
	b.chain.Stop()
	if err := b.db.Close(); err != nil {
		b.log.WithError(err).Warn("Failed to close chain database")
	}
}
