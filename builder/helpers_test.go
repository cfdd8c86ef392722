package builder

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/load/genesis"
)

func devParams(t *testing.T) *load.Params {
	t.Helper()
	p, err := genesis.Load(genesis.DevName)
	require.NoError(t, err)
	return p
}

func testParent() *types.Header {
	return &types.Header{
		Number:        big.NewInt(7),
		Time:          1_000,
		GasLimit:      load.ExecutionGasLimit,
		BaseFee:       big.NewInt(params.InitialBaseFee),
		Difficulty:    new(big.Int),
		MixDigest:     load.PrevRandao,
		ExcessBlobGas: new(uint64),
		BlobGasUsed:   new(uint64),
	}
}

func testAttributes(t *testing.T, p *load.Params, parent *types.Header, ts uint64) *inter.BuildAttributes {
	t.Helper()
	root := common.HexToHash("0xbeac0")
	attrs, err := inter.NewBuildAttributes(p, parent.Hash(), &engine.PayloadAttributes{
		Timestamp:             ts,
		Random:                load.PrevRandao,
		SuggestedFeeRecipient: common.HexToAddress("0xfee"),
		Withdrawals:           []*types.Withdrawal{},
		BeaconRoot:            &root,
	}, guard.V3)
	require.NoError(t, err)
	return attrs
}

// fakeEnv charges every transaction its full gas limit.
type fakeEnv struct {
	failures map[common.Hash]error
}

func (e *fakeEnv) Apply(tx *types.Transaction) (*types.Receipt, error) {
	if err, ok := e.failures[tx.Hash()]; ok {
		return nil, err
	}
	return &types.Receipt{
		Type:    tx.Type(),
		Status:  types.ReceiptStatusSuccessful,
		TxHash:  tx.Hash(),
		GasUsed: tx.Gas(),
	}, nil
}

func (e *fakeEnv) Finalize(header *types.Header, txs types.Transactions, receipts []*types.Receipt, withdrawals types.Withdrawals) (*types.Block, [][]byte, error) {
	block := types.NewBlock(header, &types.Body{Transactions: txs, Withdrawals: withdrawals}, receipts, trie.NewListHasher())
	return block, [][]byte{}, nil
}

type fakeChain struct {
	mu       sync.Mutex
	headers  map[common.Hash]*types.Header
	failures map[common.Hash]error
	opened   atomic.Int32
}

func newFakeChain(headers ...*types.Header) *fakeChain {
	c := &fakeChain{headers: make(map[common.Hash]*types.Header), failures: make(map[common.Hash]error)}
	for _, h := range headers {
		c.headers[h.Hash()] = h
	}
	return c
}

func (c *fakeChain) HeaderByHash(hash common.Hash) *types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[hash]
}

func (c *fakeChain) OpenEnv(parent, pending *types.Header) (Env, error) {
	c.opened.Add(1)
	return &fakeEnv{failures: c.failures}, nil
}

// fakeSource replays a fixed list. Each transaction is tagged with a sender
// so MarkInvalid can drop the sender's later entries.
type fakeSource struct {
	txs      []*types.Transaction
	senders  map[common.Hash]int
	sidecars map[common.Hash]*types.BlobTxSidecar

	pos        int
	excluded   map[int]bool
	skipBlobs  bool
	skipCalls  int
	invalid    []common.Hash
	reasons    []error
	onNext     func(n int)
	nextCalled int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		senders:  make(map[common.Hash]int),
		sidecars: make(map[common.Hash]*types.BlobTxSidecar),
		excluded: make(map[int]bool),
	}
}

func (s *fakeSource) add(sender int, tx *types.Transaction, sidecar *types.BlobTxSidecar) *types.Transaction {
	s.txs = append(s.txs, tx)
	s.senders[tx.Hash()] = sender
	if sidecar != nil {
		s.sidecars[tx.Hash()] = sidecar
	}
	return tx
}

func (s *fakeSource) Next() *types.Transaction {
	s.nextCalled++
	if s.onNext != nil {
		s.onNext(s.nextCalled)
	}
	for s.pos < len(s.txs) {
		tx := s.txs[s.pos]
		s.pos++
		if s.excluded[s.senders[tx.Hash()]] {
			continue
		}
		if s.skipBlobs && len(tx.BlobHashes()) > 0 {
			continue
		}
		return tx
	}
	return nil
}

func (s *fakeSource) MarkInvalid(tx *types.Transaction, reason error) {
	s.excluded[s.senders[tx.Hash()]] = true
	s.invalid = append(s.invalid, tx.Hash())
	s.reasons = append(s.reasons, reason)
}

func (s *fakeSource) SkipBlobs() {
	s.skipBlobs = true
	s.skipCalls++
}

func (s *fakeSource) Sidecar(tx *types.Transaction) *types.BlobTxSidecar {
	return s.sidecars[tx.Hash()]
}

var txCounter atomic.Uint64

// plainTx returns a unique unsigned dynamic-fee transaction.
func plainTx(gas uint64, tipGwei int64) *types.Transaction {
	n := txCounter.Add(1)
	to := common.BigToAddress(new(big.Int).SetUint64(n))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(int64(load.DevNetworkID)),
		Nonce:     n,
		GasTipCap: big.NewInt(tipGwei * params.GWei),
		GasFeeCap: big.NewInt(100 * params.GWei),
		Gas:       gas,
		To:        &to,
	})
}

// blobTx returns a unique unsigned blob transaction carrying n blob
// references and a matching side-car of the given version.
func blobTx(n int, version byte) (*types.Transaction, *types.BlobTxSidecar) {
	id := txCounter.Add(1)
	hashes := make([]common.Hash, n)
	for i := range hashes {
		hashes[i] = common.Hash{0x01, byte(id >> 8), byte(id), byte(i)}
	}
	tx := types.NewTx(&types.BlobTx{
		ChainID:    uint256.NewInt(load.DevNetworkID),
		Nonce:      id,
		GasTipCap:  uint256.NewInt(2 * params.GWei),
		GasFeeCap:  uint256.NewInt(100 * params.GWei),
		Gas:        params.TxGas,
		To:         common.BigToAddress(new(big.Int).SetUint64(id)),
		BlobFeeCap: uint256.NewInt(params.GWei),
		BlobHashes: hashes,
	})
	sidecar := &types.BlobTxSidecar{
		Version:     version,
		Commitments: make([]kzg4844.Commitment, n),
	}
	return tx, sidecar
}

func newTestBuilder(t *testing.T, p *load.Params, chain *fakeChain) *Builder {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return New(p, chain, DefaultConfig(), log, nil)
}

func blobsIn(block *types.Block) int {
	n := 0
	for _, tx := range block.Transactions() {
		n += len(tx.BlobHashes())
	}
	return n
}

func build(t *testing.T, b *Builder, parent *types.Header, src CandidateSource, best *uint256.Int) *Result {
	t.Helper()
	attrs := testAttributes(t, b.params, parent, parent.Time+12)
	res, err := b.Build(context.Background(), parent, attrs, src, best)
	require.NoError(t, err)
	return res
}
