package txpool

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/evmcore"
	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/metrics"
)

var _ builder.CandidateSource = (*Iterator)(nil)

type fakeState struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func (s *fakeState) Nonce(addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[addr], nil
}

func (s *fakeState) set(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = nonce
}

func testParams() *load.Params { return evmcore.MustFakeParams(0) }

func newTestPool(t *testing.T, mutate ...func(*Config)) (*Pool, *fakeState) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.VerifyKZG = false
	cfg.BlobCacheSize = 64
	for _, m := range mutate {
		m(&cfg)
	}
	st := &fakeState{nonces: make(map[common.Address]uint64)}
	p, err := New(cfg, testParams(), st, logrus.New(), nil)
	require.NoError(t, err)
	return p, st
}

func signer() types.Signer { return types.LatestSignerForChainID(testParams().ChainID()) }

func dynTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, tip, feeCap int64) *types.Transaction {
	t.Helper()
	to := common.Address{0xaa}
	tx, err := types.SignNewTx(key, signer(), &types.DynamicFeeTx{
		ChainID:   testParams().ChainID(),
		Nonce:     nonce,
		GasTipCap: big.NewInt(tip),
		GasFeeCap: big.NewInt(feeCap),
		Gas:       params.TxGas,
		To:        &to,
	})
	require.NoError(t, err)
	return tx
}

// sidecar fabricates a side-car with distinct commitments and matching
// hashes. Proofs are zero; the pool under test does not verify them.
func sidecar(n int, version byte) (*types.BlobTxSidecar, []common.Hash) {
	sc := &types.BlobTxSidecar{
		Version:     version,
		Blobs:       make([]kzg4844.Blob, n),
		Commitments: make([]kzg4844.Commitment, n),
	}
	proofs := n
	if version == types.BlobSidecarVersion1 {
		proofs *= kzg4844.CellProofsPerBlob
	}
	sc.Proofs = make([]kzg4844.Proof, proofs)
	hashes := make([]common.Hash, n)
	for i := range sc.Commitments {
		sc.Commitments[i][0] = byte(i + 1)
		sc.Commitments[i][1] = version
		hashes[i] = kzg4844.CalcBlobHashV1(sha256.New(), &sc.Commitments[i])
	}
	return sc, hashes
}

func blobTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, tip int64, hashes []common.Hash, sc *types.BlobTxSidecar) *types.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, signer(), &types.BlobTx{
		ChainID:    uint256.MustFromBig(testParams().ChainID()),
		Nonce:      nonce,
		GasTipCap:  uint256.NewInt(uint64(tip)),
		GasFeeCap:  uint256.NewInt(uint64(tip) + params.GWei),
		Gas:        params.TxGas,
		To:         common.Address{0xbb},
		BlobFeeCap: uint256.NewInt(params.GWei),
		BlobHashes: hashes,
		Sidecar:    sc,
	})
	require.NoError(t, err)
	return tx
}

func rejectedCount(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "load_txpool_rejected_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBlobCacheSizeFor(t *testing.T) {
	assert.Equal(t, 32768, BlobCacheSizeFor(testParams()))
}

func TestAdd_tooManyBlobsPerTransaction(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.VerifyKZG = false
	p, err := New(cfg, testParams(), &fakeState{nonces: map[common.Address]uint64{}}, logrus.New(), metrics.NewTxPoolCollector(reg))
	require.NoError(t, err)

	sc, hashes := sidecar(int(load.MaxBlobsPerTx)+1, types.BlobSidecarVersion0)
	err = p.Add(blobTx(t, evmcore.FakeKey(0), 0, 1, hashes, sc))
	require.ErrorIs(t, err, ErrTooManyBlobs)
	assert.Contains(t, err.Error(), "have 33, permitted 32")
	assert.Equal(t, 0, p.Len())

	sc, hashes = sidecar(int(load.MaxBlobsPerTx), types.BlobSidecarVersion0)
	require.NoError(t, p.Add(blobTx(t, evmcore.FakeKey(0), 0, 1, hashes, sc)))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 1.0, rejectedCount(t, reg, "blobs"))
}

func TestAdd_sidecarChecks(t *testing.T) {
	p, _ := newTestPool(t)
	key := evmcore.FakeKey(0)

	_, hashes := sidecar(2, types.BlobSidecarVersion0)
	require.ErrorIs(t, p.Add(blobTx(t, key, 0, 1, hashes, nil)), ErrMissingSidecar)

	sc, hashes := sidecar(2, types.BlobSidecarVersion1)
	require.ErrorIs(t, p.Add(blobTx(t, key, 0, 1, hashes, sc)), guard.ErrWrongSidecarScheme)

	sc, hashes = sidecar(2, types.BlobSidecarVersion0)
	hashes[1] = common.Hash{0x01, 0x02}
	require.ErrorIs(t, p.Add(blobTx(t, key, 0, 1, hashes, sc)), ErrSidecarMismatch)

	sc, hashes = sidecar(2, types.BlobSidecarVersion0)
	sc.Proofs = sc.Proofs[:1]
	require.ErrorIs(t, p.Add(blobTx(t, key, 0, 1, hashes, sc)), ErrSidecarMismatch)

	sc, hashes = sidecar(2, types.BlobSidecarVersion0)
	require.NoError(t, p.Add(blobTx(t, key, 0, 1, hashes, sc)))
	for i, h := range hashes {
		cached, ok := p.Blobs().Get(h)
		require.True(t, ok)
		assert.Equal(t, sc.Commitments[i], cached.Commitment)
		assert.Len(t, cached.Proofs, 1)
	}
	assert.Equal(t, 2, p.Blobs().Len())
	assert.NotZero(t, p.Blobs().Bytes())
}

func TestAdd_osakaRequiresCellProofs(t *testing.T) {
	zero := uint64(0)
	cfg := DefaultConfig()
	cfg.VerifyKZG = false
	osaka := testParams().WithOverrides(load.ForkActivation{Fork: load.Osaka, Time: &zero})
	p, err := New(cfg, osaka, &fakeState{nonces: map[common.Address]uint64{}}, logrus.New(), nil)
	require.NoError(t, err)

	sc, hashes := sidecar(1, types.BlobSidecarVersion0)
	require.ErrorIs(t, p.Add(blobTx(t, evmcore.FakeKey(0), 0, 1, hashes, sc)), guard.ErrWrongSidecarScheme)

	sc, hashes = sidecar(1, types.BlobSidecarVersion1)
	require.NoError(t, p.Add(blobTx(t, evmcore.FakeKey(0), 0, 1, hashes, sc)))
	cached, ok := p.Blobs().Get(hashes[0])
	require.True(t, ok)
	assert.Len(t, cached.Proofs, kzg4844.CellProofsPerBlob)
}

func TestAdd_accountRules(t *testing.T) {
	p, st := newTestPool(t, func(c *Config) { c.PriceLimit = 10; c.GlobalSlots = 3 })
	key := evmcore.FakeKey(0)
	st.set(evmcore.FakeAddress(0), 5)

	require.ErrorIs(t, p.Add(dynTx(t, key, 4, 1, 100)), ErrNonceTooLow)
	require.ErrorIs(t, p.Add(dynTx(t, key, 5, 1, 9)), ErrUnderpriced)

	tx := dynTx(t, key, 5, 10, 100)
	require.NoError(t, p.Add(tx))
	require.ErrorIs(t, p.Add(tx), ErrAlreadyKnown)

	// a replacement must raise both caps by the price bump
	require.ErrorIs(t, p.Add(dynTx(t, key, 5, 10, 200)), ErrReplaceUnderpriced)
	replacement := dynTx(t, key, 5, 11, 110)
	require.NoError(t, p.Add(replacement))
	assert.False(t, p.Has(tx.Hash()))
	assert.Equal(t, replacement, p.Get(replacement.Hash()))
	assert.Equal(t, 1, p.Len())

	require.NoError(t, p.Add(dynTx(t, key, 6, 10, 100)))
	require.NoError(t, p.Add(dynTx(t, key, 8, 10, 100)))
	require.ErrorIs(t, p.Add(dynTx(t, evmcore.FakeKey(1), 0, 10, 100)), ErrPoolFull)

	next, err := p.Nonce(evmcore.FakeAddress(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), next)
}

func TestAdd_invalidSender(t *testing.T) {
	p, _ := newTestPool(t)
	other := types.LatestSignerForChainID(big.NewInt(1))
	to := common.Address{}
	tx, err := types.SignNewTx(evmcore.FakeKey(0), other, &types.DynamicFeeTx{
		ChainID: big.NewInt(1), GasFeeCap: big.NewInt(10), Gas: params.TxGas, To: &to,
	})
	require.NoError(t, err)
	require.ErrorIs(t, p.Add(tx), ErrInvalidSender)
}

func TestReset_dropsIncludedAndStale(t *testing.T) {
	p, st := newTestPool(t)
	key0, key1 := evmcore.FakeKey(0), evmcore.FakeKey(1)

	a0, a1 := dynTx(t, key0, 0, 1, 100), dynTx(t, key0, 1, 1, 100)
	b0 := dynTx(t, key1, 0, 1, 100)
	for _, tx := range []*types.Transaction{a0, a1, b0} {
		require.NoError(t, p.Add(tx))
	}

	st.set(evmcore.FakeAddress(0), 2)
	head := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(1)}).
		WithBody(types.Body{Transactions: types.Transactions{a0}})
	p.Reset(head)

	assert.False(t, p.Has(a0.Hash()))
	assert.False(t, p.Has(a1.Hash()))
	assert.True(t, p.Has(b0.Hash()))
	assert.Equal(t, 1, p.Len())
}
