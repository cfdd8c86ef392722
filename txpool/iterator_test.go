package txpool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-load/evmcore"
)

func drain(it *Iterator) []*types.Transaction {
	var out []*types.Transaction
	for tx := it.Next(); tx != nil; tx = it.Next() {
		out = append(out, tx)
	}
	return out
}

func TestBest_ordersByTipThenNonce(t *testing.T) {
	p, _ := newTestPool(t)
	k0, k1 := evmcore.FakeKey(0), evmcore.FakeKey(1)

	a0, a1 := dynTx(t, k0, 0, 5, 100), dynTx(t, k0, 1, 50, 100)
	b0, b1 := dynTx(t, k1, 0, 10, 100), dynTx(t, k1, 1, 1, 100)
	for _, tx := range []*types.Transaction{a1, b1, a0, b0} {
		require.NoError(t, p.Add(tx))
	}

	got := drain(p.Best(&types.Header{BaseFee: big.NewInt(0)}))
	want := []*types.Transaction{b0, a0, a1, b1}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Hash(), got[i].Hash(), "position %d", i)
	}
}

func TestBest_effectiveTipAndBaseFee(t *testing.T) {
	p, _ := newTestPool(t)

	capped := dynTx(t, evmcore.FakeKey(0), 0, 90, 100) // tip limited to 100-60
	plain := dynTx(t, evmcore.FakeKey(1), 0, 50, 200)
	poor := dynTx(t, evmcore.FakeKey(2), 0, 1, 59)
	for _, tx := range []*types.Transaction{capped, plain, poor} {
		require.NoError(t, p.Add(tx))
	}

	got := drain(p.Best(&types.Header{BaseFee: big.NewInt(60)}))
	require.Len(t, got, 2)
	assert.Equal(t, plain.Hash(), got[0].Hash())
	assert.Equal(t, capped.Hash(), got[1].Hash())
}

func TestBest_markInvalidDropsSender(t *testing.T) {
	p, _ := newTestPool(t)
	k0, k1 := evmcore.FakeKey(0), evmcore.FakeKey(1)
	a0, a1, a2 := dynTx(t, k0, 0, 9, 100), dynTx(t, k0, 1, 9, 100), dynTx(t, k0, 2, 9, 100)
	b0 := dynTx(t, k1, 0, 1, 100)
	for _, tx := range []*types.Transaction{a0, a1, a2, b0} {
		require.NoError(t, p.Add(tx))
	}

	it := p.Best(&types.Header{})
	first := it.Next()
	require.Equal(t, a0.Hash(), first.Hash())
	it.MarkInvalid(first, errors.New("insufficient funds"))

	rest := drain(it)
	require.Len(t, rest, 1)
	assert.Equal(t, b0.Hash(), rest[0].Hash())

	// the pool itself is untouched
	assert.Equal(t, 4, p.Len())
}

func TestBest_skipBlobsAndSidecars(t *testing.T) {
	p, _ := newTestPool(t)

	sc, hashes := sidecar(2, types.BlobSidecarVersion0)
	blob := blobTx(t, evmcore.FakeKey(0), 0, 100, hashes, sc)
	sc2, hashes2 := sidecar(3, types.BlobSidecarVersion0)
	blob2 := blobTx(t, evmcore.FakeKey(1), 0, 50, hashes2, sc2)
	plain := dynTx(t, evmcore.FakeKey(2), 0, 1, 2_000_000_000)
	for _, tx := range []*types.Transaction{blob, blob2, plain} {
		require.NoError(t, p.Add(tx))
	}

	it := p.Best(&types.Header{})
	got := it.Next()
	require.Equal(t, blob.Hash(), got.Hash())
	assert.Nil(t, got.BlobTxSidecar())
	require.NotNil(t, it.Sidecar(got))
	assert.Equal(t, sc.Commitments, it.Sidecar(got).Commitments)

	it.SkipBlobs()
	rest := drain(it)
	require.Len(t, rest, 1)
	assert.Equal(t, plain.Hash(), rest[0].Hash())
	assert.Nil(t, it.Sidecar(blob2))
}
