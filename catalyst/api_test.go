package catalyst

import (
	"fmt"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/evmcore"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/txpool"
	"github.com/rony4d/go-load/version"
)

type fakeBlobs map[common.Hash]*txpool.BlobAndProofs

func (f fakeBlobs) Get(hash common.Hash) (*txpool.BlobAndProofs, bool) {
	b, ok := f[hash]
	return b, ok
}

type testNode struct {
	api     *ConsensusAPI
	chain   *evmcore.Backend
	service *builder.Service
	blobs   fakeBlobs
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestNode wires the API over a fake chain. The API itself uses p when
// given, so tests can move fork activations without touching the chain.
func newTestNode(t *testing.T, p *load.Params) *testNode {
	t.Helper()
	log := quietLogger()

	chainParams := evmcore.MustFakeParams(2)
	chain, err := evmcore.NewBackend(chainParams, log)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)

	bld := builder.New(chainParams, chain, builder.DefaultConfig(), log, nil)
	svc, err := builder.NewService(bld, func(*types.Header) builder.CandidateSource {
		return builder.EmptySource()
	}, builder.ServiceConfig{Interval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	if p == nil {
		p = chainParams
	}
	blobs := fakeBlobs{}
	return &testNode{
		api:     NewConsensusAPI(p, chain, svc, blobs, log, nil),
		chain:   chain,
		service: svc,
		blobs:   blobs,
	}
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var rerr rpc.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, code, rerr.ErrorCode())
}

func errorData(err error) string {
	if derr, ok := err.(rpc.DataError); ok {
		return fmt.Sprint(derr.ErrorData())
	}
	return ""
}

func hashes(n int) []common.Hash {
	out := make([]common.Hash, n)
	for i := range out {
		out[i] = common.BigToHash(big.NewInt(int64(i + 1)))
	}
	return out
}

func attributesOn(parent *types.Header) *engine.PayloadAttributes {
	return &engine.PayloadAttributes{
		Timestamp:             parent.Time + 12,
		Random:                load.PrevRandao,
		SuggestedFeeRecipient: evmcore.FakeAddress(1),
		Withdrawals:           []*types.Withdrawal{},
		BeaconRoot:            &common.Hash{0x42},
	}
}

func headState(h common.Hash) engine.ForkchoiceStateV1 {
	return engine.ForkchoiceStateV1{HeadBlockHash: h, SafeBlockHash: h, FinalizedBlockHash: h}
}

func toHexBytes(reqs [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(reqs))
	for i, r := range reqs {
		out[i] = r
	}
	return out
}

func TestBuildAndImportRoundTrip(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()

	resp, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attributesOn(genesis))
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, resp.PayloadStatus.Status)
	require.NotNil(t, resp.PayloadID)

	env, err := n.api.GetPayloadV4(*resp.PayloadID)
	require.NoError(t, err)
	data := env.ExecutionPayload
	assert.Equal(t, genesis.Hash(), data.ParentHash)
	assert.Equal(t, load.PrevRandao, data.Random)
	assert.Equal(t, uint64(1), data.Number)
	assert.Equal(t, 0, env.BlockValue.Sign())
	require.NotNil(t, env.BlobsBundle)
	assert.Empty(t, env.BlobsBundle.Blobs)
	assert.NotNil(t, env.Requests)

	// the payload is Prague, not Cancun or Osaka
	_, err = n.api.GetPayloadV3(*resp.PayloadID)
	requireCode(t, err, -38005)
	_, err = n.api.GetPayloadV5(*resp.PayloadID)
	requireCode(t, err, -38005)

	status, err := n.api.NewPayloadV4(*data, []common.Hash{}, &common.Hash{0x42}, toHexBytes(env.Requests))
	require.NoError(t, err)
	require.Equal(t, engine.VALID, status.Status, "validation error: %v", status.ValidationError)
	assert.Equal(t, data.BlockHash, *status.LatestValidHash)

	// known payloads are valid again
	status, err = n.api.NewPayloadV4(*data, []common.Hash{}, &common.Hash{0x42}, toHexBytes(env.Requests))
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, status.Status)

	resp, err = n.api.ForkchoiceUpdatedV3(headState(data.BlockHash), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, resp.PayloadStatus.Status)
	assert.Nil(t, resp.PayloadID)
	assert.Equal(t, data.BlockHash, n.chain.CurrentHeader().Hash())

	bodies, err := n.api.GetPayloadBodiesByRangeV1(1, 10)
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Empty(t, bodies[0].TransactionData)

	bodies, err = n.api.GetPayloadBodiesByHashV1([]common.Hash{data.BlockHash, {0x01}})
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.NotNil(t, bodies[0])
	assert.Nil(t, bodies[1])
}

func TestNewPayload_wrongVersionedHashes(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()

	resp, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attributesOn(genesis))
	require.NoError(t, err)
	env, err := n.api.GetPayloadV4(*resp.PayloadID)
	require.NoError(t, err)

	status, err := n.api.NewPayloadV4(*env.ExecutionPayload, hashes(1), &common.Hash{0x42}, toHexBytes(env.Requests))
	require.NoError(t, err)
	assert.Equal(t, engine.INVALID, status.Status)
	require.NotNil(t, status.ValidationError)
	assert.Equal(t, errInvalidVersionedHashes.Error(), *status.ValidationError)
}

// buildNext asks n for a payload on its current head, imports it and
// makes it canonical.
func buildNext(t *testing.T, n *testNode) *engine.ExecutionPayloadEnvelope {
	t.Helper()
	head := n.chain.CurrentHeader()
	resp, err := n.api.ForkchoiceUpdatedV3(headState(head.Hash()), attributesOn(head))
	require.NoError(t, err)
	env, err := n.api.GetPayloadV4(*resp.PayloadID)
	require.NoError(t, err)

	status, err := n.api.NewPayloadV4(*env.ExecutionPayload, []common.Hash{}, &common.Hash{0x42}, toHexBytes(env.Requests))
	require.NoError(t, err)
	require.Equal(t, engine.VALID, status.Status)
	_, err = n.api.ForkchoiceUpdatedV3(headState(env.ExecutionPayload.BlockHash), nil)
	require.NoError(t, err)
	return env
}

func TestNewPayload_unknownParentIsSyncing(t *testing.T) {
	a := newTestNode(t, nil)
	buildNext(t, a)
	second := buildNext(t, a)

	// b shares the genesis but never saw the first block
	b := newTestNode(t, nil)
	require.Equal(t, a.chain.Genesis().Hash(), b.chain.Genesis().Hash())

	status, err := b.api.NewPayloadV4(*second.ExecutionPayload, []common.Hash{}, &common.Hash{0x42}, toHexBytes(second.Requests))
	require.NoError(t, err)
	assert.Equal(t, engine.SYNCING, status.Status)
	assert.Nil(t, status.LatestValidHash)
}

func TestNewPayload_tooManyVersionedHashes(t *testing.T) {
	n := newTestNode(t, nil)
	data := engine.ExecutableData{Timestamp: evmcore.FakeGenesisTime + 12, Random: load.PrevRandao}

	for _, call := range []func() (engine.PayloadStatusV1, error){
		func() (engine.PayloadStatusV1, error) {
			return n.api.NewPayloadV3(data, hashes(1025), &common.Hash{})
		},
		func() (engine.PayloadStatusV1, error) {
			return n.api.NewPayloadV4(data, hashes(1025), &common.Hash{}, []hexutil.Bytes{})
		},
	} {
		status, err := call()
		requireCode(t, err, -32602)
		assert.Contains(t, errorData(err), "too many blob versioned hashes: 1025 (max 1024)")
		assert.Equal(t, engine.INVALID, status.Status)
	}
}

func TestNewPayload_badRandao(t *testing.T) {
	n := newTestNode(t, nil)
	data := engine.ExecutableData{Timestamp: evmcore.FakeGenesisTime + 12, Random: common.Hash{31: 0x02}}

	_, err := n.api.NewPayloadV4(data, nil, &common.Hash{}, []hexutil.Bytes{})
	requireCode(t, err, -32602)
	assert.Contains(t, errorData(err), "prev_randao must be constant 0x01 for Load")
}

func TestNewPayload_pragueFieldsBeforeActivation(t *testing.T) {
	activation := evmcore.FakeGenesisTime + 1_000
	p := evmcore.MustFakeParams(2).WithOverrides(load.ForkActivation{Fork: load.Prague, Time: &activation})
	n := newTestNode(t, p)

	data := engine.ExecutableData{Timestamp: activation - 1, Random: load.PrevRandao}
	_, err := n.api.NewPayloadV4(data, []common.Hash{}, &common.Hash{}, []hexutil.Bytes{})
	requireCode(t, err, -32602)
	assert.Contains(t, errorData(err), "Prague payload fields not active")

	// past the network checks, the malformed payload is judged by block validation
	data.Timestamp = activation
	status, err := n.api.NewPayloadV4(data, []common.Hash{}, &common.Hash{}, []hexutil.Bytes{})
	require.NoError(t, err)
	assert.Equal(t, engine.INVALID, status.Status)
}

func TestNewPayload_forkGating(t *testing.T) {
	n := newTestNode(t, nil)
	data := engine.ExecutableData{Timestamp: evmcore.FakeGenesisTime + 12, Random: load.PrevRandao}

	_, err := n.api.NewPayloadV1(data)
	requireCode(t, err, -38005)
	data.Withdrawals = []*types.Withdrawal{}
	_, err = n.api.NewPayloadV2(data)
	requireCode(t, err, -38005)
	_, err = n.api.NewPayloadV3(data, []common.Hash{}, &common.Hash{})
	requireCode(t, err, -38005)
	_, err = n.api.NewPayloadV4(data, []common.Hash{}, &common.Hash{}, nil)
	requireCode(t, err, -32602)
}

func TestForkchoiceUpdated_badRandao(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()
	attrs := attributesOn(genesis)
	attrs.Random = common.Hash{}

	resp, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attrs)
	requireCode(t, err, -32602)
	assert.Contains(t, errorData(err), "prev_randao must be constant 0x01 for Load")
	assert.Nil(t, resp.PayloadID)
}

func TestForkchoiceUpdated_staleTimestamp(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()
	attrs := attributesOn(genesis)
	attrs.Timestamp = genesis.Time

	_, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attrs)
	requireCode(t, err, -38003)
	assert.Contains(t, errorData(err), "must be greater than parent")
}

func TestForkchoiceUpdated_heads(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()

	resp, err := n.api.ForkchoiceUpdatedV3(headState(common.Hash{}), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.INVALID, resp.PayloadStatus.Status)

	resp, err = n.api.ForkchoiceUpdatedV3(headState(common.Hash{0x01}), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.SYNCING, resp.PayloadStatus.Status)
	assert.True(t, n.api.syncing.Load())

	state := headState(genesis.Hash())
	state.FinalizedBlockHash = common.Hash{0x02}
	_, err = n.api.ForkchoiceUpdatedV3(state, nil)
	requireCode(t, err, -38002)

	resp, err = n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.VALID, resp.PayloadStatus.Status)
	assert.False(t, n.api.syncing.Load())
}

func TestForkchoiceUpdated_sameAttributesSameJob(t *testing.T) {
	n := newTestNode(t, nil)
	genesis := n.chain.CurrentHeader()

	first, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attributesOn(genesis))
	require.NoError(t, err)
	second, err := n.api.ForkchoiceUpdatedV3(headState(genesis.Hash()), attributesOn(genesis))
	require.NoError(t, err)
	assert.Equal(t, *first.PayloadID, *second.PayloadID)

	v2, err := n.api.ForkchoiceUpdatedV2(headState(genesis.Hash()), &engine.PayloadAttributes{
		Timestamp:   genesis.Time + 12,
		Random:      load.PrevRandao,
		Withdrawals: []*types.Withdrawal{},
	})
	requireCode(t, err, -38005)
	assert.Nil(t, v2.PayloadID)
}

func TestGetPayload_unknown(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.api.GetPayloadV4(engine.PayloadID{0x03, 0x01})
	requireCode(t, err, -38001)
}

func TestGetPayloadBodies_limits(t *testing.T) {
	n := newTestNode(t, nil)

	_, err := n.api.GetPayloadBodiesByRangeV1(0, 1)
	requireCode(t, err, -32602)
	_, err = n.api.GetPayloadBodiesByRangeV1(1, 1025)
	requireCode(t, err, -38004)
	_, err = n.api.GetPayloadBodiesByHashV1(hashes(1025))
	requireCode(t, err, -38004)

	bodies, err := n.api.GetPayloadBodiesByRangeV1(1, 4)
	require.NoError(t, err)
	assert.Empty(t, bodies)
}

func legacyBlob() *txpool.BlobAndProofs {
	return &txpool.BlobAndProofs{Blob: new(kzg4844.Blob), Proofs: []kzg4844.Proof{{0x01}}, Version: types.BlobSidecarVersion0}
}

func cellBlobEntry() *txpool.BlobAndProofs {
	return &txpool.BlobAndProofs{
		Blob:    new(kzg4844.Blob),
		Proofs:  make([]kzg4844.Proof, kzg4844.CellProofsPerBlob),
		Version: types.BlobSidecarVersion1,
	}
}

func TestGetBlobsV1(t *testing.T) {
	n := newTestNode(t, nil)
	hs := hashes(3)
	n.blobs[hs[0]] = legacyBlob()
	n.blobs[hs[2]] = cellBlobEntry()

	_, err := n.api.GetBlobsV1(hashes(1025))
	requireCode(t, err, -38004)

	res, err := n.api.GetBlobsV1(hs)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.NotNil(t, res[0])
	assert.Len(t, res[0].Blob, len(kzg4844.Blob{}))
	assert.Equal(t, byte(0x01), res[0].Proof[0])
	assert.Nil(t, res[1])
	assert.Nil(t, res[2], "cell proofs are not served over V1")
}

func TestGetBlobsV2V3_beforeOsaka(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.api.GetBlobsV2(hashes(1))
	requireCode(t, err, -38005)
	_, err = n.api.GetBlobsV3(hashes(1))
	requireCode(t, err, -38005)
}

func TestGetBlobsV2V3_afterOsaka(t *testing.T) {
	zero := uint64(0)
	n := newTestNode(t, evmcore.MustFakeParams(2).WithOverrides(load.ForkActivation{Fork: load.Osaka, Time: &zero}))
	hs := hashes(2)
	n.blobs[hs[0]] = cellBlobEntry()

	_, err := n.api.GetBlobsV2(hashes(1025))
	requireCode(t, err, -38004)

	res, err := n.api.GetBlobsV2(hs)
	require.NoError(t, err)
	assert.Nil(t, res, "all or nothing")

	partial, err := n.api.GetBlobsV3(hs)
	require.NoError(t, err)
	require.Len(t, partial, 2)
	require.NotNil(t, partial[0])
	assert.Len(t, partial[0].CellProofs, kzg4844.CellProofsPerBlob)
	assert.Nil(t, partial[1])

	n.blobs[hs[1]] = cellBlobEntry()
	res, err = n.api.GetBlobsV2(hs)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	// unknown head puts the node in syncing mode
	_, err = n.api.ForkchoiceUpdatedV3(headState(common.Hash{0x09}), nil)
	require.NoError(t, err)
	partial, err = n.api.GetBlobsV3(hs)
	require.NoError(t, err)
	assert.Nil(t, partial)
}

func TestExchangeCapabilities(t *testing.T) {
	n := newTestNode(t, nil)
	caps := n.api.ExchangeCapabilities([]string{"engine_newPayloadV4", "engine_fooV9"})

	assert.Contains(t, caps, CapBlobs)
	assert.Contains(t, caps, CapPrevRandao)
	assert.Contains(t, caps, version.String())
	assert.Contains(t, caps, "engine_getBlobsV3")
	assert.Contains(t, caps, "engine_fooV9")

	seen := make(map[string]int)
	for _, c := range caps {
		seen[c]++
	}
	assert.Equal(t, 1, seen["engine_newPayloadV4"])
}

func TestGetClientVersionV1(t *testing.T) {
	n := newTestNode(t, nil)
	res := n.api.GetClientVersionV1(engine.ClientVersionV1{Code: "LH", Name: "lighthouse", Version: "v7", Commit: "0x01"})
	require.Len(t, res, 1)
	assert.Equal(t, "GL", res[0].Code)
	assert.Equal(t, "go-load", res[0].Name)
	assert.Equal(t, version.Commit(), res[0].Commit)
}
