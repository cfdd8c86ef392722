// Package catalyst implements the engine_ JSON-RPC namespace through which
// an external consensus driver feeds blocks to the node and asks it to
// build new ones.
//
// Every inbound payload and every set of payload attributes passes the
// Load invariant checks before it reaches the chain or the builder, and
// every built payload is checked again on its way out.
package catalyst

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/evmcore"
	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/load"
	"github.com/rony4d/go-load/metrics"
	"github.com/rony4d/go-load/txpool"
)

// Chain is the part of the execution chain the Engine API drives.
type Chain interface {
	CurrentHeader() *types.Header
	HeaderByHash(hash common.Hash) *types.Header
	BlockByHash(hash common.Hash) *types.Block
	BlockByNumber(number uint64) *types.Block
	Insert(block *types.Block) error
	SetHead(head, safe, finalized common.Hash) error
}

// Payloads starts and resolves payload build jobs.
type Payloads interface {
	Start(attrs *inter.BuildAttributes) error
	Resolve(id inter.PayloadID) (*inter.BuiltPayload, error)
}

// BlobStore serves cached blobs by versioned hash.
type BlobStore interface {
	Get(hash common.Hash) (*txpool.BlobAndProofs, bool)
}

// ConsensusAPI is the engine_ namespace.
type ConsensusAPI struct {
	params   *load.Params
	chain    Chain
	payloads Payloads
	blobs    BlobStore
	log      logrus.FieldLogger
	metrics  *metrics.EngineCollector

	// syncing is set while the last forkchoice head was unknown.
	syncing atomic.Bool
	now     func() time.Time
}

// NewConsensusAPI creates the engine_ namespace. m may be nil.
func NewConsensusAPI(p *load.Params, chain Chain, payloads Payloads, blobs BlobStore, log logrus.FieldLogger, m *metrics.EngineCollector) *ConsensusAPI {
	if m == nil {
		m = metrics.NewEngineCollector(nil)
	}
	return &ConsensusAPI{
		params:   p,
		chain:    chain,
		payloads: payloads,
		blobs:    blobs,
		log:      log.WithField("component", "engine"),
		metrics:  m,
		now:      time.Now,
	}
}

// ForkchoiceUpdatedV1 moves the head; attributes must not carry withdrawals.
func (api *ConsensusAPI) ForkchoiceUpdatedV1(state engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes) (engine.ForkChoiceResponse, error) {
	if attrs != nil {
		if attrs.Withdrawals != nil || attrs.BeaconRoot != nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(errors.New("withdrawals and beacon root not supported in V1"))
		}
		if api.params.IsShanghai(attrs.Timestamp) {
			return engine.STATUS_INVALID, engine.UnsupportedFork.With(errors.New("forkchoiceUpdatedV1 called post-shanghai"))
		}
	}
	return api.forkchoiceUpdated(state, attrs, guard.V1)
}

// ForkchoiceUpdatedV2 accepts Shanghai attributes.
func (api *ConsensusAPI) ForkchoiceUpdatedV2(state engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes) (engine.ForkChoiceResponse, error) {
	if attrs != nil {
		if attrs.BeaconRoot != nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(errors.New("unexpected beacon root"))
		}
		if attrs.Withdrawals == nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(errors.New("missing withdrawals"))
		}
		if api.params.IsCancun(attrs.Timestamp) {
			return engine.STATUS_INVALID, engine.UnsupportedFork.With(errors.New("forkchoiceUpdatedV2 called post-cancun"))
		}
	}
	return api.forkchoiceUpdated(state, attrs, guard.V2)
}

// ForkchoiceUpdatedV3 accepts Cancun and later attributes. The randomness
// of the attributes is checked before anything else.
func (api *ConsensusAPI) ForkchoiceUpdatedV3(state engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes) (engine.ForkChoiceResponse, error) {
	if attrs != nil {
		if err := guard.CheckPrevRandao(api.params, attrs.Random); err != nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(err)
		}
		if attrs.Withdrawals == nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(errors.New("missing withdrawals"))
		}
		if attrs.BeaconRoot == nil {
			return engine.STATUS_INVALID, engine.InvalidParams.With(errors.New("missing beacon root"))
		}
		if !api.params.IsCancun(attrs.Timestamp) {
			return engine.STATUS_INVALID, engine.UnsupportedFork.With(errors.New("forkchoiceUpdatedV3 called pre-cancun"))
		}
	}
	return api.forkchoiceUpdated(state, attrs, guard.V3)
}

func (api *ConsensusAPI) forkchoiceUpdated(state engine.ForkchoiceStateV1, attrs *engine.PayloadAttributes, version guard.WireVersion) (engine.ForkChoiceResponse, error) {
	defer api.metrics.Observe("forkchoiceUpdated", time.Now())

	if state.HeadBlockHash == (common.Hash{}) {
		api.log.Warn("Forkchoice requested update to zero hash")
		return engine.STATUS_INVALID, nil
	}
	head := api.chain.HeaderByHash(state.HeadBlockHash)
	if head == nil {
		api.syncing.Store(true)
		api.log.WithField("head", state.HeadBlockHash).Info("Forkchoice requested unknown head")
		return engine.STATUS_SYNCING, nil
	}
	for _, h := range []common.Hash{state.SafeBlockHash, state.FinalizedBlockHash} {
		if h != (common.Hash{}) && api.chain.HeaderByHash(h) == nil {
			return engine.STATUS_INVALID, engine.InvalidForkChoiceState.With(errors.New("safe or finalized block not available"))
		}
	}
	if err := api.chain.SetHead(state.HeadBlockHash, state.SafeBlockHash, state.FinalizedBlockHash); err != nil {
		return engine.STATUS_INVALID, engine.GenericServerError.With(err)
	}
	api.syncing.Store(false)

	valid := head.Hash()
	resp := engine.ForkChoiceResponse{
		PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &valid},
	}
	if attrs == nil {
		return resp, nil
	}

	args, err := inter.NewBuildAttributes(api.params, head.Hash(), attrs, version)
	if err != nil {
		return engine.STATUS_INVALID, engine.InvalidPayloadAttributes.With(err)
	}
	if err := api.payloads.Start(args); err != nil {
		var gerr *guard.Error
		if errors.As(err, &gerr) {
			return engine.STATUS_INVALID, engine.InvalidPayloadAttributes.With(err)
		}
		api.log.WithError(err).Error("Failed to start payload job")
		return engine.STATUS_INVALID, engine.GenericServerError.With(err)
	}
	id := args.ID()
	resp.PayloadID = &id
	return resp, nil
}

// NewPayloadV1 imports a pre-Shanghai payload.
func (api *ConsensusAPI) NewPayloadV1(params engine.ExecutableData) (engine.PayloadStatusV1, error) {
	if params.Withdrawals != nil {
		return invalidStatus, engine.InvalidParams.With(errors.New("withdrawals not supported in V1"))
	}
	if api.params.IsShanghai(params.Timestamp) {
		return invalidStatus, engine.UnsupportedFork.With(errors.New("newPayloadV1 called post-shanghai"))
	}
	return api.newPayload(params, nil, nil, nil)
}

// NewPayloadV2 imports a Shanghai payload.
func (api *ConsensusAPI) NewPayloadV2(params engine.ExecutableData) (engine.PayloadStatusV1, error) {
	if params.BlobGasUsed != nil || params.ExcessBlobGas != nil {
		return invalidStatus, engine.InvalidParams.With(errors.New("unexpected blob fields"))
	}
	if api.params.IsCancun(params.Timestamp) {
		return invalidStatus, engine.UnsupportedFork.With(errors.New("newPayloadV2 called post-cancun"))
	}
	return api.newPayload(params, nil, nil, nil)
}

// NewPayloadV3 imports a Cancun payload.
func (api *ConsensusAPI) NewPayloadV3(params engine.ExecutableData, versionedHashes []common.Hash, beaconRoot *common.Hash) (engine.PayloadStatusV1, error) {
	if err := api.checkInbound(params, versionedHashes, nil); err != nil {
		return invalidStatus, err
	}
	if versionedHashes == nil || beaconRoot == nil {
		return invalidStatus, engine.InvalidParams.With(errors.New("missing versioned hashes or beacon root"))
	}
	if !api.params.IsCancun(params.Timestamp) || api.params.IsPrague(params.Timestamp) {
		return invalidStatus, engine.UnsupportedFork.With(errors.New("newPayloadV3 must only be called for cancun payloads"))
	}
	return api.newPayload(params, versionedHashes, beaconRoot, nil)
}

// NewPayloadV4 imports a Prague or Osaka payload with its execution requests.
func (api *ConsensusAPI) NewPayloadV4(params engine.ExecutableData, versionedHashes []common.Hash, beaconRoot *common.Hash, requests []hexutil.Bytes) (engine.PayloadStatusV1, error) {
	reqs := decodeRequests(requests)
	if err := api.checkInbound(params, versionedHashes, reqs); err != nil {
		return invalidStatus, err
	}
	if versionedHashes == nil || beaconRoot == nil || reqs == nil {
		return invalidStatus, engine.InvalidParams.With(errors.New("missing versioned hashes, beacon root or requests"))
	}
	if !api.params.IsPrague(params.Timestamp) {
		return invalidStatus, engine.UnsupportedFork.With(errors.New("newPayloadV4 called pre-prague"))
	}
	return api.newPayload(params, versionedHashes, beaconRoot, reqs)
}

// checkInbound runs the network checks on a submitted payload. Any
// violation is an invalid-params error.
func (api *ConsensusAPI) checkInbound(params engine.ExecutableData, versionedHashes []common.Hash, requests [][]byte) error {
	err := guard.CheckInboundPayload(api.params, guard.InboundPayload{
		Timestamp:       params.Timestamp,
		PrevRandao:      params.Random,
		VersionedHashes: versionedHashes,
		Requests:        requests,
	})
	if err != nil {
		api.log.WithError(err).WithField("hash", params.BlockHash).Warn("Rejected inbound payload")
		return engine.InvalidParams.With(err)
	}
	return nil
}

func (api *ConsensusAPI) newPayload(params engine.ExecutableData, versionedHashes []common.Hash, beaconRoot *common.Hash, requests [][]byte) (engine.PayloadStatusV1, error) {
	defer api.metrics.Observe("newPayload", time.Now())

	block, err := evmcore.PayloadToBlock(&params, beaconRoot, requests)
	if err != nil {
		api.log.WithError(err).WithField("hash", params.BlockHash).Warn("Invalid payload")
		return invalid(err, nil), nil
	}
	if err := checkVersionedHashes(block, versionedHashes); err != nil {
		return invalid(err, nil), nil
	}
	if api.chain.BlockByHash(block.Hash()) != nil {
		hash := block.Hash()
		return engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &hash}, nil
	}
	parent := api.chain.HeaderByHash(block.ParentHash())
	if parent == nil {
		api.log.WithFields(logrus.Fields{
			"number": block.NumberU64(),
			"hash":   block.Hash(),
			"parent": block.ParentHash(),
		}).Info("Payload parent unknown")
		return engine.PayloadStatusV1{Status: engine.SYNCING}, nil
	}
	if err := api.chain.Insert(block); err != nil {
		api.log.WithError(err).WithField("hash", block.Hash()).Warn("Payload import failed")
		latest := parent.Hash()
		return invalid(err, &latest), nil
	}
	hash := block.Hash()
	return engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &hash}, nil
}

// checkVersionedHashes compares the blob hashes referenced by the block's
// transactions with the list supplied by the driver. A nil list skips the
// comparison for pre-Cancun versions.
func checkVersionedHashes(block *types.Block, want []common.Hash) error {
	if want == nil {
		return nil
	}
	var have []common.Hash
	for _, tx := range block.Transactions() {
		have = append(have, tx.BlobHashes()...)
	}
	if len(have) != len(want) {
		return errInvalidVersionedHashes
	}
	for i := range have {
		if have[i] != want[i] {
			return errInvalidVersionedHashes
		}
	}
	return nil
}

// GetPayloadV1 returns a pre-Shanghai payload without an envelope.
func (api *ConsensusAPI) GetPayloadV1(id engine.PayloadID) (*engine.ExecutableData, error) {
	env, err := api.getPayload(id, guard.V1)
	if err != nil {
		return nil, err
	}
	return env.ExecutionPayload, nil
}

func (api *ConsensusAPI) GetPayloadV2(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	return api.getPayload(id, guard.V2)
}

func (api *ConsensusAPI) GetPayloadV3(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	return api.getPayload(id, guard.V3)
}

func (api *ConsensusAPI) GetPayloadV4(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	return api.getPayload(id, guard.V4)
}

// GetPayloadV5 returns an Osaka payload; its blobs bundle carries cell proofs.
func (api *ConsensusAPI) GetPayloadV5(id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error) {
	return api.getPayload(id, guard.V5)
}

func (api *ConsensusAPI) getPayload(id engine.PayloadID, version guard.WireVersion) (*engine.ExecutionPayloadEnvelope, error) {
	defer api.metrics.Observe("getPayload", time.Now())

	payload, err := api.payloads.Resolve(id)
	if errors.Is(err, builder.ErrUnknownPayload) {
		return nil, engine.UnknownPayload
	}
	if err != nil {
		return nil, engine.GenericServerError.With(err)
	}
	if err := checkPayloadFork(api.params, version, payload.Timestamp()); err != nil {
		return nil, err
	}
	env, err := toEnvelope(api.params, payload, version)
	if err != nil {
		api.log.WithError(err).WithField("id", id).Error("Payload conversion failed")
		var gerr *guard.Error
		if errors.As(err, &gerr) && gerr.Kind == guard.WrongSidecarScheme {
			return nil, engine.UnsupportedFork.With(err)
		}
		return nil, engine.GenericServerError.With(err)
	}
	return env, nil
}

// checkPayloadFork requires the payload timestamp to fall in the fork the
// getPayload version serves.
func checkPayloadFork(p *load.Params, version guard.WireVersion, ts uint64) error {
	var ok bool
	switch version {
	case guard.V1:
		ok = !p.IsShanghai(ts)
	case guard.V2:
		ok = p.IsShanghai(ts) && !p.IsCancun(ts)
	case guard.V3:
		ok = p.IsCancun(ts) && !p.IsPrague(ts)
	case guard.V4:
		ok = p.IsPrague(ts) && !p.IsOsaka(ts)
	case guard.V5:
		ok = p.IsOsaka(ts)
	}
	if !ok {
		return engine.UnsupportedFork.With(errUnsupportedPayloadVersion(version, ts))
	}
	return nil
}

// ExchangeCapabilities returns the methods and Load extensions this node
// supports, merged with the peer's list.
func (api *ConsensusAPI) ExchangeCapabilities(peer []string) []string {
	caps := Capabilities()
	seen := make(map[string]struct{}, len(caps)+len(peer))
	for _, c := range caps {
		seen[c] = struct{}{}
	}
	for _, c := range peer {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		caps = append(caps, c)
	}
	return caps
}

// GetClientVersionV1 returns the identity of this client.
func (api *ConsensusAPI) GetClientVersionV1(info engine.ClientVersionV1) []engine.ClientVersionV1 {
	if info.Name != "" {
		api.log.WithFields(logrus.Fields{
			"code":    info.Code,
			"name":    info.Name,
			"version": info.Version,
			"commit":  info.Commit,
		}).Info("Consensus client identified")
	}
	return []engine.ClientVersionV1{clientVersion()}
}

var invalidStatus = engine.PayloadStatusV1{Status: engine.INVALID}

func invalid(err error, latestValid *common.Hash) engine.PayloadStatusV1 {
	msg := err.Error()
	return engine.PayloadStatusV1{Status: engine.INVALID, LatestValidHash: latestValid, ValidationError: &msg}
}

// nowUnix is the wall-clock time used to gate methods on forks that
// activate later.
func (api *ConsensusAPI) nowUnix() uint64 { return uint64(api.now().Unix()) }
