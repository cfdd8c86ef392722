package inter

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/load"
)

// PayloadID identifies a payload build job across forkchoiceUpdated and
// getPayload calls. It is the go-ethereum Engine API identifier.
type PayloadID = engine.PayloadID

// BuildAttributes are the parameters of one block build request.
//
// They are created from the payload attributes of a forkchoiceUpdated call
// and never change afterwards. The randomness value is checked at
// construction, so a BuildAttributes value that exists always carries the
// network constant.
type BuildAttributes struct {
	parent       common.Hash
	timestamp    uint64
	feeRecipient common.Address
	prevRandao   common.Hash
	withdrawals  types.Withdrawals
	beaconRoot   *common.Hash
	version      guard.WireVersion

	id PayloadID
}

// NewBuildAttributes validates the inbound attributes and derives the
// payload identifier. version is the forkchoiceUpdated version that carried
// the attributes; it is folded into the identifier.
func NewBuildAttributes(p *load.Params, parent common.Hash, attrs *engine.PayloadAttributes, version guard.WireVersion) (*BuildAttributes, error) {
	if err := guard.CheckPrevRandao(p, attrs.Random); err != nil {
		return nil, err
	}
	a := &BuildAttributes{
		parent:       parent,
		timestamp:    attrs.Timestamp,
		feeRecipient: attrs.SuggestedFeeRecipient,
		prevRandao:   attrs.Random,
		withdrawals:  copyWithdrawals(attrs.Withdrawals),
		version:      version,
	}
	if attrs.BeaconRoot != nil {
		root := *attrs.BeaconRoot
		a.beaconRoot = &root
	}
	a.id = a.computeID()
	return a, nil
}

func (a *BuildAttributes) Parent() common.Hash            { return a.parent }
func (a *BuildAttributes) Timestamp() uint64              { return a.timestamp }
func (a *BuildAttributes) FeeRecipient() common.Address   { return a.feeRecipient }
func (a *BuildAttributes) PrevRandao() common.Hash        { return a.prevRandao }
func (a *BuildAttributes) Version() guard.WireVersion     { return a.version }
func (a *BuildAttributes) ID() PayloadID                  { return a.id }
func (a *BuildAttributes) Withdrawals() types.Withdrawals { return copyWithdrawals(a.withdrawals) }

// BeaconRoot returns the parent beacon block root, or nil before Cancun
// attribute versions.
func (a *BuildAttributes) BeaconRoot() *common.Hash {
	if a.beaconRoot == nil {
		return nil
	}
	root := *a.beaconRoot
	return &root
}

// computeID hashes every build input so that identical requests map to the
// same job. The first byte carries the attribute version.
func (a *BuildAttributes) computeID() PayloadID {
	h := sha256.New()
	h.Write(a.parent[:])
	binary.Write(h, binary.BigEndian, a.timestamp)
	h.Write(a.prevRandao[:])
	h.Write(a.feeRecipient[:])
	rlp.Encode(h, a.withdrawals)
	if a.beaconRoot != nil {
		h.Write(a.beaconRoot[:])
	}
	var out PayloadID
	copy(out[:], h.Sum(nil)[:8])
	out[0] = byte(a.version)
	return out
}

func copyWithdrawals(ws []*types.Withdrawal) types.Withdrawals {
	if ws == nil {
		return nil
	}
	out := make(types.Withdrawals, len(ws))
	for i, w := range ws {
		cpy := *w
		out[i] = &cpy
	}
	return out
}
