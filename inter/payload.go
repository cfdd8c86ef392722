package inter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// BuiltPayload is a sealed block together with everything the Engine API
// needs to hand it out: the fees it earns the recipient, the Prague request
// list and the blob side-cars of its transactions.
type BuiltPayload struct {
	id       PayloadID
	block    *types.Block
	fees     *uint256.Int
	requests [][]byte
	sidecars BlobSidecars
}

// NewBuiltPayload seals the outputs of one successful build. requests must
// be nil when Prague is not active at the block timestamp.
func NewBuiltPayload(id PayloadID, block *types.Block, fees *uint256.Int, requests [][]byte, sidecars BlobSidecars) *BuiltPayload {
	if fees == nil {
		fees = new(uint256.Int)
	}
	return &BuiltPayload{
		id:       id,
		block:    block,
		fees:     new(uint256.Int).Set(fees),
		requests: requests,
		sidecars: sidecars,
	}
}

func (p *BuiltPayload) ID() PayloadID          { return p.id }
func (p *BuiltPayload) Block() *types.Block    { return p.block }
func (p *BuiltPayload) Sidecars() BlobSidecars { return p.sidecars }
func (p *BuiltPayload) Fees() *uint256.Int     { return new(uint256.Int).Set(p.fees) }
func (p *BuiltPayload) FeesBig() *big.Int      { return p.fees.ToBig() }
func (p *BuiltPayload) Timestamp() uint64      { return p.block.Time() }

// Requests returns the EIP-7685 request list, or nil before Prague.
func (p *BuiltPayload) Requests() [][]byte {
	if p.requests == nil {
		return nil
	}
	out := make([][]byte, len(p.requests))
	copy(out, p.requests)
	return out
}

// BetterThan reports whether p earns strictly more than fees.
func (p *BuiltPayload) BetterThan(fees *uint256.Int) bool {
	return fees == nil || p.fees.Gt(fees)
}
