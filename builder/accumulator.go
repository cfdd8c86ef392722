package builder

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// headerSlack is the size reserved for the header and list prefixes when
// estimating the encoded block size.
const headerSlack = 1024

// accumulator collects the outputs of one assembly run.
type accumulator struct {
	gasUsed uint64
	blobs   uint64
	size    uint64
	fees    *uint256.Int

	txs      types.Transactions
	receipts []*types.Receipt
	sidecars []*types.BlobTxSidecar
}

func newAccumulator(baseSize uint64) *accumulator {
	return &accumulator{
		size: baseSize + headerSlack,
		fees: new(uint256.Int),
	}
}

func (a *accumulator) add(tx *types.Transaction, receipt *types.Receipt, sidecar *types.BlobTxSidecar, tip *uint256.Int) {
	a.gasUsed += receipt.GasUsed
	a.blobs += uint64(len(tx.BlobHashes()))
	a.size += tx.Size()

	fee := new(uint256.Int).Mul(tip, uint256.NewInt(receipt.GasUsed))
	a.fees.Add(a.fees, fee)

	if sidecar != nil {
		tx = tx.WithoutBlobTxSidecar()
		a.sidecars = append(a.sidecars, sidecar)
	}
	a.txs = append(a.txs, tx)
	a.receipts = append(a.receipts, receipt)
}

// effectiveTip is min(tipCap, feeCap-baseFee), zero when the fee cap is
// below the base fee.
func effectiveTip(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int {
	tip, overflow := uint256.FromBig(tx.GasTipCap())
	if overflow {
		tip = new(uint256.Int).SetAllOne()
	}
	if baseFee == nil {
		return tip
	}
	feeCap, overflow := uint256.FromBig(tx.GasFeeCap())
	if overflow {
		return tip
	}
	if feeCap.Lt(baseFee) {
		return new(uint256.Int)
	}
	headroom := new(uint256.Int).Sub(feeCap, baseFee)
	if headroom.Lt(tip) {
		return headroom
	}
	return tip
}
