package catalyst

import (
	"fmt"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/txpool"
)

// maxBodyRequest bounds getPayloadBodies requests.
const maxBodyRequest = 1024

// GetBlobsV1 returns the blob and proof of every versioned hash found in
// the blob cache, and null for the rest.
func (api *ConsensusAPI) GetBlobsV1(hashes []common.Hash) ([]*engine.BlobAndProofV1, error) {
	if err := guard.CheckBlobRequest(api.params, len(hashes)); err != nil {
		return nil, engine.TooLargeRequest.With(err)
	}
	res := make([]*engine.BlobAndProofV1, len(hashes))
	hit := 0
	for i, hash := range hashes {
		b, ok := api.blobs.Get(hash)
		if !ok || b.Version != types.BlobSidecarVersion0 || len(b.Proofs) != 1 {
			continue
		}
		res[i] = &engine.BlobAndProofV1{Blob: b.Blob[:], Proof: b.Proofs[0][:]}
		hit++
	}
	api.metrics.BlobsServed(len(hashes), hit)
	return res, nil
}

// GetBlobsV2 returns the blobs with their cell proofs, or null unless
// every requested blob is available.
func (api *ConsensusAPI) GetBlobsV2(hashes []common.Hash) ([]*engine.BlobAndProofV2, error) {
	if err := api.checkBlobsV2(hashes, "getBlobsV2"); err != nil {
		return nil, err
	}
	res, hit := api.cellBlobs(hashes)
	api.metrics.BlobsServed(len(hashes), hit)
	if hit != len(hashes) {
		return nil, nil
	}
	return res, nil
}

// GetBlobsV3 is GetBlobsV2 with partial results. It returns null while the
// node is syncing.
func (api *ConsensusAPI) GetBlobsV3(hashes []common.Hash) ([]*engine.BlobAndProofV2, error) {
	if err := api.checkBlobsV2(hashes, "getBlobsV3"); err != nil {
		return nil, err
	}
	if api.syncing.Load() {
		return nil, nil
	}
	res, hit := api.cellBlobs(hashes)
	api.metrics.BlobsServed(len(hashes), hit)
	return res, nil
}

func (api *ConsensusAPI) checkBlobsV2(hashes []common.Hash, method string) error {
	if !api.params.IsOsaka(api.nowUnix()) {
		return engine.UnsupportedFork.With(fmt.Errorf("%s called before osaka", method))
	}
	if err := guard.CheckBlobRequest(api.params, len(hashes)); err != nil {
		return engine.TooLargeRequest.With(err)
	}
	return nil
}

func (api *ConsensusAPI) cellBlobs(hashes []common.Hash) ([]*engine.BlobAndProofV2, int) {
	res := make([]*engine.BlobAndProofV2, len(hashes))
	hit := 0
	for i, hash := range hashes {
		b, ok := api.blobs.Get(hash)
		if !ok || b.Version != types.BlobSidecarVersion1 {
			continue
		}
		res[i] = cellBlob(b)
		hit++
	}
	return res, hit
}

func cellBlob(b *txpool.BlobAndProofs) *engine.BlobAndProofV2 {
	proofs := make([]hexutil.Bytes, len(b.Proofs))
	for i := range b.Proofs {
		proofs[i] = b.Proofs[i][:]
	}
	return &engine.BlobAndProofV2{Blob: b.Blob[:], CellProofs: proofs}
}

// GetPayloadBodiesByHashV1 returns the transactions and withdrawals of the
// given blocks, with null for unknown ones.
func (api *ConsensusAPI) GetPayloadBodiesByHashV1(hashes []common.Hash) ([]*engine.ExecutionPayloadBody, error) {
	if len(hashes) > maxBodyRequest {
		return nil, engine.TooLargeRequest.With(fmt.Errorf("requested %d bodies, max %d", len(hashes), maxBodyRequest))
	}
	bodies := make([]*engine.ExecutionPayloadBody, len(hashes))
	for i, hash := range hashes {
		bodies[i] = payloadBody(api.chain.BlockByHash(hash))
	}
	return bodies, nil
}

// GetPayloadBodiesByRangeV1 returns the bodies of count canonical blocks
// from start, stopping at the current head.
func (api *ConsensusAPI) GetPayloadBodiesByRangeV1(start, count hexutil.Uint64) ([]*engine.ExecutionPayloadBody, error) {
	if start == 0 || count == 0 {
		return nil, engine.InvalidParams.With(fmt.Errorf("invalid start or count, start: %d count: %d", start, count))
	}
	if count > maxBodyRequest {
		return nil, engine.TooLargeRequest.With(fmt.Errorf("requested %d bodies, max %d", count, maxBodyRequest))
	}
	head := api.chain.CurrentHeader().Number.Uint64()
	last := uint64(start) + uint64(count) - 1
	if last > head {
		last = head
	}
	bodies := make([]*engine.ExecutionPayloadBody, 0, count)
	for n := uint64(start); n <= last; n++ {
		bodies = append(bodies, payloadBody(api.chain.BlockByNumber(n)))
	}
	return bodies, nil
}

func payloadBody(block *types.Block) *engine.ExecutionPayloadBody {
	if block == nil {
		return nil
	}
	txs := make([]hexutil.Bytes, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		data, err := tx.MarshalBinary()
		if err != nil {
			continue
		}
		txs = append(txs, data)
	}
	return &engine.ExecutionPayloadBody{TransactionData: txs, Withdrawals: block.Withdrawals()}
}
