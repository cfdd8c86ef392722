package catalyst

import (
	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rony4d/go-load/evmcore"
	"github.com/rony4d/go-load/guard"
	"github.com/rony4d/go-load/inter"
	"github.com/rony4d/go-load/load"
)

// toEnvelope converts a built payload to the envelope of the requested
// version. The side-cars are checked against what that version can carry
// before anything is encoded.
func toEnvelope(p *load.Params, payload *inter.BuiltPayload, version guard.WireVersion) (*engine.ExecutionPayloadEnvelope, error) {
	sidecars := payload.Sidecars()
	if err := guard.CheckOutbound(p, version, sidecars.Scheme(), sidecars.BlobCount()); err != nil {
		return nil, err
	}
	data, err := evmcore.BlockToPayload(payload.Block())
	if err != nil {
		return nil, err
	}
	env := &engine.ExecutionPayloadEnvelope{
		ExecutionPayload: data,
		BlockValue:       payload.FeesBig(),
	}
	if version >= guard.V3 {
		env.BlobsBundle = blobsBundle(sidecars)
	}
	if version >= guard.V4 {
		env.Requests = payload.Requests()
		if env.Requests == nil {
			env.Requests = [][]byte{}
		}
	}
	return env, nil
}

// blobsBundle flattens the side-cars in transaction order. Proofs are
// copied as stored: one per blob for EIP-4844, every cell proof for
// EIP-7594.
func blobsBundle(sidecars inter.BlobSidecars) *engine.BlobsBundle {
	bundle := &engine.BlobsBundle{
		Commitments: []hexutil.Bytes{},
		Proofs:      []hexutil.Bytes{},
		Blobs:       []hexutil.Bytes{},
	}
	for _, sc := range sidecars.Sidecars() {
		for i := range sc.Blobs {
			bundle.Blobs = append(bundle.Blobs, hexutil.Bytes(sc.Blobs[i][:]))
			bundle.Commitments = append(bundle.Commitments, hexutil.Bytes(sc.Commitments[i][:]))
		}
		for i := range sc.Proofs {
			bundle.Proofs = append(bundle.Proofs, hexutil.Bytes(sc.Proofs[i][:]))
		}
	}
	return bundle
}

func decodeRequests(requests []hexutil.Bytes) [][]byte {
	if requests == nil {
		return nil
	}
	out := make([][]byte, len(requests))
	for i, r := range requests {
		out[i] = r
	}
	return out
}
