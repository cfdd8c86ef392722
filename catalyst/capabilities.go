package catalyst

import (
	"github.com/ethereum/go-ethereum/beacon/engine"

	"github.com/rony4d/go-load/version"
)

// Load extensions advertised next to the standard methods.
const (
	CapBlobs      = "load.blobs.1024"
	CapPrevRandao = "load.prev_randao.0x01"
)

var methods = []string{
	"engine_forkchoiceUpdatedV1",
	"engine_forkchoiceUpdatedV2",
	"engine_forkchoiceUpdatedV3",
	"engine_exchangeCapabilities",
	"engine_getClientVersionV1",
	"engine_getPayloadV1",
	"engine_getPayloadV2",
	"engine_getPayloadV3",
	"engine_getPayloadV4",
	"engine_getPayloadV5",
	"engine_getPayloadBodiesByHashV1",
	"engine_getPayloadBodiesByRangeV1",
	"engine_getBlobsV1",
	"engine_getBlobsV2",
	"engine_getBlobsV3",
	"engine_newPayloadV1",
	"engine_newPayloadV2",
	"engine_newPayloadV3",
	"engine_newPayloadV4",
}

// Capabilities lists everything this node advertises in
// exchangeCapabilities, before the peer's entries are merged in.
func Capabilities() []string {
	caps := make([]string, 0, len(methods)+3)
	caps = append(caps, methods...)
	return append(caps, CapBlobs, CapPrevRandao, version.String())
}

func clientVersion() engine.ClientVersionV1 {
	return engine.ClientVersionV1{
		Code:    version.ClientCode,
		Name:    version.ClientName,
		Version: version.Version,
		Commit:  version.Commit(),
	}
}
