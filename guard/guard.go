// Package guard holds the stateless predicate checks that enforce Load's
// network invariants at every boundary a block can cross: attribute
// construction, pre-build validation, inbound payload submission and
// outbound envelope conversion.
//
// Every function is pure and safe for concurrent use.
package guard

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-load/load"
)

// SidecarScheme tags which data-availability side-car format a payload or
// transaction carries.
type SidecarScheme uint8

const (
	SchemeNone    SidecarScheme = iota // no blobs
	SchemeEIP4844                      // one proof per blob
	SchemeEIP7594                      // cell proofs, Osaka onward
)

func (s SidecarScheme) String() string {
	switch s {
	case SchemeNone:
		return "none"
	case SchemeEIP4844:
		return "EIP-4844"
	case SchemeEIP7594:
		return "EIP-7594"
	default:
		return "unknown"
	}
}

// WireVersion is the Engine API envelope version a payload is converted to.
type WireVersion uint8

const (
	V1 WireVersion = iota + 1
	V2
	V3
	V4
	V5
)

// CheckPrevRandao rejects any randomness value other than the network constant.
func CheckPrevRandao(p *load.Params, randao common.Hash) error {
	if randao != p.PrevRandao() {
		return newError(InvalidRandomness, "prev_randao must be constant 0x01 for Load")
	}
	return nil
}

// CheckAttributes is the pre-build check: randomness again, and a timestamp
// strictly after the parent's.
func CheckAttributes(p *load.Params, randao common.Hash, timestamp, parentTimestamp uint64) error {
	if err := CheckPrevRandao(p, randao); err != nil {
		return err
	}
	if timestamp <= parentTimestamp {
		return newError(InvalidTimestamp, "timestamp %d must be greater than parent %d", timestamp, parentTimestamp)
	}
	return nil
}

// InboundPayload is the subset of an externally submitted execution payload
// the guard inspects. Requests is nil when the envelope carried no
// execution requests field at all.
type InboundPayload struct {
	Timestamp       uint64
	PrevRandao      common.Hash
	VersionedHashes []common.Hash
	Requests        [][]byte
}

// CheckInboundPayload validates data arriving from outside before normal
// block validation runs.
func CheckInboundPayload(p *load.Params, in InboundPayload) error {
	if err := CheckPrevRandao(p, in.PrevRandao); err != nil {
		return err
	}
	if err := CheckBlobRequest(p, len(in.VersionedHashes)); err != nil {
		return err
	}
	if in.Requests != nil && !p.IsPrague(in.Timestamp) {
		return newError(ForkFieldBeforeActivation, "Prague payload fields not active at timestamp %d", in.Timestamp)
	}
	return nil
}

// CheckBlobRequest bounds the number of versioned hashes a caller may
// reference in one request by the network budget.
func CheckBlobRequest(p *load.Params, n int) error {
	if max := p.Blobs().Max; uint64(n) > max {
		return newError(OversizedBlobRequest, "too many blob versioned hashes: %d (max %d)", n, max)
	}
	return nil
}

// CheckSidecarForFork requires the side-car scheme the fork active at ts
// mandates: EIP-7594 once Osaka is active, EIP-4844 before.
func CheckSidecarForFork(p *load.Params, ts uint64, scheme SidecarScheme) error {
	switch {
	case scheme == SchemeNone:
		return nil
	case p.IsOsaka(ts) && scheme != SchemeEIP7594:
		return newError(WrongSidecarScheme, "unexpected %s sidecar after Osaka", scheme)
	case !p.IsOsaka(ts) && scheme != SchemeEIP4844:
		return newError(WrongSidecarScheme, "unexpected %s sidecar before Osaka", scheme)
	}
	return nil
}

// CheckOutbound re-asserts, before a built payload leaves the node, that its
// cached side-cars match what the requested envelope version can represent
// and fit the budget. Violations are conversion errors, never truncations.
func CheckOutbound(p *load.Params, version WireVersion, scheme SidecarScheme, blobs int) error {
	switch version {
	case V1, V2:
		if scheme != SchemeNone {
			return newError(WrongSidecarScheme, "unexpected %s sidecars for payload V%d", scheme, version)
		}
	case V3, V4:
		if scheme == SchemeEIP7594 {
			return newError(WrongSidecarScheme, "unexpected %s sidecars for payload V%d", scheme, version)
		}
	case V5:
		if scheme == SchemeEIP4844 {
			return newError(WrongSidecarScheme, "unexpected %s sidecars for payload V%d", scheme, version)
		}
	}
	if max := p.Blobs().Max; uint64(blobs) > max {
		return newError(TooManySidecars, "payload carries %d blobs, budget is %d", blobs, max)
	}
	return nil
}
