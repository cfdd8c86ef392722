package inter

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-load/guard"
)

// SchemeOf reports which side-car format sc uses.
func SchemeOf(sc *types.BlobTxSidecar) guard.SidecarScheme {
	switch {
	case sc == nil:
		return guard.SchemeNone
	case sc.Version == types.BlobSidecarVersion1:
		return guard.SchemeEIP7594
	default:
		return guard.SchemeEIP4844
	}
}

// BlobSidecars is the side-car collection of a built payload. It holds
// either nothing, or side-cars that all share one scheme; the scheme tag
// is what envelope conversion switches on.
type BlobSidecars struct {
	scheme   guard.SidecarScheme
	sidecars []*types.BlobTxSidecar
	blobs    int
}

// NoSidecars is the collection of a payload without blob transactions.
func NoSidecars() BlobSidecars { return BlobSidecars{scheme: guard.SchemeNone} }

// NewBlobSidecars tags list with its scheme. Mixing schemes is an error.
func NewBlobSidecars(list []*types.BlobTxSidecar) (BlobSidecars, error) {
	out := NoSidecars()
	for i, sc := range list {
		if sc == nil {
			return BlobSidecars{}, fmt.Errorf("nil sidecar at index %d", i)
		}
		scheme := SchemeOf(sc)
		if out.scheme != guard.SchemeNone && out.scheme != scheme {
			return BlobSidecars{}, fmt.Errorf("mixed sidecar schemes: %s and %s", out.scheme, scheme)
		}
		out.scheme = scheme
		out.blobs += len(sc.Commitments)
	}
	if len(list) > 0 {
		out.sidecars = append([]*types.BlobTxSidecar(nil), list...)
	}
	return out, nil
}

func (s BlobSidecars) Scheme() guard.SidecarScheme { return s.scheme }

// Sidecars returns the side-cars in transaction order.
func (s BlobSidecars) Sidecars() []*types.BlobTxSidecar {
	return append([]*types.BlobTxSidecar(nil), s.sidecars...)
}

// BlobCount is the total number of blobs across all side-cars, counted by
// commitment.
func (s BlobSidecars) BlobCount() int { return s.blobs }
