package txpool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	lru "github.com/hashicorp/golang-lru/v2"
)

// BlobAndProofs is one cached blob with the proofs of its side-car scheme:
// a single blob proof for version 0, the cell proofs for version 1.
type BlobAndProofs struct {
	Blob       *kzg4844.Blob
	Commitment kzg4844.Commitment
	Proofs     []kzg4844.Proof
	Version    byte
}

func (b *BlobAndProofs) size() uint64 {
	return uint64(len(b.Blob)) + uint64(len(b.Commitment)) + uint64(len(b.Proofs)*len(kzg4844.Proof{}))
}

// BlobCache keeps recently seen blobs by versioned hash so the consensus
// client can fetch them through getBlobs. Entries outlive the transactions
// that carried them.
type BlobCache struct {
	cache *lru.Cache[common.Hash, *BlobAndProofs]
}

func NewBlobCache(size int) (*BlobCache, error) {
	cache, err := lru.New[common.Hash, *BlobAndProofs](size)
	if err != nil {
		return nil, err
	}
	return &BlobCache{cache: cache}, nil
}

// Add caches every blob of sc under the matching hash of hashes.
func (c *BlobCache) Add(hashes []common.Hash, sc *types.BlobTxSidecar) {
	per := 1
	if sc.Version == types.BlobSidecarVersion1 {
		per = kzg4844.CellProofsPerBlob
	}
	for i, h := range hashes {
		if i >= len(sc.Blobs) || (i+1)*per > len(sc.Proofs) {
			return
		}
		c.cache.Add(h, &BlobAndProofs{
			Blob:       &sc.Blobs[i],
			Commitment: sc.Commitments[i],
			Proofs:     sc.Proofs[i*per : (i+1)*per],
			Version:    sc.Version,
		})
	}
}

// Get returns the cached blob for hash.
func (c *BlobCache) Get(hash common.Hash) (*BlobAndProofs, bool) {
	return c.cache.Get(hash)
}

func (c *BlobCache) Len() int { return c.cache.Len() }

// Bytes estimates the memory held by cached blobs and proofs.
func (c *BlobCache) Bytes() uint64 {
	var total uint64
	for _, h := range c.cache.Keys() {
		if b, ok := c.cache.Peek(h); ok {
			total += b.size()
		}
	}
	return total
}
