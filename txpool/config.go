package txpool

import (
	"time"

	"github.com/rony4d/go-load/load"
)

// slotsPerEpoch sizes the blob cache to two epochs of blocks at target.
const slotsPerEpoch = 32

// Config are the pool settings.
type Config struct {
	// PriceLimit is the minimum fee cap in wei accepted at ingress.
	PriceLimit uint64
	// PriceBump is the percentage a replacement must raise both fee caps by.
	PriceBump uint64

	// GlobalSlots bounds the number of pooled transactions.
	GlobalSlots int
	// AccountSlots bounds the number of pooled transactions per sender.
	AccountSlots int

	// BlobCacheSize is the number of blobs kept for getBlobs. Zero derives
	// it from the network blob target.
	BlobCacheSize int

	// VerifyKZG checks blob proofs at ingress.
	VerifyKZG bool

	// ReportInterval is how often cache gauges are refreshed.
	ReportInterval time.Duration
}

// DefaultConfig contains the default pool settings.
func DefaultConfig() Config {
	return Config{
		PriceLimit:     1,
		PriceBump:      10,
		GlobalSlots:    16384,
		AccountSlots:   256,
		VerifyKZG:      true,
		ReportInterval: 5 * time.Second,
	}
}

// BlobCacheSizeFor returns the blob cache capacity for p: the blob target
// times two epochs of slots.
func BlobCacheSizeFor(p *load.Params) int {
	return int(p.Blobs().Target) * slotsPerEpoch * 2
}
