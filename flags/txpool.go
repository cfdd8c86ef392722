package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// TxPoolFlags isolates transaction-pool tuning knobs.
func TxPoolFlags() []cli.Flag {
	return []cli.Flag{
		cli.Uint64Flag{
			Name:  "txpool.pricelimit",
			Usage: "Minimum fee cap (in wei) to accept a transaction",
			Value: 1,
		},
		cli.Uint64Flag{
			Name:  "txpool.pricebump",
			Usage: "Price bump percentage to replace an existing transaction",
			Value: 10,
		},
		cli.IntFlag{
			Name:  "txpool.accountslots",
			Usage: "Maximum number of pooled transactions per account",
			Value: 256,
		},
		cli.IntFlag{
			Name:  "txpool.globalslots",
			Usage: "Maximum number of pooled transactions total",
			Value: 16384,
		},
		cli.IntFlag{
			Name:  "txpool.blobcache",
			Usage: "Number of blobs kept for engine_getBlobs (0 derives it from the blob target)",
		},
		cli.BoolFlag{
			Name:  "txpool.nokzg",
			Usage: "Skip KZG proof verification at ingress",
		},
	}
}
