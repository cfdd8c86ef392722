package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance: identity, chain
// and block building.

func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name reported in logs",
		},
		cli.StringFlag{
			Name:  "chain",
			Usage: "Built-in chain (load|load-dev) or path to a genesis JSON file",
			Value: "load-dev",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Resource preset (default|lite|full)",
		},
		cli.Uint64Flag{
			Name:  "builder.gaslimit",
			Usage: "Gas limit the block builder steers toward",
		},
		cli.StringFlag{
			Name:  "builder.extradata",
			Usage: "Block extra data override (hex)",
		},
		cli.DurationFlag{
			Name:  "builder.interval",
			Usage: "Interval between two rebuilds of the same payload",
		},
		cli.DurationFlag{
			Name:  "builder.deadline",
			Usage: "Time after which a payload job stops improving",
		},
		cli.IntFlag{
			Name:  "builder.payloads",
			Usage: "Number of resolved payloads kept for getPayload",
		},
	}
}
