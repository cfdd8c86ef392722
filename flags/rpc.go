package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// EngineFlags configures the authenticated Engine API endpoint.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "authrpc.addr",
			Usage: "Engine API listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "authrpc.port",
			Usage: "Engine API listening port",
			Value: 8551,
		},
		cli.StringFlag{
			Name:  "authrpc.jwtsecret",
			Usage: "Path to the hex encoded JWT secret (defaults to <datadir>/jwt.hex)",
		},
	}
}

// GateFlags set the in-flight limits of the guarded public methods. They
// override the LOAD_RPC_* environment variables; 0 disables a guard.
func GateFlags() []cli.Flag {
	return []cli.Flag{
		cli.Uint64Flag{
			Name:  "rpc.sendrawtx.limit",
			Usage: "Max concurrent eth_sendRawTransaction calls",
		},
		cli.Uint64Flag{
			Name:  "rpc.txcount.limit",
			Usage: "Max concurrent eth_getTransactionCount calls",
		},
		cli.Uint64Flag{
			Name:  "rpc.sendrawtxsync.limit",
			Usage: "Max concurrent eth_sendRawTransactionSync calls",
		},
		cli.StringFlag{
			Name:  "rpc.batchlimit",
			Usage: "Max size of a joined batch response (e.g. 200MB)",
		},
		cli.DurationFlag{
			Name:  "rpc.synctimeout",
			Usage: "Default wait of eth_sendRawTransactionSync",
		},
	}
}
