package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.

func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML configuration file",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the JWT secret and config dumps",
			Value: "~/.go-load",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:   "sentry.dsn",
			Usage:  "Sentry DSN errors are reported to",
			EnvVar: "LOAD_SENTRY_DSN",
		},
		cli.BoolFlag{
			Name:  "http",
			Usage: "Enable HTTP JSON-RPC server",
		},
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP-RPC server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "http.port",
			Usage: "HTTP-RPC server listening port",
			Value: 8545,
		},
		cli.StringFlag{
			Name:  "http.corsdomain",
			Usage: "Comma-separated list of domains from which to accept cross origin requests",
		},
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "Enable collection of Prometheus-compatible metrics",
		},
		cli.StringFlag{
			Name:  "metrics.addr",
			Usage: "Metrics server listening interface",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "metrics.port",
			Usage: "Metrics server listening port",
			Value: 9001,
		},
	}
}
