package flags

import (
	"time"

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
			Usage: "Data directory for the scorer (persistent cache lives here)",
			Value: "~/.score",
		},
		cli.StringFlag{
			Name:  "identity",
			Usage: "Instance name reported in logs",
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
			Name:  "log.sentry",
			Usage: "Sentry DSN receiving error level log entries",
		},
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP JSON-RPC server listening interface",
			Value: "0.0.0.0",
		},
		cli.IntFlag{
			Name:  "http.port",
			Usage: "HTTP JSON-RPC server listening port",
			Value: 3003,
		},
		cli.StringFlag{
			Name:  "http.corsdomain",
			Usage: "Comma-separated list of domains from which to accept cross origin requests",
			Value: "*",
		},
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "Expose Prometheus metrics on GET /metrics",
		},
		cli.DurationFlag{
			Name:  "rpc.timeout",
			Usage: "Global JSON-RPC request timeout",
			Value: 30 * time.Second,
		},
	}
}
