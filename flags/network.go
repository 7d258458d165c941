package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags covers the upstream chains and indexes the scorer reads from.

func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "rpc.provider",
			Usage: "Base URL of the multi-chain RPC gateway, queried as <url>/<chainId>",
			Value: "https://rpc.snapshot.org",
		},
		cli.StringSliceFlag{
			Name:  "rpc.override",
			Usage: "Per-chain RPC endpoint as <chainId>=<url> (repeatable)",
		},
		cli.DurationFlag{
			Name:  "rpc.provider.timeout",
			Usage: "Timeout of a single chain JSON-RPC round trip",
			Value: 25 * time.Second,
		},
		cli.StringFlag{
			Name:  "blockfinder.url",
			Usage: "Block-by-timestamp index endpoint",
			Value: "https://blockfinder.snapshot.org",
		},
		cli.StringSliceFlag{
			Name:  "delegation.subgraph",
			Usage: "Per-chain delegation index as <chainId>=<url> (repeatable, empty url disables)",
		},
		cli.DurationFlag{
			Name:  "subgraph.timeout",
			Usage: "Timeout of a single index query",
			Value: 25 * time.Second,
		},
		cli.DurationFlag{
			Name:  "height.refresh",
			Usage: "How long a fetched chain head height is trusted",
			Value: 120 * time.Second,
		},
	}
}
