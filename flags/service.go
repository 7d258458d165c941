package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// ServiceFlags holds knobs of the scoring service itself: caching, screening
// and batching.

func ServiceFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "preset",
			Usage: "Runtime preset (default|persistent|nocache)",
			Value: "default",
		},
		cli.StringFlag{
			Name:  "cache.backend",
			Usage: "Result cache backend (memory|pebble|none), overrides the preset",
		},
		cli.StringFlag{
			Name:  "cache.dir",
			Usage: "Directory of the pebble result cache (defaults to <datadir>/vpcache)",
		},
		cli.StringFlag{
			Name:  "nocache.spaces",
			Usage: "Comma-separated spaces whose results are never cached",
		},
		cli.StringFlag{
			Name:  "disabled.spaces",
			Usage: "Comma-separated spaces whose requests are rejected",
		},
		cli.StringFlag{
			Name:  "disabled.networks",
			Usage: "Comma-separated chain ids whose requests are rejected",
		},
		cli.IntFlag{
			Name:  "max.strategies",
			Usage: "Maximum number of strategies evaluated per request",
			Value: 8,
		},
		cli.IntFlag{
			Name:  "multicall.pagesize",
			Usage: "Number of contract calls packed into one aggregate call",
			Value: 500,
		},
		cli.IntFlag{
			Name:  "delegation.pagesize",
			Usage: "Page size of inbound delegation index queries",
			Value: 1000,
		},
	}
}
