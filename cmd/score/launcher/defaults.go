package launcher

import (
	"time"

	"github.com/rony4d/go-score/blockfinder"
	"github.com/rony4d/go-score/cache"
	"github.com/rony4d/go-score/delegation"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/subgraph"
	"github.com/rony4d/go-score/vp"
)

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	HTTP    HTTPDefaults
	Logging LoggingDefaults
	Service ServiceDefaults
	Chains  ChainsDefaults
}

// NodeDefaults captures instance-level settings.
type NodeDefaults struct {
	DataDir string //	Filesystem root of the instance; the persistent result cache is created under it.
	Name    string //	Instance name attached to every log line.
}

// HTTPDefaults captures the JSON-RPC listener.
type HTTPDefaults struct {
	Addr        string        //	Interface the HTTP server binds to.
	Port        int           //	TCP port of the JSON-RPC endpoint.
	CORSOrigins []string      //	Origins allowed to call the endpoint from a browser.
	Timeout     time.Duration //	Upper bound on one request, including every upstream call it triggers.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs.
}

// ServiceDefaults tunes screening, caching and batching.
type ServiceDefaults struct {
	Preset             string   //	Named runtime profile, see integration.GetPresetByName.
	MaxStrategies      int      //	Strategies beyond this count are dropped from a request.
	DisabledNetworks   []string //	Chain ids whose requests are rejected up front.
	NoCacheSpaces      []string //	Spaces that always recompute.
	MulticallPageSize  int      //	Calls per aggregate round trip.
	DelegationPageSize int      //	Records per inbound delegation index page.
}

// ChainsDefaults holds the upstream endpoints.
type ChainsDefaults struct {
	ProviderURL     string        //	Multi-chain RPC gateway, queried as <url>/<chainId>.
	ProviderTimeout time.Duration //	Bound on one JSON-RPC round trip.
	BlockfinderURL  string        //	Block-by-timestamp index.
	SubgraphTimeout time.Duration //	Bound on one index query.
	HeightRefresh   time.Duration //	How long a fetched head height is trusted.
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.score",
			Name:    "go-score",
		},
		HTTP: HTTPDefaults{
			Addr:        "0.0.0.0",
			Port:        3003,
			CORSOrigins: []string{"*"},
			Timeout:     30 * time.Second,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
		Service: ServiceDefaults{
			Preset:             "default",
			MaxStrategies:      vp.DefaultMaxStrategies,
			DisabledNetworks:   vp.DefaultDisabledNetworks,
			NoCacheSpaces:      cache.DefaultExcludedSpaces,
			MulticallPageSize:  evmcore.DefaultPageSize,
			DelegationPageSize: delegation.DefaultPageSize,
		},
		Chains: ChainsDefaults{
			ProviderURL:     "https://rpc.snapshot.org",
			ProviderTimeout: evmcore.DefaultProviderTimeout,
			BlockfinderURL:  blockfinder.DefaultURL,
			SubgraphTimeout: subgraph.DefaultTimeout,
			HeightRefresh:   blockfinder.DefaultRefreshInterval,
		},
	}
}
