// Package networks describes the EVM chains the scorer knows how to reach.
//
// This package provides:
//   - Chain id constants for the networks referenced by default configuration
//   - The per-chain contract addresses needed by the pipeline (multicall)
//   - The delegation index (subgraph) endpoint per chain, if one exists
//
// The Table type is the single lookup structure used by the provider
// registry, the batched call primitive and the delegation resolver.

package networks

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Chain ids used by the default table.
const (
	Mainnet      = "1"
	Optimism     = "10"
	BSC          = "56"
	Gnosis       = "100"
	Polygon      = "137"
	Base         = "8453"
	Arbitrum     = "42161"
	KaiaMainnet  = "8217"
	KaiaKairos   = "1001"
	DisabledLens = "1319"
)

var (
	// Multicall3 is deployed at the same address on nearly every EVM chain and
	// keeps the v1 aggregate((address,bytes)[]) entry point.
	Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

	// MainnetMulticall is the original Multicall deployment on Ethereum mainnet.
	MainnetMulticall = common.HexToAddress("0xeefBa1e63905eF1D7ACbA5a8513c70307C1cE441")
)

// Network is the static description of one chain.
type Network struct {
	// ChainID is the decimal chain id, also used as the request network key.
	ChainID string

	// Name is a human-readable label used in logs.
	Name string

	// Multicall is the aggregate contract used for batched reads.
	Multicall common.Address

	// RPC overrides the default provider URL. It may reference environment
	// variables (${NAME}), expanded when the provider is first dialled.
	RPC string

	// DelegationSubgraph is the delegation index endpoint. Empty means the
	// chain has no index coverage.
	DelegationSubgraph string
}

// HasDelegationIndex reports whether inbound delegations can be resolved on this chain.
func (n Network) HasDelegationIndex() bool {
	return n.DelegationSubgraph != ""
}

// ProviderURL returns the RPC endpoint for the chain, either the explicit
// override or "<base>/<chainId>".
func (n Network) ProviderURL(base string) string {
	if n.RPC != "" {
		return os.ExpandEnv(n.RPC)
	}
	return fmt.Sprintf("%s/%s", base, n.ChainID)
}

// Table indexes networks by chain id.
type Table map[string]Network

// Get returns the network for a chain id. Unknown ids get a bare entry backed
// by Multicall3 and no delegation index, so new chains work through the
// default provider without a table update.
func (t Table) Get(chainID string) Network {
	if n, ok := t[chainID]; ok {
		return n
	}
	return Network{ChainID: chainID, Name: "chain-" + chainID, Multicall: Multicall3}
}

// Known reports whether the chain id is listed explicitly.
func (t Table) Known(chainID string) bool {
	_, ok := t[chainID]
	return ok
}

// IDs returns the listed chain ids in sorted order.
func (t Table) IDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Copy returns an independent table so callers can apply overrides.
func (t Table) Copy() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// WithSubgraph returns a copy of the table with the delegation index of one
// chain replaced.
func (t Table) WithSubgraph(chainID, url string) Table {
	out := t.Copy()
	n := out.Get(chainID)
	n.DelegationSubgraph = url
	out[chainID] = n
	return out
}

// WithRPC returns a copy of the table with the provider URL of one chain replaced.
func (t Table) WithRPC(chainID, url string) Table {
	out := t.Copy()
	n := out.Get(chainID)
	n.RPC = url
	out[chainID] = n
	return out
}

func delegationSubgraph(chainID string) string {
	return "https://subgrapher.snapshot.org/delegation/" + chainID
}

// DefaultTable returns the built-in network table.
func DefaultTable() Table {
	return Table{
		Mainnet: {
			ChainID:            Mainnet,
			Name:               "mainnet",
			Multicall:          MainnetMulticall,
			DelegationSubgraph: delegationSubgraph(Mainnet),
		},
		Optimism: {
			ChainID:            Optimism,
			Name:               "optimism",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(Optimism),
		},
		BSC: {
			ChainID:            BSC,
			Name:               "bsc",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(BSC),
		},
		Gnosis: {
			ChainID:            Gnosis,
			Name:               "gnosis",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(Gnosis),
		},
		Polygon: {
			ChainID:            Polygon,
			Name:               "polygon",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(Polygon),
		},
		Base: {
			ChainID:            Base,
			Name:               "base",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(Base),
		},
		Arbitrum: {
			ChainID:            Arbitrum,
			Name:               "arbitrum",
			Multicall:          Multicall3,
			DelegationSubgraph: delegationSubgraph(Arbitrum),
		},
		KaiaMainnet: {
			ChainID:   KaiaMainnet,
			Name:      "kaia",
			Multicall: Multicall3,
			RPC:       "https://kaia-mainnet.g.allthatnode.com/full/evm/${ALLTHATNODE_API_KEY}",
		},
		KaiaKairos: {
			ChainID:   KaiaKairos,
			Name:      "kaia-kairos",
			Multicall: Multicall3,
			RPC:       "https://kaia-kairos.g.allthatnode.com/full/evm/${ALLTHATNODE_API_KEY}",
		},
	}
}
