package strategies

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
)

// Whitelist gives one point to every listed address.
type Whitelist struct{}

type whitelistParams struct {
	Addresses []string `json:"addresses" validate:"dive,eth_addr"`
}

func (Whitelist) Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error) {
	var p whitelistParams
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	listed := make(map[common.Address]struct{}, len(p.Addresses))
	for _, a := range p.Addresses {
		listed[common.HexToAddress(a)] = struct{}{}
	}

	out := zeroScores(addrs)
	for _, a := range addrs {
		if _, ok := listed[a]; ok {
			out[a] = 1
		}
	}
	return out, nil
}

// WhitelistWeighted gives every listed address its configured weight.
type WhitelistWeighted struct{}

type weightedParams struct {
	Addresses map[string]float64 `json:"addresses" validate:"dive,keys,eth_addr,endkeys"`
}

func (WhitelistWeighted) Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error) {
	var p weightedParams
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	weights := make(map[common.Address]float64, len(p.Addresses))
	for a, w := range p.Addresses {
		weights[common.HexToAddress(a)] = w
	}

	out := zeroScores(addrs)
	for _, a := range addrs {
		out[a] = weights[a]
	}
	return out, nil
}
