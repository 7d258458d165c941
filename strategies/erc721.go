package strategies

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-score/contracts/erc721"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
)

// ERC721 scores each address by the number of tokens it holds.
type ERC721 struct{}

type erc721Params struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Symbol  string `json:"symbol"`
}

func (ERC721) Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error) {
	var p erc721Params
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}
	balances, err := balancesOf(ctx, provider, &erc721.ABI, erc721.BalanceOf, common.HexToAddress(p.Address), addrs, block)
	if err != nil {
		return nil, err
	}

	out := make(map[common.Address]float64, len(addrs))
	for i, a := range addrs {
		out[a] = formatUnits(balances[i], 0)
	}
	return out, nil
}
