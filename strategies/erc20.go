package strategies

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-score/contracts/erc20"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/inter"
)

// ERC20BalanceOf scores each address by its token balance in whole units.
type ERC20BalanceOf struct{}

type erc20Params struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

func (ERC20BalanceOf) Score(ctx context.Context, space, network string, provider evmcore.Handle, addrs []common.Address, params inter.Params, block inter.BlockSpec) (map[common.Address]float64, error) {
	var p erc20Params
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}
	balances, err := balancesOf(ctx, provider, &erc20.ABI, erc20.BalanceOf, common.HexToAddress(p.Address), addrs, block)
	if err != nil {
		return nil, err
	}

	out := make(map[common.Address]float64, len(addrs))
	for i, a := range addrs {
		out[a] = formatUnits(balances[i], p.Decimals)
	}
	return out, nil
}

// balancesOf reads a uint256 balanceOf(owner) view for every address.
func balancesOf(ctx context.Context, provider evmcore.Handle, contract *abi.ABI, method string, token common.Address, addrs []common.Address, block inter.BlockSpec) ([]*big.Int, error) {
	calls := make([]evmcore.Call, len(addrs))
	for i, a := range addrs {
		calls[i] = evmcore.Call{Target: token, ABI: contract, Method: method, Args: []interface{}{a}}
	}
	results, err := provider.Aggregate(ctx, block, calls)
	if err != nil {
		return nil, err
	}

	out := make([]*big.Int, len(results))
	for i, r := range results {
		if len(r) != 1 {
			return nil, inter.Upstream(fmt.Errorf("got %d outputs", len(r)), "decode %s", method)
		}
		b, ok := r[0].(*big.Int)
		if !ok {
			return nil, inter.Upstream(fmt.Errorf("unexpected %T", r[0]), "decode %s", method)
		}
		out[i] = b
	}
	return out, nil
}
