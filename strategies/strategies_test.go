package strategies

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-score/contracts/erc20"
	"github.com/rony4d/go-score/evmcore"
	"github.com/rony4d/go-score/evmcore/evmtest"
	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/networks"
)

var (
	dai   = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	alice = common.HexToAddress("0x91fd2c8d24767db4ece7069aa27832ffaf8590f3")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func tokenHandle(t *testing.T, balances map[common.Address]*big.Int) (evmcore.Handle, *evmtest.Chain) {
	chain := evmtest.NewChain(2000)
	chain.Handle(&erc20.ABI, erc20.BalanceOf, func(target common.Address, args []interface{}, block *big.Int) ([]interface{}, error) {
		b, ok := balances[args[0].(common.Address)]
		if !ok {
			b = new(big.Int)
		}
		return []interface{}{b}, nil
	})
	mc := evmcore.NewMulticall(evmtest.Source{networks.Mainnet: chain}, networks.DefaultTable(), 0)
	h, err := mc.Handle(networks.Mainnet)
	require.NoError(t, err)
	return h, chain
}

func wei(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   *big.Int
		decimals uint8
		want     float64
	}{
		{wei("150500000000000000000"), 18, 150.5},
		{wei("0"), 18, 0},
		{wei("5"), 2, 0.05},
		{wei("123"), 0, 123},
		{wei("-25"), 1, -2.5},
		{nil, 18, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatUnits(tt.amount, tt.decimals))
	}
}

func TestERC20BalanceOf(t *testing.T) {
	require := require.New(t)

	h, chain := tokenHandle(t, map[common.Address]*big.Int{alice: wei("150500000000000000000")})
	params := inter.Params{"address": dai, "decimals": json.Number("18"), "symbol": "DAI"}

	scores, err := ERC20BalanceOf{}.Score(context.Background(), "ens.eth", networks.Mainnet, h, []common.Address{alice, bob}, params, inter.BlockAt(1000))
	require.NoError(err)
	require.Equal(map[common.Address]float64{alice: 150.5, bob: 0}, scores)
	require.Equal(int64(1000), chain.LastBlockArg().Int64())
}

func TestERC20BalanceOf_InvalidParams(t *testing.T) {
	h, chain := tokenHandle(t, nil)

	tests := map[string]inter.Params{
		"missing address": {"decimals": json.Number("18")},
		"bad address":     {"address": "0x123", "decimals": json.Number("18")},
		"bad decimals":    {"address": dai, "decimals": "eighteen"},
	}
	for name, params := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ERC20BalanceOf{}.Score(context.Background(), "", networks.Mainnet, h, []common.Address{alice}, params, inter.Latest())
			require.Equal(t, inter.KindRejectedInput, inter.KindOf(err))
		})
	}
	require.Zero(t, chain.Aggregates())
}

func TestERC721(t *testing.T) {
	h, _ := tokenHandle(t, map[common.Address]*big.Int{bob: big.NewInt(3)})

	scores, err := ERC721{}.Score(context.Background(), "", networks.Mainnet, h, []common.Address{alice, bob}, inter.Params{"address": dai}, inter.Latest())
	require.NoError(t, err)
	require.Equal(t, map[common.Address]float64{alice: 0, bob: 3}, scores)
}

func TestWhitelists(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	scores, err := Whitelist{}.Score(ctx, "", networks.Mainnet, nil, []common.Address{alice, bob},
		inter.Params{"addresses": []interface{}{"0x91FD2C8D24767DB4ECE7069AA27832FFAF8590F3"}}, inter.Latest())
	require.NoError(err)
	require.Equal(map[common.Address]float64{alice: 1, bob: 0}, scores)

	scores, err = WhitelistWeighted{}.Score(ctx, "", networks.Mainnet, nil, []common.Address{alice, bob},
		inter.Params{"addresses": map[string]interface{}{bob.Hex(): json.Number("2.5")}}, inter.Latest())
	require.NoError(err)
	require.Equal(map[common.Address]float64{alice: 0, bob: 2.5}, scores)

	_, err = Whitelist{}.Score(ctx, "", networks.Mainnet, nil, []common.Address{alice},
		inter.Params{"addresses": []interface{}{"not-an-address"}}, inter.Latest())
	require.Equal(inter.KindRejectedInput, inter.KindOf(err))
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	reg := Default()
	require.Equal([]string{"erc20-balance-of", "erc721", "whitelist", "whitelist-weighted"}, reg.Names())

	_, err := reg.Get("erc20-balance-of")
	require.NoError(err)

	_, err = reg.Get("ticket")
	require.Equal(inter.KindNotFound, inter.KindOf(err))

	err = reg.CheckAll([]inter.StrategyConfig{{Name: "whitelist"}, {Name: "ticket"}, {Name: "ticket"}, {Name: ""}})
	require.Equal(inter.KindNotFound, inter.KindOf(err))
	require.EqualError(err, `invalid strategies: "ticket", ""`)
	require.NoError(reg.CheckAll([]inter.StrategyConfig{{Name: "erc721"}}))
}
